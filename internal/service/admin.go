package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"go.uber.org/zap"
)

const (
	msgAdminGranted    = "🔑 Admin access granted. Use /stats, /reload and /kick &lt;user_id&gt;."
	msgAdminWrong      = "❌ Wrong password."
	msgAdminDisabled   = "🚫 Admin login is disabled."
	msgNotifyNewUser   = "🆕 New user: %s (<code>%d</code>)"
	msgNotifyFailure   = "⚠️ Progression failed for <code>%d</code>:\n<code>%s</code>"
	msgNotifyCompleted = "🏆 User <code>%d</code> completed the course"
)

// AdminService handles admin authentication and admin notifications
type AdminService struct {
	users     repository.UserRepository
	transport Transport
	password  string
	adminIDs  map[int64]struct{}
	logger    *zap.Logger
}

// NewAdminService creates a new admin service. Users listed in adminIDs are
// admins without logging in; an empty password disables /admin.
func NewAdminService(users repository.UserRepository, transport Transport, password string, adminIDs []int64, logger *zap.Logger) *AdminService {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &AdminService{
		users:     users,
		transport: transport,
		password:  password,
		adminIDs:  ids,
		logger:    logger,
	}
}

// CheckPassword verifies if provided password matches
func (s *AdminService) CheckPassword(password string) bool {
	if s.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
}

// IsAdmin checks the configured ids first, then the user store
func (s *AdminService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if _, ok := s.adminIDs[userID]; ok {
		return true, nil
	}
	return s.users.IsAdmin(ctx, userID)
}

// Login grants admin rights for the right password
func (s *AdminService) Login(ctx context.Context, userID int64, password string) error {
	if s.password == "" {
		s.reply(ctx, userID, msgAdminDisabled)
		return nil
	}
	if !s.CheckPassword(password) {
		s.logger.Warn("Failed admin login", zap.Int64("user_id", userID))
		s.reply(ctx, userID, msgAdminWrong)
		return nil
	}

	if err := s.users.SetAdmin(ctx, userID, true); err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	s.logger.Info("Admin authorized", zap.Int64("user_id", userID))
	s.reply(ctx, userID, msgAdminGranted)
	return nil
}

// NotifyNewUser tells admins about a registration
func (s *AdminService) NotifyNewUser(ctx context.Context, user *domain.User) {
	s.broadcast(ctx, fmt.Sprintf(msgNotifyNewUser, html.EscapeString(user.DisplayName()), user.UserID))
}

// NotifyFailure tells admins about a progression failure
func (s *AdminService) NotifyFailure(ctx context.Context, userID int64, err error) {
	s.broadcast(ctx, fmt.Sprintf(msgNotifyFailure, userID, html.EscapeString(err.Error())))
}

// NotifyCompleted tells admins about a finished course
func (s *AdminService) NotifyCompleted(ctx context.Context, userID int64) {
	s.broadcast(ctx, fmt.Sprintf(msgNotifyCompleted, userID))
}

func (s *AdminService) broadcast(ctx context.Context, text string) {
	recipients := make(map[int64]struct{}, len(s.adminIDs))
	for id := range s.adminIDs {
		recipients[id] = struct{}{}
	}
	stored, err := s.users.ListAdmins(ctx)
	if err != nil {
		s.logger.Warn("Failed to list admins", zap.Error(err))
	}
	for _, id := range stored {
		recipients[id] = struct{}{}
	}

	for id := range recipients {
		if err := s.transport.Send(ctx, id, domain.TextMessage(text)); err != nil {
			s.logger.Warn("Failed to notify admin", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
}

func (s *AdminService) reply(ctx context.Context, userID int64, text string) {
	if err := s.transport.Send(ctx, userID, domain.TextMessage(text)); err != nil {
		s.logger.Warn("Failed to send message", zap.Int64("user_id", userID), zap.Error(err))
	}
}
