package firebase

import (
	"context"
	"fmt"
	"strconv"

	"coursebot/internal/domain"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

const sessionsPath = "bot_sessions"

// Store is the minimal document access the repository needs
type Store interface {
	Get(ctx context.Context, path string, v interface{}) error
	Set(ctx context.Context, path string, v interface{}) error
	Delete(ctx context.Context, path string) error
}

// Connect initializes a Realtime Database client from a service account file
func Connect(ctx context.Context, credentialsFile, databaseURL string) (*RealtimeStore, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}
	return &RealtimeStore{client: client}, nil
}

// RealtimeStore adapts the Realtime Database client to Store
type RealtimeStore struct {
	client *db.Client
}

func (s *RealtimeStore) Get(ctx context.Context, path string, v interface{}) error {
	return s.client.NewRef(path).Get(ctx, v)
}

func (s *RealtimeStore) Set(ctx context.Context, path string, v interface{}) error {
	return s.client.NewRef(path).Set(ctx, v)
}

func (s *RealtimeStore) Delete(ctx context.Context, path string) error {
	return s.client.NewRef(path).Delete(ctx)
}

// SessionRepo keeps one session document per user under bot_sessions
type SessionRepo struct {
	store Store
}

// NewSessionRepo creates a Firebase backed session repository
func NewSessionRepo(store Store) *SessionRepo {
	return &SessionRepo{store: store}
}

func sessionPath(userID int64) string {
	return sessionsPath + "/" + strconv.FormatInt(userID, 10)
}

// Get loads the session of a user. A missing node decodes into nil.
func (r *SessionRepo) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	var s *domain.Session
	if err := r.store.Get(ctx, sessionPath(userID), &s); err != nil {
		return nil, fmt.Errorf("error reading session %d: %w", userID, err)
	}
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}
	s.UserID = userID
	s.Normalize()
	return s, nil
}

// Save writes the session document
func (r *SessionRepo) Save(ctx context.Context, session *domain.Session) error {
	session.Touch()
	if err := r.store.Set(ctx, sessionPath(session.UserID), session); err != nil {
		return fmt.Errorf("error updating session %d: %w", session.UserID, err)
	}
	return nil
}

// Delete removes the session document
func (r *SessionRepo) Delete(ctx context.Context, userID int64) error {
	if err := r.store.Delete(ctx, sessionPath(userID)); err != nil {
		return fmt.Errorf("error deleting session %d: %w", userID, err)
	}
	return nil
}
