package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"coursebot/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coursebot:session:"

// Client is the subset of redis commands the repository needs
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SessionRepo keeps sessions as JSON values in Redis
type SessionRepo struct {
	client Client
	ttl    time.Duration
}

// NewSessionRepo creates a Redis backed session repository. A zero ttl keeps sessions forever.
func NewSessionRepo(client Client, ttl time.Duration) *SessionRepo {
	return &SessionRepo{client: client, ttl: ttl}
}

// Connect parses the URL and pings the server, retrying a few times
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("redis not ready after %d attempts: %w", attempts, lastErr)
}

func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Get loads the session of a user
func (r *SessionRepo) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	s.UserID = userID
	s.Normalize()
	return &s, nil
}

// Save writes the session
func (r *SessionRepo) Save(ctx context.Context, session *domain.Session) error {
	session.Touch()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", session.UserID, err)
	}
	if err := r.client.Set(ctx, sessionKey(session.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %d: %w", session.UserID, err)
	}
	return nil
}

// Delete removes the session of a user
func (r *SessionRepo) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, sessionKey(userID)).Err()
}
