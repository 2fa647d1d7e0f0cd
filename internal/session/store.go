package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store keeps login sessions and the global online-users set in redis. Room
// membership is deliberately not recorded here: the websocket core's presence
// tracker is the only source of truth for who is in which room.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

type Session struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

const onlineUsersKey = "online_users"

func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func sessionKey(id string) string {
	return "session:" + id
}

func userSessionKey(userID string) string {
	return "user_session:" + userID
}

// Create stores a fresh session for the user and returns its id.
func (s *Store) Create(ctx context.Context, userID, username string) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	sess := Session{
		UserID:    userID,
		Username:  username,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKey(id), data, s.ttl)
	pipe.Set(ctx, userSessionKey(userID), id, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return id, nil
}

// Get returns the session for id, or nil when it does not exist or expired.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Delete removes the session and its user index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, userSessionKey(sess.UserID))
	_, err = pipe.Exec(ctx)
	return err
}

// SetUserOnline flags the user in the global online set.
func (s *Store) SetUserOnline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.Expire(ctx, onlineUsersKey, time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// SetUserOffline clears the user's online flag.
func (s *Store) SetUserOffline(ctx context.Context, userID string) error {
	return s.client.SRem(ctx, onlineUsersKey, userID).Err()
}

// OnlineUsers lists user ids currently flagged online.
func (s *Store) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, onlineUsersKey).Result()
}
