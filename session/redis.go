package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phalanx-sec/mailtriage"
)

const (
	sessionKeyPrefix = "mailtriage:session:"
	activeKeyPrefix  = "mailtriage:active:"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisStore implements Store on go-redis/v9. Sessions are stored as
// JSON values; the active index is a plain key from message id to
// session id.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, mailtriage.NewValidationError("session.redis.connect", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, mailtriage.NewUpstreamError("session.redis.connect", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put writes the session and updates the active index for its message.
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return mailtriage.NewPersistenceError("session.put", err).
			WithContext(map[string]any{"session_id": sess.ID})
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+sess.ID, data, 0).Err(); err != nil {
		return mailtriage.NewPersistenceError("session.put", err).
			WithContext(map[string]any{"session_id": sess.ID})
	}

	if sess.Status == StatusActive {
		if err := s.client.Set(ctx, activeKeyPrefix+sess.MessageID, sess.ID, 0).Err(); err != nil {
			return mailtriage.NewPersistenceError("session.put", err).
				WithContext(map[string]any{"message_id": sess.MessageID})
		}
	}

	return nil
}

// Get loads a session by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, mailtriage.NewNotFoundError("session.get", mailtriage.ErrSessionNotFound).
				WithContext(map[string]any{"session_id": id})
		}
		return nil, mailtriage.NewPersistenceError("session.get", err).
			WithContext(map[string]any{"session_id": id})
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, mailtriage.NewPersistenceError("session.get", err).
			WithContext(map[string]any{"session_id": id})
	}
	return &sess, nil
}

// Append loads the session, adds the entries, and writes it back.
func (s *RedisStore) Append(ctx context.Context, id string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Entries = append(sess.Entries, entries...)
	sess.UpdatedAt = time.Now().UTC()

	return s.Put(ctx, sess)
}

// LatestActive resolves the active index for a message and loads the
// session it points to.
func (s *RedisStore) LatestActive(ctx context.Context, messageID string) (*Session, error) {
	id, err := s.client.Get(ctx, activeKeyPrefix+messageID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, mailtriage.NewNotFoundError("session.latest_active", mailtriage.ErrSessionNotFound).
				WithContext(map[string]any{"message_id": messageID})
		}
		return nil, mailtriage.NewPersistenceError("session.latest_active", err).
			WithContext(map[string]any{"message_id": messageID})
	}
	return s.Get(ctx, id)
}

// Complete marks the session completed and removes the active index
// entry if it still points at this session.
func (s *RedisStore) Complete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Status = StatusCompleted
	sess.UpdatedAt = time.Now().UTC()
	if err := s.Put(ctx, sess); err != nil {
		return err
	}

	current, err := s.client.Get(ctx, activeKeyPrefix+sess.MessageID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return mailtriage.NewPersistenceError("session.complete", err).
			WithContext(map[string]any{"session_id": id})
	}
	if current == id {
		if err := s.client.Del(ctx, activeKeyPrefix+sess.MessageID).Err(); err != nil {
			return mailtriage.NewPersistenceError("session.complete", err).
				WithContext(map[string]any{"session_id": id})
		}
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
