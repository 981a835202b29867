package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/phalanx-sec/mailtriage"
)

// EtcdConfig configures the etcd-backed store.
type EtcdConfig struct {
	// Endpoints lists the etcd cluster members.
	Endpoints []string

	// Namespace prefixes every key; defaults to "mailtriage".
	Namespace string

	// DialTimeout bounds connection establishment; defaults to 5s.
	DialTimeout time.Duration
}

// EtcdStore implements Store on an etcd cluster for deployments that
// already run one. Layout mirrors the Redis store: JSON session values
// under <ns>/session/<id> and an active index under
// <ns>/active/<messageID>.
type EtcdStore struct {
	client    *clientv3.Client
	namespace string
}

// NewEtcdStore connects to etcd and verifies connectivity.
func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, mailtriage.NewValidationError("session.etcd.connect", mailtriage.ErrInvalidConfig).
			WithContext(map[string]any{"reason": "endpoints cannot be empty"})
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "mailtriage"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, mailtriage.NewUpstreamError("session.etcd.connect", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if _, err := cli.Get(ctx, cfg.Namespace+"/health-check"); err != nil {
		cli.Close()
		return nil, mailtriage.NewUpstreamError("session.etcd.connect", err)
	}

	return &EtcdStore{client: cli, namespace: cfg.Namespace}, nil
}

func (s *EtcdStore) sessionKey(id string) string {
	return fmt.Sprintf("%s/session/%s", s.namespace, id)
}

func (s *EtcdStore) activeKey(messageID string) string {
	return fmt.Sprintf("%s/active/%s", s.namespace, messageID)
}

// Put writes the session and updates the active index for its message.
func (s *EtcdStore) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return mailtriage.NewPersistenceError("session.put", err).
			WithContext(map[string]any{"session_id": sess.ID})
	}

	if _, err := s.client.Put(ctx, s.sessionKey(sess.ID), string(data)); err != nil {
		return mailtriage.NewPersistenceError("session.put", err).
			WithContext(map[string]any{"session_id": sess.ID})
	}

	if sess.Status == StatusActive {
		if _, err := s.client.Put(ctx, s.activeKey(sess.MessageID), sess.ID); err != nil {
			return mailtriage.NewPersistenceError("session.put", err).
				WithContext(map[string]any{"message_id": sess.MessageID})
		}
	}

	return nil
}

// Get loads a session by id.
func (s *EtcdStore) Get(ctx context.Context, id string) (*Session, error) {
	resp, err := s.client.Get(ctx, s.sessionKey(id))
	if err != nil {
		return nil, mailtriage.NewPersistenceError("session.get", err).
			WithContext(map[string]any{"session_id": id})
	}
	if len(resp.Kvs) == 0 {
		return nil, mailtriage.NewNotFoundError("session.get", mailtriage.ErrSessionNotFound).
			WithContext(map[string]any{"session_id": id})
	}

	var sess Session
	if err := json.Unmarshal(resp.Kvs[0].Value, &sess); err != nil {
		return nil, mailtriage.NewPersistenceError("session.get", err).
			WithContext(map[string]any{"session_id": id})
	}
	return &sess, nil
}

// Append loads the session, adds the entries, and writes it back.
func (s *EtcdStore) Append(ctx context.Context, id string, entries ...Entry) error {
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

// LatestActive resolves the active index for a message.
func (s *EtcdStore) LatestActive(ctx context.Context, messageID string) (*Session, error) {
	resp, err := s.client.Get(ctx, s.activeKey(messageID))
	if err != nil {
		return nil, mailtriage.NewPersistenceError("session.latest_active", err).
			WithContext(map[string]any{"message_id": messageID})
	}
	if len(resp.Kvs) == 0 {
		return nil, mailtriage.NewNotFoundError("session.latest_active", mailtriage.ErrSessionNotFound).
			WithContext(map[string]any{"message_id": messageID})
	}
	return s.Get(ctx, string(resp.Kvs[0].Value))
}

// Complete marks the session completed and removes the active index
// entry if it still points at this session.
func (s *EtcdStore) Complete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Status = StatusCompleted
	sess.UpdatedAt = time.Now().UTC()
	if err := s.Put(ctx, sess); err != nil {
		return err
	}

	key := s.activeKey(sess.MessageID)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return mailtriage.NewPersistenceError("session.complete", err).
			WithContext(map[string]any{"session_id": id})
	}
	if len(resp.Kvs) > 0 && string(resp.Kvs[0].Value) == id {
		if _, err := s.client.Delete(ctx, key); err != nil {
			return mailtriage.NewPersistenceError("session.complete", err).
				WithContext(map[string]any{"session_id": id})
		}
	}
	return nil
}

// Close closes the etcd connection.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
