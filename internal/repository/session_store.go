package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/mute-meter-api/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

const maxSessionUpdateRetries = 5

// SessionStore is implemented by the Redis and in-memory session backends.
type SessionStore interface {
	Save(ctx context.Context, state *models.SessionState) error
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

var (
	_ SessionStore = (*RedisSessionStore)(nil)
	_ SessionStore = (*MemorySessionStore)(nil)
)

func sessionTTL(state *models.SessionState) (time.Duration, error) {
	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		return 0, ErrSessionNotFound
	}
	return ttl, nil
}

// RedisSessionStore keeps session state in Redis with a per-key TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisSessionStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// Save writes the full state.
func (s *RedisSessionStore) Save(ctx context.Context, state *models.SessionState) error {
	ttl, err := sessionTTL(state)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(state.ID), payload, ttl)
		if state.UserID != "" {
			// the index lives as long as the newest session it lists
			pipe.SAdd(ctx, s.userKey(state.UserID), state.ID)
			pipe.Expire(ctx, s.userKey(state.UserID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.SessionState, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &state, nil
}

// Update applies fn under an optimistic WATCH so concurrent requests of one
// session do not lose each other's writes. Errors from fn are returned as is.
func (s *RedisSessionStore) Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	key := s.key(id)
	var updated *models.SessionState

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("redis get session: %w", err)
		}
		var state models.SessionState
		if err := json.Unmarshal(raw, &state); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if err := fn(&state); err != nil {
			return err
		}
		ttl, err := sessionTTL(&state)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		}); err != nil {
			return err
		}
		updated = &state
		return nil
	}

	for i := 0; i < maxSessionUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("session %s: too much contention", id)
}

// Delete drops the session.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// DeleteByUser drops every session opened by userID and returns how many were live.
func (s *RedisSessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	var removed int64
	if len(keys) > 0 {
		if removed, err = s.client.Del(ctx, keys...).Result(); err != nil {
			return 0, fmt.Errorf("redis delete user sessions: %w", err)
		}
	}
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return 0, fmt.Errorf("redis delete user session index: %w", err)
	}
	return int(removed), nil
}

// MemorySessionStore keeps sessions in process, for single-instance deployments and tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	expiry   map[string]time.Time
	owners   map[string]string
	now      func() time.Time
}

// NewMemorySessionStore constructs an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string][]byte),
		expiry:   make(map[string]time.Time),
		owners:   make(map[string]string),
		now:      time.Now,
	}
}

// Save writes the full state.
func (s *MemorySessionStore) Save(_ context.Context, state *models.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = payload
	s.expiry[state.ID] = state.ExpiresAt
	s.owners[state.ID] = state.UserID
	return nil
}

// Get loads a session by id.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// Update applies fn while holding the store lock.
func (s *MemorySessionStore) Update(_ context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	s.sessions[id] = payload
	s.expiry[id] = state.ExpiresAt
	return state, nil
}

// Delete drops the session.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(id)
	return nil
}

// DeleteByUser drops every session opened by userID and returns how many were live.
func (s *MemorySessionStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, owner := range s.owners {
		if owner != userID {
			continue
		}
		if s.now().Before(s.expiry[id]) {
			removed++
		}
		s.drop(id)
	}
	return removed, nil
}

func (s *MemorySessionStore) drop(id string) {
	delete(s.sessions, id)
	delete(s.expiry, id)
	delete(s.owners, id)
}

func (s *MemorySessionStore) load(id string) (*models.SessionState, error) {
	raw, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(s.expiry[id]) {
		s.drop(id)
		return nil, ErrSessionNotFound
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &state, nil
}
