package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ams-console:session:"

// Store persists sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps sessions in process memory. Reads extend the idle TTL.
type MemoryStore struct {
	items *ttlcache.Cache[string, []byte]
}

// NewMemoryStore returns a started in-memory store.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	items := ttlcache.New(
		ttlcache.WithTTL[string, []byte](idleTTL),
	)
	go items.Start()
	return &MemoryStore{items: items}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	item := m.items.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	return decode(item.Value())
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, sess *Session) error {
	raw, err := json.Marshal(sess.record())
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	m.items.Set(sess.ID(), raw, ttlcache.DefaultTTL)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.items.Delete(id)
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.items.Len()
}

// Close stops background eviction.
func (m *MemoryStore) Close() error {
	m.items.Stop()
	return nil
}

// RedisStore keeps sessions in Redis so they survive restarts and can be read
// by several console replicas. Open forms and delete confirmations are not
// part of the session; they stay in the memory of the process that created
// them, so replicas behind a load balancer need sticky sessions.
type RedisStore struct {
	client  redis.UniversalClient
	idleTTL time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, idleTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, idleTTL: idleTTL}
}

// Load implements Store. Reading a session extends its idle TTL.
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.GetEx(ctx, redisKey(id), r.idleTTL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return decode(raw)
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess.record())
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(sess.ID()), raw, r.idleTTL).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Ping checks connectivity; used by readiness.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func decode(raw []byte) (*Session, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if rec.ID == "" {
		return nil, ErrNotFound
	}
	return fromRecord(rec), nil
}
