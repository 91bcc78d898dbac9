// Package flowstore provides the Redis-backed flow repository.
//
// A record is stored as one hash at key "flow:{userId}". Scalar fields hold
// the flow metadata, the requirement list is a JSON field, and each
// collected attribute is its own "attr:{name}" field so a single attribute
// write is one atomic HSet.
package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "flow:"

	fieldUserID    = "user_id"
	fieldShopID    = "shop_id"
	fieldKind      = "kind"
	fieldSubjectID = "subject_id"
	fieldRequired  = "required"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"

	attrFieldPrefix = "attr:"
)

// Opts holds configuration options for the Redis flow store.
type Opts struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Option defines a configuration option for the Redis flow store.
type Option func(*Opts)

// WithAddr sets the Redis server address (host:port).
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(o *Opts) { o.Password = password }
}

// WithDB selects the Redis logical database.
func WithDB(db int) Option {
	return func(o *Opts) { o.DB = db }
}

// WithTTL overrides the abandoned-flow expiry. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// RedisStore implements Repository on a Redis hash per user.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed flow repository and verifies
// connectivity with a ping.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	cfg := Opts{TTL: DefaultFlowTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err, "addr", cfg.Addr)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Debug("RedisStore connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func flowKey(userID string) string {
	return keyPrefix + userID
}

// Get loads the flow record for a user, or (nil, nil) when none exists.
func (s *RedisStore) Get(ctx context.Context, userID string) (*models.FlowRecord, error) {
	fields, err := s.client.HGetAll(ctx, flowKey(userID)).Result()
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		slog.Debug("RedisStore Get no record", "userID", userID)
		return nil, nil
	}
	record, err := recordFromFields(fields)
	if err != nil {
		slog.Error("RedisStore Get decode failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("decode flow record for %s: %w", userID, err)
	}
	return record, nil
}

// Put replaces any existing record for the user with the given one. The
// delete and write run in a single transactional pipeline so a concurrent
// reader never observes fields from two different flows.
func (s *RedisStore) Put(ctx context.Context, record *models.FlowRecord) error {
	fields, err := fieldsFromRecord(record)
	if err != nil {
		return fmt.Errorf("encode flow record for %s: %w", record.UserID, err)
	}

	key := flowKey(record.UserID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("RedisStore Put failed", "error", err, "userID", record.UserID)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Debug("RedisStore Put succeeded", "userID", record.UserID, "kind", record.Kind, "subjectID", record.SubjectID)
	return nil
}

// setCollectedScript writes a collected attribute only when the record
// still exists. Without the guard, a write racing the key's expiry would
// resurrect a hash holding nothing but attr fields.
var setCollectedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// SetCollected writes one collected attribute as a single atomic field set
// and refreshes the record's TTL. Writing against an absent (expired)
// record is a no-op, matching the in-memory store.
func (s *RedisStore) SetCollected(ctx context.Context, userID, attribute, value string) error {
	key := flowKey(userID)
	written, err := setCollectedScript.Run(ctx, s.client, []string{key},
		attrFieldPrefix+attribute, value,
		fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		slog.Error("RedisStore SetCollected failed", "error", err, "userID", userID, "attribute", attribute)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if written == 0 {
		slog.Debug("RedisStore SetCollected skipped, record expired", "userID", userID, "attribute", attribute)
		return nil
	}
	slog.Debug("RedisStore SetCollected succeeded", "userID", userID, "attribute", attribute, "value", value)
	return nil
}

// Delete removes the user's flow record. Deleting an absent record is not
// an error.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, flowKey(userID)).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Debug("RedisStore Delete succeeded", "userID", userID)
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func fieldsFromRecord(record *models.FlowRecord) (map[string]string, error) {
	required, err := json.Marshal(record.Required)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{
		fieldUserID:    record.UserID,
		fieldShopID:    record.ShopID,
		fieldKind:      string(record.Kind),
		fieldSubjectID: record.SubjectID,
		fieldRequired:  string(required),
		fieldCreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for name, value := range record.Collected {
		fields[attrFieldPrefix+name] = value
	}
	return fields, nil
}

func recordFromFields(fields map[string]string) (*models.FlowRecord, error) {
	record := &models.FlowRecord{
		UserID:    fields[fieldUserID],
		ShopID:    fields[fieldShopID],
		Kind:      models.FlowKind(fields[fieldKind]),
		SubjectID: fields[fieldSubjectID],
		Collected: make(map[string]string),
	}
	if raw, ok := fields[fieldRequired]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &record.Required); err != nil {
			return nil, fmt.Errorf("required attributes: %w", err)
		}
	}
	if raw, ok := fields[fieldCreatedAt]; ok && raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		record.CreatedAt = t
	}
	if raw, ok := fields[fieldUpdatedAt]; ok && raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("updated_at: %w", err)
		}
		record.UpdatedAt = t
	}
	for field, value := range fields {
		if strings.HasPrefix(field, attrFieldPrefix) {
			record.Collected[strings.TrimPrefix(field, attrFieldPrefix)] = value
		}
	}
	return record, nil
}
