package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"flashdeck/pkg/errors"
)

// Sealer encrypts record payloads before they reach Redis.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// RedisStore persists session records as JSON under "<prefix><id>" with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	sealer Sealer
}

// NewRedisStore creates a Redis-backed session store. sealer may be nil, in
// which case records are stored as plain JSON.
func NewRedisStore(client *redis.Client, sealer Sealer) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "flashdeck:session:",
		sealer: sealer,
	}
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "REDIS_UNAVAILABLE", "redis ping failed").
			WithContext("addr", addr)
	}
	return client, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Save writes rec with the given ttl.
func (r *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.ID == "" {
		return errors.New(errors.ErrTypeStorage, "RECORD_INVALID", "session record missing id")
	}
	if ttl <= 0 {
		return errors.New(errors.ErrTypeStorage, "TTL_INVALID", "session ttl must be positive")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORD_MARSHAL_FAILED", "failed to marshal session record")
	}

	value := string(data)
	if r.sealer != nil {
		if value, err = r.sealer.Seal(data); err != nil {
			return err
		}
	}

	if err := r.client.Set(ctx, r.key(rec.ID), value, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "REDIS_WRITE_FAILED", "failed to save session record").
			WithRetryable(true)
	}
	return nil
}

// Load reads a record. Missing keys and records that no longer open under the
// current secret both read as absent.
func (r *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "REDIS_READ_FAILED", "failed to load session record").
			WithRetryable(true)
	}

	data := []byte(val)
	if r.sealer != nil {
		if data, err = r.sealer.Open(val); err != nil {
			// Secret rotated or record tampered with
			_ = r.Delete(ctx, id)
			return nil, nil
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "RECORD_CORRUPT", "failed to unmarshal session record")
	}
	return &rec, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "REDIS_DELETE_FAILED", "failed to delete session record")
	}
	return nil
}
