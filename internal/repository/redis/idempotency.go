package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix   = "LOCK:"
	resultPrefix = "RES:"
)

// Deletes KEYS[1] only while it still holds the claim token ARGV[1].
const luaReleaseLock = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// IdempotencyStore keeps either an in-flight claim or a finished response
// under one key. It also serves as a plain claim lock (AcquireLock/Release).
type IdempotencyStore struct {
	rdb     lockClient
	ttl     time.Duration
	release *redis.Script
}

func NewIdempotencyStore(rdb lockClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		rdb:     rdb,
		ttl:     ttl,
		release: redis.NewScript(luaReleaseLock),
	}
}

// AcquireLock claims key for lockTTL. The returned token must be passed to
// Release; a claim that expired and was taken by someone else is left alone.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (string, bool, error) {
	token := lockPrefix + uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil || !ok {
		return "", false, err
	}

	return token, true, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key, token string) error {
	return s.release.Run(ctx, s.rdb, []string{key}, token).Err()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, status int, jsonPayload string) error {
	val := resultPrefix + encodeStatus(status) + jsonPayload
	return s.rdb.Set(ctx, key, val, s.ttl).Err()
}

// GetResult returns the stored status code and body for a finished request.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (int, string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}

	rest, ok := strings.CutPrefix(v, resultPrefix)
	if !ok {
		return 0, "", false, nil
	}

	status, body, ok := decodeStatus(rest)
	if !ok {
		return 0, "", false, nil
	}

	return status, body, true, nil
}

// status is stored as a fixed three digit prefix of the payload.
func encodeStatus(status int) string {
	if status < 100 || status > 999 {
		status = 200
	}
	return strconv.Itoa(status)
}

func decodeStatus(s string) (int, string, bool) {
	if len(s) < 3 {
		return 0, "", false
	}
	n, err := strconv.Atoi(s[:3])
	if err != nil || n < 100 {
		return 0, "", false
	}
	return n, s[3:], true
}
