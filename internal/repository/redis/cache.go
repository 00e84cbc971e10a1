package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// KV is the subset of Cache the read-through helpers need.
type KV interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, val string, ttl time.Duration) error
}

type Cache struct {
	rdb redis.Cmdable
}

func New(client redis.Cmdable) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func (c *Cache) SetString(
	ctx context.Context,
	key string,
	val string,
	ttl time.Duration,
) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

func GetJSON[T any](ctx context.Context, c KV, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

func SetJSON(
	ctx context.Context,
	c KV,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.SetString(ctx, key, string(b), ttl)
}

// GetOrSetJSON reads key from c or, on a miss, runs loader once per key
// across concurrent callers sharing sf and stores the result.
// Cache read errors degrade to a load; they are reported through onErr.
func GetOrSetJSON[T any](
	ctx context.Context,
	c KV,
	sf *singleflight.Group,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
	onErr func(err error),
) (T, error) {
	report := func(err error) {
		if err != nil && onErr != nil {
			onErr(err)
		}
	}

	v, ok, err := GetJSON[T](ctx, c, key)
	report(err)
	if ok {
		return v, nil
	}

	vAny, err, _ := sf.Do(key, func() (any, error) {
		v2, ok2, err2 := GetJSON[T](ctx, c, key)
		if ok2 {
			return v2, nil
		}
		report(err2)
		v3, err3 := loader(ctx)
		if err3 != nil {
			return nil, err3
		}
		report(SetJSON(ctx, c, key, v3, ttl))
		return v3, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("type assertion failed")
	}

	return out, nil
}
