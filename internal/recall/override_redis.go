package recall

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/selfrecall/selfrecall/internal/session"
)

// DefaultOverridePrefix namespaces override keys in a shared Redis.
const DefaultOverridePrefix = "selfrecall:override:"

// deleteIfUnchanged removes KEYS[1] only while it still holds ARGV[1].
var deleteIfUnchanged = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOverrides stores pending overrides in Redis so several gateway
// processes sharing one bot account see the same one-shot delays.
// Values are "<milliseconds>|<instance>"; Take uses GETDEL so consumption
// stays atomic. Clear only drops entries this instance wrote and nobody has
// replaced since, so one replica shutting down leaves the others' overrides.
type RedisOverrides struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	instance string

	mu    sync.Mutex
	owned map[string]string // redis key -> value this instance wrote
}

// NewRedisOverrides wraps client. A zero ttl keeps overrides until consumed.
func NewRedisOverrides(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisOverrides {
	if prefix == "" {
		prefix = DefaultOverridePrefix
	}
	return &RedisOverrides{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		instance: uuid.NewString(),
		owned:    make(map[string]string),
	}
}

func (r *RedisOverrides) key(k session.Key) string { return r.prefix + k.String() }

func (r *RedisOverrides) Set(ctx context.Context, key session.Key, delay time.Duration) error {
	rk := r.key(key)
	val := strconv.FormatInt(delay.Milliseconds(), 10) + "|" + r.instance
	if err := r.client.Set(ctx, rk, val, r.ttl).Err(); err != nil {
		return fmt.Errorf("recall: redis set override: %w", err)
	}
	r.mu.Lock()
	r.owned[rk] = val
	r.mu.Unlock()
	return nil
}

func (r *RedisOverrides) Take(ctx context.Context, key session.Key) (time.Duration, bool, error) {
	rk := r.key(key)
	val, err := r.client.GetDel(ctx, rk).Result()
	if err == nil {
		r.mu.Lock()
		delete(r.owned, rk)
		r.mu.Unlock()
	}
	return r.result(val, err, "take")
}

func (r *RedisOverrides) Peek(ctx context.Context, key session.Key) (time.Duration, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	return r.result(val, err, "peek")
}

func (r *RedisOverrides) result(val string, err error, op string) (time.Duration, bool, error) {
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("recall: redis %s override: %w", op, err)
	}
	raw, _, _ := strings.Cut(val, "|")
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("recall: redis %s override: bad value %q", op, val)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

// Clear removes the overrides this instance set that are still pending.
func (r *RedisOverrides) Clear(ctx context.Context) error {
	r.mu.Lock()
	owned := r.owned
	r.owned = make(map[string]string)
	r.mu.Unlock()

	var errs []error
	for rk, val := range owned {
		if err := deleteIfUnchanged.Run(ctx, r.client, []string{rk}, val).Err(); err != nil && !errors.Is(err, redis.Nil) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recall: redis clear overrides: %w", err)
	}
	return nil
}
