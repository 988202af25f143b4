package httpx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow is a fixed-window limiter backed by Redis so that all
// replicas share one budget per client.
type RedisFixedWindow struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

func NewRedisFixedWindow(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisFixedWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindow{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

func (rl *RedisFixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := rl.incr(ctx, rl.prefix+":"+key)
	if err != nil {
		return Decision{}, err
	}
	if ttl <= 0 {
		ttl = rl.window
	}
	remaining := rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(rl.limit),
		Limit:     rl.limit,
		Remaining: remaining,
		ResetAt:   rl.now().Add(ttl),
	}, nil
}

func (rl *RedisFixedWindow) incr(ctx context.Context, key string) (int64, time.Duration, error) {
	ms := rl.window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, 0, err
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis script result %T", res)
	}
	count, err := toInt64(vals[0])
	if err != nil {
		return 0, 0, err
	}
	ttlMS, err := toInt64(vals[1])
	if err != nil {
		return 0, 0, err
	}
	return count, time.Duration(ttlMS) * time.Millisecond, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		// Lua sometimes returns strings depending on Redis config/driver conversions.
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
