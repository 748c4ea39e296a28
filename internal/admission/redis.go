package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// gcra keeps the theoretical arrival time of the next request per key. A
// request is admitted while that time is at most burst ahead of now, and each
// admission pushes it one interval further. Times are in milliseconds.
var gcra = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local tat = tonumber(redis.call("GET", KEYS[1]) or now)
if tat < now then
	tat = now
end
if tat - burst > now then
	return {0, tat - burst - now}
end
tat = tat + interval
redis.call("SET", KEYS[1], string.format("%d", tat), "PX", string.format("%d", tat - now))
return {1, 0}
`)

// RedisController is a token bucket shared by all instances. Capacity is the
// class allowance per window and tokens refill continuously, one every
// window/capacity.
type RedisController struct {
	client *redis.Client
	limits Limits
	window time.Duration
	now    func() time.Time
}

func NewRedisController(client *redis.Client, limits Limits, window time.Duration) *RedisController {
	if limits == nil {
		limits = DefaultLimits()
	}
	if window < time.Second {
		window = time.Minute
	}
	return &RedisController{client: client, limits: limits, window: window, now: time.Now}
}

func (r *RedisController) Name() string { return "redis" }

func (r *RedisController) capacity(class Class) int64 {
	n := int64(r.limits.perMinute(class)) * int64(r.window/time.Second) / 60
	if n < 1 {
		n = 1
	}
	return n
}

func (r *RedisController) interval(class Class) time.Duration {
	return r.window / time.Duration(r.capacity(class))
}

// RetryAfter is the time one token takes to refill.
func (r *RedisController) RetryAfter(class Class) time.Duration {
	return r.interval(class)
}

func (r *RedisController) Admit(ctx context.Context, identity string, class Class) (bool, error) {
	interval := r.interval(class)
	burst := interval * time.Duration(r.capacity(class)-1)
	key := fmt.Sprintf("rl:%s:%s", class, identity)

	res, err := gcra.Run(ctx, r.client, []string{key},
		r.now().UnixMilli(), interval.Milliseconds(), burst.Milliseconds()).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("rate limit script: empty reply")
	}
	return res[0] == 1, nil
}
