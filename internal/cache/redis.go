package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/matchmaker/internal/config"
)

// RedisCache wraps the shared Redis client. It serves two roles: a
// best-effort cache for derived counters and the pub/sub relay for the change
// feed and presence.
type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForUsedQuota is the cached count of quota slots a viewer has used on one day.
func (c *RedisCache) KeyForUsedQuota(userID uint64, day string) string {
	return fmt.Sprintf("discovery:used:%d:%s", userID, day)
}

// raiseScript sets KEYS[1] to ARGV[1] with a PX of ARGV[2] unless it already
// holds a value at least as large. Returns the value left in place.
var raiseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local n = tonumber(ARGV[1])
if cur then
	cur = tonumber(cur)
	if cur and cur >= n then
		return cur
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return n
`)

// RaiseInt stores n until ttl elapses unless key already holds a larger
// value, and returns what the key holds afterwards. For a counter that only
// grows, a writer with an older reading can never move it back.
func (c *RedisCache) RaiseInt(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	return raiseScript.Run(ctx, c.Client, []string{key}, n, max(ttl.Milliseconds(), 1)).Int64()
}

// GetInt reads an integer. ok is false on a cache miss.
func (c *RedisCache) GetInt(ctx context.Context, key string) (n int64, ok bool, err error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt entry behaves as a miss
		return 0, false, nil
	}
	return n, true, nil
}

// Publish sends payload to every subscriber of channel.
func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.Client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub connection on channels and waits until Redis has
// confirmed every subscription, so nothing published after it returns is missed.
func (c *RedisCache) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	ps := c.Client.Subscribe(ctx, channels...)
	confirmed := 0
	for confirmed < len(channels) {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		if _, ok := msg.(*redis.Subscription); ok {
			confirmed++
		}
	}
	return ps, nil
}
