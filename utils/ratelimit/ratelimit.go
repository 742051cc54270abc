package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
	Reset(ctx context.Context, key string, rule Rule) error
}

// Rule is a fixed-window budget: Limit requests per Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision reports the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// incrWindow bumps the counter and arms its expiry on first use, returning
// the new count and the remaining TTL in milliseconds.
var incrWindow = redis.NewScript(`
local count = redis.call("INCRBY", KEYS[1], ARGV[1])
if count == tonumber(ARGV[1]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisLimiter is a fixed-window counter stored in Redis. The window key is
// derived from the wall clock so all nodes agree on the bucket.
type RedisLimiter struct {
	rdb      redis.Scripter
	logger   *zap.Logger
	failOpen bool
	now      func() time.Time
}

// NewRedisLimiter builds a limiter over rdb. With failOpen set, Redis errors
// let the request through instead of rejecting it.
func NewRedisLimiter(rdb redis.Scripter, logger *zap.Logger, failOpen bool) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, logger: logger, failOpen: failOpen, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	bucket := l.bucketKey(key, rule)

	res, err := incrWindow.Run(ctx, l.rdb, []string{bucket}, 1, rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request",
				zap.String("key", bucket),
				zap.Error(err),
			)
			return Decision{Allowed: true, Remaining: -1}, nil
		}
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, errors.New("rate limit script returned unexpected result")
	}

	count, ttl := res[0], res[1]
	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   count <= int64(rule.Limit),
		Remaining: remaining,
		ResetIn:   time.Duration(ttl) * time.Millisecond,
	}
	if !d.Allowed {
		l.logger.Debug("rate limit exceeded",
			zap.String("rule", rule.Name),
			zap.String("key", key),
			zap.Int64("count", count),
		)
	}
	return d, nil
}

// Reset clears the current window for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	del, ok := l.rdb.(interface {
		Del(ctx context.Context, keys ...string) *redis.IntCmd
	})
	if !ok {
		return errors.New("redis client does not support DEL")
	}
	if err := del.Del(ctx, l.bucketKey(key, rule)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

func (l *RedisLimiter) bucketKey(key string, rule Rule) string {
	window := rule.Window.Milliseconds()
	if window <= 0 {
		window = time.Minute.Milliseconds()
	}
	slot := l.now().UnixMilli() / window
	return fmt.Sprintf("ratelimit:%s:%s:%d", rule.Name, key, slot)
}

// Rules groups the per-scope budgets read from config.
type Rules struct {
	Register Rule
	Login    Rule
	Message  Rule
	API      Rule
}

// RulesFromConfig turns per-minute settings into rules. A zero value disables
// the matching scope.
func RulesFromConfig(cfg config.RateLimitConfig) Rules {
	perMinute := func(name string, n int) Rule {
		return Rule{Name: name, Limit: n, Window: time.Minute}
	}
	return Rules{
		Register: perMinute("register", cfg.RegisterPerMinute),
		Login:    perMinute("login", cfg.LoginPerMinute),
		Message:  perMinute("message", cfg.MessagePerMinute),
		API:      perMinute("api", cfg.APIPerMinute),
	}
}
