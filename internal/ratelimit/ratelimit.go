// Package ratelimit throttles the public, unauthenticated endpoints (FAQ and
// contact form) per client address.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether key has exceeded limit hits within window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Redis is a fixed-window limiter: INCR a per-window counter and set its
// expiry on the first hit.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis parses url (redis://…) and returns a limiter.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), prefix: "clientportal:ratelimit:"}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(c *redis.Client) *Redis {
	return &Redis{client: c, prefix: "clientportal:ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := time.Now().UnixNano() / int64(window)
	redisKey := r.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(limit), nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Close releases the connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Noop allows everything. Used when REDIS_URL is not set.
type Noop struct{}

func (Noop) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }

// Middleware rejects requests over limit per minute with 429. Limiter errors
// let the request through (logged), so a Redis outage does not take the
// public pages down. trustProxy is passed to ClientIP.
func Middleware(l Limiter, scope string, limit int, trustProxy bool, log *slog.Logger, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + ClientIP(r, trustProxy)
			ok, err := l.Allow(r.Context(), key, limit, time.Minute)
			if err != nil {
				log.Warn("rate limit check failed", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the remote address of the connection. When trustProxy is
// set the first X-Forwarded-For hop is used instead; without a proxy that
// overwrites it, the header is client-controlled.
func ClientIP(r *http.Request, trustProxy bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
