package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/logger"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the redis at addr. It returns nil when addr is
// empty or the server does not answer a ping, which turns rate limiting off.
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", "addr", addr, "error", err)
		client.Close()
		return nil
	}
	return client
}

// RateLimiter is a fixed-window limiter keyed by client IP, backed by redis
// INCR/EXPIRE. It fails open: without redis, or on a redis error, requests
// are let through.
type RateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	trustProxy  bool
	metrics     *Metrics
}

// NewRateLimiter creates a limiter. client and metrics may be nil.
// trustProxy keys clients by X-Forwarded-For; enable it only behind a proxy
// that overwrites the header.
func NewRateLimiter(client *redis.Client, maxRequests int, window time.Duration, trustProxy bool, metrics *Metrics) *RateLimiter {
	return &RateLimiter{client: client, maxRequests: maxRequests, window: window, trustProxy: trustProxy, metrics: metrics}
}

// key returns the redis counter for r in the current window.
func (l *RateLimiter) key(endpoint string, r *http.Request) string {
	return "rl:" + endpoint + ":" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + ClientIP(r, l.trustProxy)
}

// Limit applies the limiter to next. endpoint names the counter bucket and
// the metrics label.
func (l *RateLimiter) Limit(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.client == nil || l.maxRequests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := l.key(endpoint, r)
		ctx := r.Context()
		val, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			w.Header().Set("X-RateLimit-Error", "redis-error")
			next.ServeHTTP(w, r)
			return
		}
		if val == 1 {
			l.client.Expire(ctx, key, l.window)
		}

		if val > int64(l.maxRequests) {
			if l.metrics != nil {
				l.metrics.RLBlocked.WithLabelValues(endpoint).Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			httpx.JSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", nil)
			return
		}
		if l.metrics != nil {
			l.metrics.RLRequests.WithLabelValues(endpoint).Inc()
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the remote address of r. With trustProxy set, the first
// X-Forwarded-For hop wins when present.
func ClientIP(r *http.Request, trustProxy bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustProxy && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
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
