// Package cache keeps short-lived copies of dashboard responses in redis.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lotchurch/congregate/internal/metrics"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// HeaderName reports whether a response was served from the cache.
const HeaderName = "X-Cache"

// DefaultTTL is used when a non-positive ttl is configured.
const DefaultTTL = time.Minute

// ResponseCache caches successful GET responses. A cache without a redis
// client is disabled and passes every request through.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to the redis server at url. An empty url returns a disabled cache.
func New(url string, ttl time.Duration, logger *slog.Logger) (*ResponseCache, error) {
	if url == "" {
		return NewWithClient(nil, ttl, logger), nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Redis response cache connected", "addr", opts.Addr, "ttl", ttl)
	return NewWithClient(client, ttl, logger), nil
}

// NewWithClient wraps an existing client. A nil client disables caching.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{client: client, ttl: ttl, logger: logger}
}

// Enabled reports whether responses are cached.
func (c *ResponseCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Close releases the redis connection.
func (c *ResponseCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// Key builds the cache key for a request path and raw query.
func Key(path, query string) string {
	key := "response:" + path
	if query != "" {
		key += ":" + query
	}
	return key
}

// Handle is a PocketBase route middleware. Only 2xx responses with a body are
// stored, and never when the handler sent Cache-Control: no-store. Redis
// failures fall through to the handler.
func (c *ResponseCache) Handle(e *core.RequestEvent) error {
	if e.Request.Method != http.MethodGet {
		return e.Next()
	}
	if !c.Enabled() {
		metrics.CacheRequestsTotal.WithLabelValues(metrics.ResultDisabled).Inc()
		return e.Next()
	}

	ctx := e.Request.Context()
	key := Key(e.Request.URL.Path, e.Request.URL.RawQuery)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		metrics.CacheRequestsTotal.WithLabelValues(metrics.ResultHit).Inc()
		c.logger.Debug("Cache hit", "key", key)
		e.Response.Header().Set(HeaderName, "HIT")
		return e.Blob(http.StatusOK, "application/json", cached)
	case errors.Is(err, redis.Nil):
		metrics.CacheRequestsTotal.WithLabelValues(metrics.ResultMiss).Inc()
	default:
		metrics.CacheRequestsTotal.WithLabelValues(metrics.ResultError).Inc()
		c.logger.Warn("Cache read failed", "key", key, "error", err)
		return e.Next()
	}

	e.Response.Header().Set(HeaderName, "MISS")

	writer := &capturingWriter{ResponseWriter: e.Response, status: http.StatusOK}
	e.Response = writer
	err = e.Next()
	e.Response = writer.ResponseWriter
	if err != nil {
		return err
	}

	if writer.status < 200 || writer.status >= 300 || writer.body.Len() == 0 {
		return nil
	}
	if NoStore(writer.Header()) {
		c.logger.Debug("Response marked no-store, not cached", "key", key)
		return nil
	}

	if err := c.client.Set(ctx, key, writer.body.Bytes(), c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write response to cache", "key", key, "error", err)
		return nil
	}

	c.logger.Debug("Response cached",
		"key", key,
		"ttl", c.ttl,
		"size_bytes", writer.body.Len(),
	)
	return nil
}

// NoStore reports whether h forbids storing the response.
func NoStore(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Cache-Control")), "no-store")
}

// capturingWriter copies the response body while passing it through.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *capturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
