package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/EmanuelC1601/back-end/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// RedisCache caches successful GET responses per route group.  Every
// stored key is also recorded in a per-group set so a write can drop the
// whole group at once.
type RedisCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisCache returns a cache backed by rdb.  With caching disabled or a
// nil client, Middleware passes through and Invalidate does nothing.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &RedisCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *RedisCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

// Build a stable cache key honoring prefix/strategy.
func (rc *RedisCache) keyFor(group string, c echo.Context) string {
	r := c.Request()
	route := c.Path()
	query := r.URL.RawQuery

	var parts []string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", route}
	case "method_route":
		parts = []string{"method", r.Method, "route", route}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", route, "q", query}
	default: // "route_query"
		parts = []string{"route", route, "q", query}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%s:%x", rc.cfg.Prefix, group, sum[:])
}

func (rc *RedisCache) groupKey(group string) string {
	return rc.cfg.Prefix + ":group:" + group
}

// Middleware caches responses of the routes it wraps under group.
func (rc *RedisCache) Middleware(group string) echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			key := rc.keyFor(group, c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						// Echo sets Content-Length itself
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			// Miss: capture
			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK {
				return nil
			}
			// truncated bodies are never stored
			if maxBody > 0 && cw.size > maxBody {
				return nil
			}

			hdr := make(http.Header, len(c.Response().Header()))
			for k, vals := range c.Response().Header() {
				if strings.EqualFold(k, "X-Cache") {
					continue
				}
				hdr[k] = append([]string(nil), vals...)
			}
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			rc.store(context.WithoutCancel(ctx), group, key, payload)
			return nil
		}
	}
}

func (rc *RedisCache) store(ctx context.Context, group, key string, payload []byte) {
	gk := rc.groupKey(group)
	_, err := rc.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetEx(ctx, key, payload, rc.cfg.TTL)
		p.SAdd(ctx, gk, key)
		p.Expire(ctx, gk, 2*rc.cfg.TTL)
		return nil
	})
	if err != nil {
		rc.log.Warn("cache store failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Invalidate removes every cached response of group.  Errors are logged;
// entries that survive still expire after the TTL.
func (rc *RedisCache) Invalidate(ctx context.Context, group string) {
	if !rc.enabled() {
		return
	}
	gk := rc.groupKey(group)
	keys, err := rc.rdb.SMembers(ctx, gk).Result()
	if err != nil {
		rc.log.Warn("cache invalidate failed", slog.String("group", group), slog.String("error", err.Error()))
		return
	}
	if err := rc.rdb.Del(ctx, append(keys, gk)...).Err(); err != nil {
		rc.log.Warn("cache invalidate failed", slog.String("group", group), slog.String("error", err.Error()))
	}
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
