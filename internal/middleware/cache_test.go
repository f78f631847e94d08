package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelC1601/back-end/internal/config"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

func cachedServer(rc *RedisCache, status *int, calls *int) *echo.Echo {
	e := echo.New()
	e.GET("/api/imagenes/obtener-todas", func(c echo.Context) error {
		*calls++
		return c.JSON(*status, map[string]any{"success": true, "count": *calls})
	}, rc.Middleware("imagenes"))
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestCacheHitAfterMiss(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewRedisCache(testCacheConfig(), rdb, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	first := get(e, "/api/imagenes/obtener-todas")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := get(e, "/api/imagenes/obtener-todas")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewRedisCache(testCacheConfig(), rdb, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	get(e, "/api/imagenes/obtener-todas?a=1")
	rec := get(e, "/api/imagenes/obtener-todas?a=2")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestCacheInvalidateDropsGroup(t *testing.T) {
	mr, rdb := newRedis(t)
	rc := NewRedisCache(testCacheConfig(), rdb, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	get(e, "/api/imagenes/obtener-todas")
	get(e, "/api/imagenes/obtener-todas?page=2")
	members, err := mr.Members("cache:group:imagenes")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	rc.Invalidate(context.Background(), "imagenes")
	assert.False(t, mr.Exists("cache:group:imagenes"))

	rec := get(e, "/api/imagenes/obtener-todas")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestCacheInvalidateLeavesOtherGroups(t *testing.T) {
	mr, rdb := newRedis(t)
	rc := NewRedisCache(testCacheConfig(), rdb, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	get(e, "/api/imagenes/obtener-todas")
	rc.Invalidate(context.Background(), "registros")

	assert.True(t, mr.Exists("cache:group:imagenes"))
	assert.Equal(t, "HIT", get(e, "/api/imagenes/obtener-todas").Header().Get("X-Cache"))
}

func TestCacheSkipsErrorResponses(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewRedisCache(testCacheConfig(), rdb, quietLogger())
	status, calls := http.StatusInternalServerError, 0
	e := cachedServer(rc, &status, &calls)

	get(e, "/api/imagenes/obtener-todas")
	rec := get(e, "/api/imagenes/obtener-todas")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestCacheSkipsOversizedBodies(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := testCacheConfig()
	cfg.MaxBodyBytes = 8
	rc := NewRedisCache(cfg, rdb, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	first := get(e, "/api/imagenes/obtener-todas")
	assert.Contains(t, first.Body.String(), `"success":true`)
	assert.Equal(t, "MISS", get(e, "/api/imagenes/obtener-todas").Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	rc := NewRedisCache(testCacheConfig(), nil, quietLogger())
	status, calls := http.StatusOK, 0
	e := cachedServer(rc, &status, &calls)

	rec := get(e, "/api/imagenes/obtener-todas")
	get(e, "/api/imagenes/obtener-todas")
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	rc.Invalidate(context.Background(), "imagenes")
}

func TestPayloadRoundTripRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 1})
	assert.False(t, ok)

	payload, err := encodePayload(http.StatusOK, http.Header{"X-A": {"b"}}, []byte("body"))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(payload)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "b", hdr.Get("X-A"))
	assert.Equal(t, "body", string(body))
}
