package stakingd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerCaller(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.Allow("caller:a"))
	require.True(t, limiter.Allow("caller:a"))
	require.False(t, limiter.Allow("caller:a"))
	require.True(t, limiter.Allow("caller:b"), "budgets are independent")

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("caller:a"), "one token refills per second")

	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("caller:c")
	limiter.mu.Lock()
	_, stale := limiter.visitors["caller:a"]
	limiter.mu.Unlock()
	require.False(t, stale, "idle limiters are evicted")
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCaller(req.Context(), alice))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	anon.RemoteAddr = "10.0.0.9:5555"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ip:10.0.0.9", clientID(anon))
}
