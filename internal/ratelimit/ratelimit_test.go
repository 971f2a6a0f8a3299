package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mbd888/fraudscope/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	l := New(cfg).WithClock(clock.now)
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiterAllow(t *testing.T) {
	l, clock := newLimiter(t, Config{RequestsPerMinute: 60, BurstSize: 5})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"), "request after burst")

	clock.advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token after a second at 60/min")
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiterRefillCappedAtBurst(t *testing.T) {
	l, clock := newLimiter(t, Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		l.Allow("k")
	}
	clock.advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow("k") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestLimiterMultipleClients(t *testing.T) {
	l, _ := newLimiter(t, Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		l.Allow("client-a")
	}
	assert.False(t, l.Allow("client-a"))
	assert.True(t, l.Allow("client-b"))
}

func TestLimiterDisabled(t *testing.T) {
	l, _ := newLimiter(t, Config{RequestsPerMinute: 0, BurstSize: 1})
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k"))
	}
	assert.Zero(t, l.Len())
}

func TestLimiterEvictIdle(t *testing.T) {
	l, clock := newLimiter(t, DefaultConfig())
	l.Allow("old")
	clock.advance(3 * time.Minute)
	l.Allow("fresh")

	l.evictIdle(2 * time.Minute)
	assert.Equal(t, 1, l.Len())
}

func TestFromRPM(t *testing.T) {
	assert.Equal(t, 5, FromRPM(12).BurstSize)
	assert.Equal(t, 10, FromRPM(60).BurstSize)
	assert.Equal(t, 60, DefaultConfig().RequestsPerMinute)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newLimiter(t, Config{RequestsPerMinute: 60, BurstSize: 2})

	router := gin.New()
	router.Use(l.Middleware())
	router.POST("/api/predict", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(metrics.RateLimitedTotal)
	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/predict", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		router.ServeHTTP(w, req)
		codes[i] = w.Code
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitedTotal))
}
