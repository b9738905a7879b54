package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"goladium-analytics/internal/observability"
)

// requestLogger logs every request and records its latency.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		observability.RecordHTTPRequest(route, strconv.Itoa(status), elapsed)

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": elapsed,
			"client":  c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// recovery turns handler panics into 500 responses.
func recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.WithField("panic", rec).WithField("path", c.Request.URL.Path).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
	})
}

// requestTimeout bounds the request context so store calls give up together.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu         sync.Mutex
	rps        rate.Limit
	burst      int
	clients    map[string]*clientBucket
	maxTracked int // hard limit on tracked clients
	now        func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	idleClientTTL = 3 * time.Minute // how long an unused bucket is kept
	maxClients    = 10000
)

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(2 * rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &clientLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		clients:    make(map[string]*clientBucket),
		maxTracked: maxClients,
		now:        time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= l.maxTracked {
			l.evictIdleLocked(now)
		}
		for len(l.clients) >= l.maxTracked {
			l.evictOldestLocked()
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) evictIdleLocked(now time.Time) {
	for k, b := range l.clients {
		if now.Sub(b.lastSeen) > idleClientTTL {
			delete(l.clients, k)
		}
	}
}

// evictOldestLocked drops the least recently seen bucket.
func (l *clientLimiter) evictOldestLocked() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for k, b := range l.clients {
		if !found || b.lastSeen.Before(seen) {
			oldest, seen, found = k, b.lastSeen, true
		}
	}
	if found {
		delete(l.clients, oldest)
	}
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			observability.RecordRateLimited()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "too many requests"})
			return
		}
		c.Next()
	}
}
