package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// staleLimiterTTL 超过该时间未访问的 IP 限流器会被清理
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

// ipRateLimiter 每个 IP 一个令牌桶
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    rate.Limit
	burst    int
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

func (l *ipRateLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[ip] = e
	}
	e.lastAccessed = now
	return e.limiter
}

// cleanup 删除长时间未访问的限流器
func (l *ipRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.limiters {
		if now.Sub(e.lastAccessed) > staleLimiterTTL {
			delete(l.limiters, ip)
		}
	}
}

// runCleanup 定期清理，ctx 取消后退出
func (l *ipRateLimiter) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.cleanup(now)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// LoginRateLimit 登录接口限流，每个 IP 每分钟 perMinute 次，允许 burst 次突发，超出返回 429
// 后台清理协程随 ctx 结束
func LoginRateLimit(ctx context.Context, perMinute, burst int) gin.HandlerFunc {
	limiter := newIPRateLimiter(perMinute, burst)
	go limiter.runCleanup(ctx, cleanupInterval)

	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Too many login attempts, please try again later",
			})
			return
		}
		c.Next()
	}
}
