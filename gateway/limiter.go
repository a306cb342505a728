package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 控制请求速率，避免触发数据源限流（免费档 5 次/分钟）。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 是一个简单的令牌桶实现，rate 单位为 次/秒。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
	now    func() time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

// NewPerMinuteLimiter 按每分钟请求数构造。
func NewPerMinuteLimiter(perMin float64) *TokenBucketLimiter {
	return NewTokenBucketLimiter(perMin/60, 1)
}

// Wait 取一个令牌；令牌不足时等待补充，ctx 结束则返回其错误且不消耗令牌。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens -= 1
			l.mu.Unlock()
			return nil
		}
		sleep := time.Duration((1-l.tokens)/l.rate*float64(time.Second)) + time.Millisecond
		l.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *TokenBucketLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
}
