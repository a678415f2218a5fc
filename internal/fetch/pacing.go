package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/telemetry"
)

// pacer sleeps a uniform random duration between min and max before
// each request.
type pacer struct {
	mu  sync.Mutex
	rnd *rand.Rand
	min time.Duration
	max time.Duration
}

func newPacer(min, max time.Duration) *pacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &pacer{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		min: min,
		max: max,
	}
}

func (p *pacer) wait(ctx context.Context) error {
	delay := p.next()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *pacer) next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(p.rnd.Int63n(int64(p.max-p.min)))
}

// hostLimiter applies a shared requests-per-minute budget to each host.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newHostLimiter(requestsPerMinute int) *hostLimiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    1,
	}
}

func (h *hostLimiter) wait(ctx context.Context, rawURL string) error {
	host := harvest.HostOf(rawURL)
	if host == "" {
		host = "unknown"
	}

	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
