package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DeliveryLimiter bounds how fast one sender may deliver notifications to other users.
// Each sender gets an independent token bucket.
type DeliveryLimiter struct {
	mu        sync.Mutex
	senders   map[string]*senderLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewDeliveryLimiter allows perMinute deliveries per sender with the given burst. It returns nil,
// meaning unlimited, when perMinute is not positive.
func NewDeliveryLimiter(perMinute, burst int) *DeliveryLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &DeliveryLimiter{
		senders: make(map[string]*senderLimiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes one token for sender. A nil limiter always allows.
func (l *DeliveryLimiter) Allow(sender string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	entry, ok := l.senders[sender]
	if !ok {
		entry = &senderLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.senders[sender] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweepLocked drops idle senders at most once per TTL.
func (l *DeliveryLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for sender, entry := range l.senders {
		if now.Sub(entry.lastSeen) >= limiterIdleTTL {
			delete(l.senders, sender)
		}
	}
}
