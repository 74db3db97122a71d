package ratelimit

import "time"

// Endpoint classes, with capacity/refill set to 70% of the venue's
// documented limits.
const (
	ClassMarketDiscovery = "market_discovery" // 200 tokens / 10s -> 20/s, burst 200
	ClassOrderbookRead   = "orderbook_read"    // 1000 / 10s -> 100/s, burst 1000
)

// Limiter holds one Bucket per logical endpoint class.
type Limiter struct {
	buckets map[string]*Bucket
}

// NewLimiter constructs the default set of buckets for this daemon.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: map[string]*Bucket{
			ClassMarketDiscovery: NewBucket(200, 20),
			ClassOrderbookRead:   NewBucket(1000, 100),
		},
	}
}

// Bucket returns the named bucket, or nil if unknown.
func (l *Limiter) Bucket(class string) *Bucket {
	return l.buckets[class]
}

// ForceDrain drains the named bucket's class for d, per a venue Retry-After
// response. A no-op for unknown classes.
func (l *Limiter) ForceDrain(class string, d time.Duration) {
	if b := l.buckets[class]; b != nil {
		b.ForceDrain(d)
	}
}
