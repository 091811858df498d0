// Package ratelimit implements the per-connection token bucket guarding
// the session layer against message floods.
//
// Default budget: capacity 40, fully refilled every 2 seconds. Cost is
// flat per message; no protocol message is more "expensive" to allow
// than another.
//
// Invariants:
//   - tokens ∈ [0, capacity] at all times.
//   - Consume() is atomic under mutex.
//   - Refill goroutine runs for the lifetime of the Bucket.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity and DefaultRefillPeriod are the default per-connection
// budget: 40 tokens, fully refilled every 2s.
const (
	DefaultCapacity     = 40
	DefaultRefillPeriod = 2 * time.Second

	// MessageCost is the flat cost of accepting one inbound message.
	MessageCost = 1
)

// Bucket is a thread-safe token bucket for rate-limiting inbound
// messages on one connection. Each tick of refillPeriod resets the
// bucket to full capacity rather than adding a fixed increment.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and refill period, and
// starts its refill goroutine. Call Close to stop the goroutine when the
// owning connection closes.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("ratelimit.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("ratelimit.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens. Returns true if they were
// available and deducted; false if the caller should reject or
// disconnect.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// Allow consumes MessageCost for one inbound message.
func (b *Bucket) Allow() bool {
	return b.Consume(MessageCost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 {
	return b.consumedTotal.Load()
}

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 {
	return b.refillCount.Load()
}

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() {
	close(b.stop)
}
