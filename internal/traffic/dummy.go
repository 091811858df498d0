// Package traffic — dummy.go
//
// Emits broadcast filler traffic throughout match play, at an interval
// the round engine reconfigures per difficulty profile.
package traffic

import (
	"context"
	"math/rand"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
)

// randomToken returns 8 random upper-case-or-digit characters.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomToken(rng *rand.Rand) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = tokenAlphabet[rng.Intn(len(tokenAlphabet))]
	}
	return string(b)
}

// Emitter is how a generator hands a message to the session layer. It has
// no return value: delivery is best-effort, matching the per-connection
// broadcast semantics in internal/session.
type Emitter interface {
	BroadcastDummy(payload string)
}

// Dummy runs the periodic broadcast generator on its own goroutine.
type Dummy struct {
	emit    Emitter
	rng     *rand.Rand
	metrics *observability.Metrics

	mu          chan struct{} // binary semaphore guarding intervalMin/Max
	intervalMin float64
	intervalMax float64
}

// NewDummy returns a Dummy generator with the given base interval (mean,
// in seconds); the actual per-tick interval is drawn uniformly from
// [interval, interval*2].
func NewDummy(emit Emitter, seed int64, interval float64) *Dummy {
	d := &Dummy{
		emit: emit,
		rng:  rand.New(rand.NewSource(seed)),
		mu:   make(chan struct{}, 1),
	}
	d.mu <- struct{}{}
	d.SetInterval(interval, interval*2)
	return d
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if d.metrics is nil.
func (d *Dummy) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// SetInterval reconfigures the jitter bounds. Safe to call while Run is
// active; takes effect on the next tick.
func (d *Dummy) SetInterval(min, max float64) {
	<-d.mu
	d.intervalMin, d.intervalMax = min, max
	d.mu <- struct{}{}
}

func (d *Dummy) bounds() (float64, float64) {
	<-d.mu
	defer func() { d.mu <- struct{}{} }()
	return d.intervalMin, d.intervalMax
}

// Run blocks, emitting DUMMY broadcasts until ctx is cancelled.
func (d *Dummy) Run(ctx context.Context) {
	for {
		min, max := d.bounds()
		wait := min + d.rng.Float64()*(max-min)

		timer := time.NewTimer(time.Duration(wait * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		payload := "DUMMY_" + randomToken(d.rng)
		d.emit.BroadcastDummy(payload)
		if d.metrics != nil {
			d.metrics.GeneratorEmissionsTotal.WithLabelValues("dummy").Inc()
		}
	}
}
