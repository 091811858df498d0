// Package traffic — decoy.go
//
// Active only during PLAYING when the round profile enables decoy
// attacks. Spaces its N emissions evenly across the round's fixed
// duration, computed once at Start rather than recomputed against
// remaining time.
package traffic

import (
	"context"
	"math/rand"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
)

// DecoyEmitter delivers a DECOY_ATTACK message attributed to a real,
// innocent player.
type DecoyEmitter interface {
	SendDecoy(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string)
}

// Decoy runs the fake-attack generator for a single round.
type Decoy struct {
	roster  RosterSource
	emit    DecoyEmitter
	rng     *rand.Rand
	metrics *observability.Metrics
}

// NewDecoy returns a Decoy generator.
func NewDecoy(roster RosterSource, emit DecoyEmitter, seed int64) *Decoy {
	return &Decoy{roster: roster, emit: emit, rng: rand.New(rand.NewSource(seed))}
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if d.metrics is nil.
func (d *Decoy) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// Run spaces count emissions across roundDuration (computed once, not
// recomputed against remaining time) and blocks until they are all sent
// or ctx is cancelled.
func (d *Decoy) Run(ctx context.Context, roundDuration time.Duration, count int) {
	if count <= 0 {
		return
	}

	interval := roundDuration.Seconds() / float64(count)

	for i := 0; i < count; i++ {
		jitter := (d.rng.Float64()*2 - 1) * 0.2 * interval
		wait := interval + jitter
		if wait < 1.0 {
			wait = 1.0
		}

		timer := time.NewTimer(time.Duration(wait * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		players := d.roster.ConnectedPlayers()
		if len(players) < 2 {
			continue
		}
		fakeSender := players[d.rng.Intn(len(players))]
		realTarget := pickOtherThan(players, fakeSender.ID, d.rng)
		if realTarget == nil {
			continue
		}

		payload := "ATTACK_TARGET_" + realTarget.ID + "_" + randomToken(d.rng)
		d.emit.SendDecoy(realTarget.ID, fakeSender.Host, realTarget.Host, fakeSender.ID, realTarget.ID, payload)
		if d.metrics != nil {
			d.metrics.GeneratorEmissionsTotal.WithLabelValues("decoy").Inc()
		}
	}
}
