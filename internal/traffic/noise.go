// Package traffic — noise.go
//
// Active only during PLAYING when the round profile enables noise
// traffic; delivers benign player-to-player filler to obscure real
// attacks.
package traffic

import (
	"context"
	"math/rand"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
)

// PlayerRef is the minimal per-player addressing fact the noise and decoy
// generators need to pick sender/receiver pairs.
type PlayerRef struct {
	ID   string
	Host string
}

// RosterSource returns the currently connected players. Implemented by
// the session layer over internal/player.Registry.
type RosterSource interface {
	ConnectedPlayers() []PlayerRef
}

// NoiseEmitter delivers a NOISE message to one player only.
type NoiseEmitter interface {
	SendNoise(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string)
}

const (
	noiseIntervalMin = 3.0
	noiseIntervalMax = 8.0
)

// Noise runs the player-to-player filler generator on its own goroutine.
type Noise struct {
	roster  RosterSource
	emit    NoiseEmitter
	rng     *rand.Rand
	metrics *observability.Metrics

	intervalMin, intervalMax float64
}

// NewNoise returns a Noise generator with the fixed [3.0, 8.0]s tick
// window.
func NewNoise(roster RosterSource, emit NoiseEmitter, seed int64) *Noise {
	return &Noise{
		roster:      roster,
		emit:        emit,
		rng:         rand.New(rand.NewSource(seed)),
		intervalMin: noiseIntervalMin,
		intervalMax: noiseIntervalMax,
	}
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if n.metrics is nil.
func (n *Noise) SetMetrics(m *observability.Metrics) {
	n.metrics = m
}

// SetInterval overrides the fixed tick window. Exercised by tests and by
// round-engine reconfiguration between rounds; not reachable from the
// wire protocol.
func (n *Noise) SetInterval(min, max float64) {
	n.intervalMin, n.intervalMax = min, max
}

// Run blocks, emitting NOISE deliveries until ctx is cancelled.
func (n *Noise) Run(ctx context.Context) {
	for {
		wait := n.intervalMin + n.rng.Float64()*(n.intervalMax-n.intervalMin)
		timer := time.NewTimer(time.Duration(wait * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		players := n.roster.ConnectedPlayers()
		if len(players) < 2 {
			continue
		}

		sender := players[n.rng.Intn(len(players))]
		receiver := pickOtherThan(players, sender.ID, n.rng)
		if receiver == nil {
			continue
		}

		payload := "NOISE_" + randomToken(n.rng)
		n.emit.SendNoise(receiver.ID, sender.Host, receiver.Host, sender.ID, receiver.ID, payload)
		if n.metrics != nil {
			n.metrics.GeneratorEmissionsTotal.WithLabelValues("noise").Inc()
		}
	}
}

// pickOtherThan returns a uniformly random player whose ID differs from
// exclude, or nil if no such player exists.
func pickOtherThan(players []PlayerRef, exclude string, rng *rand.Rand) *PlayerRef {
	candidates := make([]PlayerRef, 0, len(players))
	for _, p := range players {
		if p.ID != exclude {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	p := candidates[rng.Intn(len(candidates))]
	return &p
}
