// Package observability — metrics.go
//
// Prometheus metrics for the range coordinator.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: rangecoord_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Message/attack-event labels use the small fixed wire-protocol
//     vocabulary (message type, denial reason, confirm type).
//   - player_id is NOT used as a label (unbounded cardinality over a
//     match's lifetime of reconnects).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the coordinator.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Connections ──────────────────────────────────────────────────────────

	// ConnectionsTotal counts accepted TCP connections.
	ConnectionsTotal prometheus.Counter

	// PlayersConnected is the current connected player count.
	PlayersConnected prometheus.Gauge

	// MessagesReceivedTotal counts inbound frames, by message type.
	MessagesReceivedTotal *prometheus.CounterVec

	// RateLimitDropsTotal counts connections disconnected for exceeding
	// their inbound message budget.
	RateLimitDropsTotal prometheus.Counter

	// OutboundQueueOverflowsTotal counts connections disconnected because
	// their outbound queue saturated.
	OutboundQueueOverflowsTotal prometheus.Counter

	// ─── Attack lifecycle ─────────────────────────────────────────────────────

	// AttackRequestsTotal counts ATTACK_REQUEST evaluations, by outcome
	// (approved, or the specific denial reason category).
	AttackRequestsTotal *prometheus.CounterVec

	// AttacksCommittedTotal counts attacks that completed the two-phase
	// confirm handshake.
	AttacksCommittedTotal prometheus.Counter

	// AttacksTimedOutTotal counts approved attacks that never completed
	// both confirmations within the approval timeout.
	AttacksTimedOutTotal prometheus.Counter

	// ─── Traffic generators ───────────────────────────────────────────────────

	// GeneratorEmissionsTotal counts synthetic traffic emitted, by
	// generator (dummy, noise, decoy).
	GeneratorEmissionsTotal *prometheus.CounterVec

	// ─── Round lifecycle ──────────────────────────────────────────────────────

	// RoundTransitionsTotal counts round state-machine transitions, by
	// to_state.
	RoundTransitionsTotal *prometheus.CounterVec

	// CurrentRound is the round number currently in play (0 = no match
	// running).
	CurrentRound prometheus.Gauge

	// ─── Scoring ──────────────────────────────────────────────────────────────

	// ScoreDeltaHistogram records the distribution of per-player,
	// per-round score deltas.
	ScoreDeltaHistogram prometheus.Histogram

	// HPDamageTotal is the lifetime total HP damage applied across all
	// players.
	HPDamageTotal prometheus.Counter

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records BoltDB write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageLedgerEntries is the current number of ledger entries.
	StorageLedgerEntries prometheus.Gauge

	// ─── Process ──────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the coordinator started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all coordinator Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "session",
			Name:      "connections_total",
			Help:      "Total TCP connections accepted.",
		}),

		PlayersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rangecoord",
			Subsystem: "session",
			Name:      "players_connected",
			Help:      "Current number of connected players.",
		}),

		MessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Total inbound frames received, by message type.",
		}, []string{"message_type"}),

		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "session",
			Name:      "rate_limit_drops_total",
			Help:      "Total connections disconnected for exceeding their inbound message budget.",
		}),

		OutboundQueueOverflowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "session",
			Name:      "outbound_queue_overflows_total",
			Help:      "Total connections disconnected because their outbound queue saturated.",
		}),

		AttackRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "attack",
			Name:      "requests_total",
			Help:      "Total ATTACK_REQUEST evaluations, by outcome.",
		}, []string{"outcome"}),

		AttacksCommittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "attack",
			Name:      "committed_total",
			Help:      "Total attacks that completed the two-phase confirm handshake.",
		}),

		AttacksTimedOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "attack",
			Name:      "timed_out_total",
			Help:      "Total approved attacks that never completed both confirmations.",
		}),

		GeneratorEmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "traffic",
			Name:      "emissions_total",
			Help:      "Total synthetic traffic messages emitted, by generator.",
		}, []string{"generator"}),

		RoundTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "round",
			Name:      "transitions_total",
			Help:      "Total round state-machine transitions, by destination state.",
		}, []string{"to_state"}),

		CurrentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rangecoord",
			Subsystem: "round",
			Name:      "current",
			Help:      "Round number currently in play (0 = no match running).",
		}),

		ScoreDeltaHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rangecoord",
			Subsystem: "score",
			Name:      "delta",
			Help:      "Distribution of per-player, per-round score deltas.",
			Buckets:   []float64{-20, -10, -5, -3, 0, 3, 5, 10, 15, 20},
		}),

		HPDamageTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangecoord",
			Subsystem: "score",
			Name:      "hp_damage_total",
			Help:      "Lifetime total HP damage applied across all players.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rangecoord",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rangecoord",
			Subsystem: "storage",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rangecoord",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the coordinator started.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.PlayersConnected,
		m.MessagesReceivedTotal,
		m.RateLimitDropsTotal,
		m.OutboundQueueOverflowsTotal,
		m.AttackRequestsTotal,
		m.AttacksCommittedTotal,
		m.AttacksTimedOutTotal,
		m.GeneratorEmissionsTotal,
		m.RoundTransitionsTotal,
		m.CurrentRound,
		m.ScoreDeltaHistogram,
		m.HPDamageTotal,
		m.StorageWriteLatency,
		m.StorageLedgerEntries,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails. The server
// binds to addr (e.g., "127.0.0.1:9091") and serves GET /metrics and
// GET /healthz.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
