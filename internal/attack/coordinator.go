// Package attack — coordinator.go
//
// The two-phase P2P attack approval protocol. A player never sends a
// hostile packet to another player directly until the server authorises
// it; the server then watches both endpoints confirm the exchange before
// crediting it.
//
// States per attack: NEW -> PENDING -> COMMITTED, or NEW -> REJECTED, or
// PENDING -> TIMEOUT.
//
// Only the two-phase approval/confirmation path is implemented; a
// single-shot attack path with no server approval step is deliberately
// not supported.
//
// Locking discipline: the coordinator's own lock guards pending/committed
// state only. It may call into the player registry (lock order:
// coordinator -> registry, never reversed) but never calls back into
// itself while holding its lock, so no deadlock can arise from that call.
package attack

import (
	"fmt"
	"sync"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
)

// ApprovalTimeout is how long a pending attack waits for both
// confirmations before it is silently discarded.
const ApprovalTimeout = 5 * time.Second

// Denial reason templates, checked in a fixed order. DenyCapReached is
// formatted with the offending count/cap.
const (
	DenySelfAttack   = "self-attack forbidden"
	DenyNotPlaying   = "not in play phase"
	DenyNoDifficulty = "no difficulty"
	DenyNoSuchTarget = "no such target"
	DenyAttackerGone = "attacker gone"
)

// Target is the player-registry surface the coordinator needs. Kept
// narrow and injected so the coordinator never imports the session layer.
type Target struct {
	ID    string
	Host  string
	Port  int
	Index int
}

// Lookup resolves player ids to addressing/registry facts the coordinator
// needs for approval and commit. Implemented by internal/player.Registry
// via a small adapter in internal/session.
type Lookup interface {
	// Resolve returns (target, true) if id is a connected player.
	Resolve(id string) (Target, bool)
	// RecordAttackReceived appends attackerHost to target's received multiset.
	RecordAttackReceived(targetID, attackerHost string)
}

// Notifier delivers the two approval-path messages. Implemented by the
// session layer; kept as an interface so the coordinator has no
// back-pointer to it.
type Notifier interface {
	NotifyApproved(attackerID string, msg ApprovedNotice)
	NotifyIncoming(targetID string, msg IncomingNotice)
}

// ApprovedNotice carries the fields an ATTACK_APPROVED message needs.
type ApprovedNotice struct {
	AttackID   string
	TargetHost string
	TargetPort int
	TargetID   string
}

// IncomingNotice carries the fields an INCOMING_ATTACK_WARNING needs.
type IncomingNotice struct {
	AttackID   string
	AttackerIP string
	AttackerID string
}

// Committed is one entry of the append-only per-round committed list.
type Committed struct {
	AttackerID   string
	TargetID     string
	AttackerHost string
	Timestamp    time.Time
}

type pending struct {
	attackerID   string
	targetID     string
	attackerHost string
	attackerSent bool
	targetRecv   bool
	timer        *time.Timer
}

// Coordinator owns pending and committed attack state for the current
// round. It is safe for concurrent use.
type Coordinator struct {
	mu sync.Mutex

	registry Lookup
	notify   Notifier
	metrics  *observability.Metrics

	playing    bool
	cap        int
	seq        uint64
	pendingByID map[string]*pending
	countByAttacker map[string]int
	committed  []Committed
}

// New returns a Coordinator with no active round. Call SetPlaying/SetCap
// before accepting requests.
func New(registry Lookup, notify Notifier) *Coordinator {
	return &Coordinator{
		registry:        registry,
		notify:          notify,
		pendingByID:     make(map[string]*pending),
		countByAttacker: make(map[string]int),
	}
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if c.metrics is nil.
func (c *Coordinator) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// SetPlaying toggles whether request_approval may succeed. The round
// engine calls this on entering/leaving the PLAYING phase.
func (c *Coordinator) SetPlaying(playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = playing
}

// SetCap sets the per-player attack cap for the current round's
// difficulty profile. 0 means no difficulty loaded.
func (c *Coordinator) SetCap(cap int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap = cap
}

// ResetRound clears the committed list and per-attacker counters. Any
// still-pending attacks from the previous round are cancelled first.
func (c *Coordinator) ResetRound() {
	c.mu.Lock()
	pendings := make([]*pending, 0, len(c.pendingByID))
	for id, p := range c.pendingByID {
		pendings = append(pendings, p)
		delete(c.pendingByID, id)
	}
	c.committed = nil
	c.countByAttacker = make(map[string]int)
	c.mu.Unlock()

	for _, p := range pendings {
		p.timer.Stop()
	}
}

// Committed returns a copy of the current round's committed attack list.
func (c *Coordinator) CommittedList() []Committed {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Committed, len(c.committed))
	copy(out, c.committed)
	return out
}

// AttackerCount returns the number of committed attacks credited to
// attackerID this round.
func (c *Coordinator) AttackerCount(attackerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countByAttacker[attackerID]
}

// RequestApproval evaluates and, if approved, arms a new attack. On
// approval it also notifies both endpoints via the injected Notifier —
// the caller does not need to send ATTACK_APPROVED/INCOMING_ATTACK_WARNING
// itself.
func (c *Coordinator) RequestApproval(attackerID, targetID string) (attackID string, reason string, approved bool) {
	if attackerID == targetID {
		c.countOutcome("self_attack")
		return "", DenySelfAttack, false
	}

	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		c.countOutcome("not_playing")
		return "", DenyNotPlaying, false
	}
	if c.cap <= 0 {
		c.mu.Unlock()
		c.countOutcome("no_difficulty")
		return "", DenyNoDifficulty, false
	}
	if n := c.countByAttacker[attackerID]; n >= c.cap {
		c.mu.Unlock()
		c.countOutcome("cap_reached")
		return "", fmt.Sprintf("cap reached (%d/%d)", n, c.cap), false
	}
	c.mu.Unlock()

	target, ok := c.registry.Resolve(targetID)
	if !ok {
		c.countOutcome("no_such_target")
		return "", DenyNoSuchTarget, false
	}
	attacker, ok := c.registry.Resolve(attackerID)
	if !ok {
		c.countOutcome("attacker_gone")
		return "", DenyAttackerGone, false
	}

	c.mu.Lock()
	c.seq++
	id := fmt.Sprintf("%s→%s_%d_%d", attackerID, targetID, time.Now().Unix(), c.seq)

	p := &pending{
		attackerID:   attackerID,
		targetID:     targetID,
		attackerHost: attacker.Host,
	}
	p.timer = time.AfterFunc(ApprovalTimeout, func() { c.onTimeout(id) })
	c.pendingByID[id] = p
	c.mu.Unlock()

	c.notify.NotifyApproved(attackerID, ApprovedNotice{
		AttackID:   id,
		TargetHost: target.Host,
		TargetPort: target.Port,
		TargetID:   targetID,
	})
	c.notify.NotifyIncoming(targetID, IncomingNotice{
		AttackID:   id,
		AttackerIP: attacker.Host,
		AttackerID: attackerID,
	})

	c.countOutcome("approved")
	return id, "", true
}

func (c *Coordinator) countOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.AttackRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

// ConfirmSent records the attacker's SENT confirmation. Unknown ids are
// ignored (the attack may already have timed out).
func (c *Coordinator) ConfirmSent(attackID string) {
	c.commitIfReady(attackID, func(p *pending) { p.attackerSent = true })
}

// ConfirmReceived records the target's RECEIVED confirmation.
func (c *Coordinator) ConfirmReceived(attackID string) {
	c.commitIfReady(attackID, func(p *pending) { p.targetRecv = true })
}

func (c *Coordinator) commitIfReady(attackID string, mark func(*pending)) {
	c.mu.Lock()
	p, ok := c.pendingByID[attackID]
	if !ok {
		c.mu.Unlock()
		return
	}
	mark(p)
	ready := p.attackerSent && p.targetRecv
	if ready {
		delete(c.pendingByID, attackID)
		c.countByAttacker[p.attackerID]++
		c.committed = append(c.committed, Committed{
			AttackerID:   p.attackerID,
			TargetID:     p.targetID,
			AttackerHost: p.attackerHost,
			Timestamp:    time.Now(),
		})
	}
	c.mu.Unlock()

	if !ready {
		return
	}
	p.timer.Stop()
	c.registry.RecordAttackReceived(p.targetID, p.attackerHost)
	if c.metrics != nil {
		c.metrics.AttacksCommittedTotal.Inc()
	}
}

func (c *Coordinator) onTimeout(attackID string) {
	c.mu.Lock()
	_, existed := c.pendingByID[attackID]
	delete(c.pendingByID, attackID)
	c.mu.Unlock()
	if existed && c.metrics != nil {
		c.metrics.AttacksTimedOutTotal.Inc()
	}
}
