package attack

import (
	"sync"
	"testing"
	"time"
)

type fakeRegistry struct {
	mu       sync.Mutex
	targets  map[string]Target
	received map[string][]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{targets: map[string]Target{}, received: map[string][]string{}}
}

func (f *fakeRegistry) add(id, host string, port, idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[id] = Target{ID: id, Host: host, Port: port, Index: idx}
}

func (f *fakeRegistry) Resolve(id string) (Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	return t, ok
}

func (f *fakeRegistry) RecordAttackReceived(targetID, attackerHost string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received[targetID] = append(f.received[targetID], attackerHost)
}

type fakeNotifier struct {
	mu       sync.Mutex
	approved []ApprovedNotice
	incoming []IncomingNotice
}

func (n *fakeNotifier) NotifyApproved(_ string, msg ApprovedNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, msg)
}

func (n *fakeNotifier) NotifyIncoming(_ string, msg IncomingNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming = append(n.incoming, msg)
}

func setup() (*Coordinator, *fakeRegistry, *fakeNotifier) {
	reg := newFakeRegistry()
	reg.add("A", "10.0.0.1", 10001, 0)
	reg.add("B", "10.0.0.2", 10002, 1)
	notify := &fakeNotifier{}
	c := New(reg, notify)
	c.SetPlaying(true)
	c.SetCap(3)
	return c, reg, notify
}

func TestCoordinator_SelfAttackDenied(t *testing.T) {
	c, _, notify := setup()
	_, reason, approved := c.RequestApproval("A", "A")
	if approved || reason != DenySelfAttack {
		t.Fatalf("want self-attack denial, got approved=%v reason=%q", approved, reason)
	}
	if len(notify.approved) != 0 {
		t.Fatalf("no approval should have been emitted")
	}
}

func TestCoordinator_DeniedWhenNotPlaying(t *testing.T) {
	c, _, _ := setup()
	c.SetPlaying(false)
	_, reason, approved := c.RequestApproval("A", "B")
	if approved || reason != DenyNotPlaying {
		t.Fatalf("want not-playing denial, got %v %q", approved, reason)
	}
}

func TestCoordinator_CapEnforcedAtNPlus1(t *testing.T) {
	c, reg, _ := setup()
	c.SetCap(1)

	id, _, approved := c.RequestApproval("A", "B")
	if !approved {
		t.Fatalf("first attack under cap should be approved")
	}
	c.ConfirmSent(id)
	c.ConfirmReceived(id)
	if got := c.AttackerCount("A"); got != 1 {
		t.Fatalf("want committed count 1, got %d", got)
	}

	_, reason, approved := c.RequestApproval("A", "B")
	if approved {
		t.Fatalf("second attack over cap must be denied")
	}
	if reason == "" {
		t.Fatalf("want a cap-reached reason")
	}
	_ = reg
}

func TestCoordinator_TwoPhaseCommitOnlyOnBothConfirms(t *testing.T) {
	c, _, _ := setup()
	id, _, approved := c.RequestApproval("A", "B")
	if !approved {
		t.Fatalf("expected approval")
	}
	c.ConfirmSent(id)
	if got := len(c.CommittedList()); got != 0 {
		t.Fatalf("must not commit on single confirmation, got %d entries", got)
	}
	c.ConfirmReceived(id)
	if got := len(c.CommittedList()); got != 1 {
		t.Fatalf("want exactly one commit after both confirmations, got %d", got)
	}
}

func TestCoordinator_HalfConfirmedTimesOutUncommitted(t *testing.T) {
	c, _, _ := setup()
	origTimeout := ApprovalTimeout
	_ = origTimeout
	id, _, approved := c.RequestApproval("A", "B")
	if !approved {
		t.Fatalf("expected approval")
	}
	c.ConfirmSent(id)

	time.Sleep(ApprovalTimeout + 200*time.Millisecond)

	c.ConfirmReceived(id) // arrives after timeout: must be a no-op.
	if got := len(c.CommittedList()); got != 0 {
		t.Fatalf("late confirmation after timeout must not commit, got %d entries", got)
	}
	if got := c.AttackerCount("A"); got != 0 {
		t.Fatalf("timed-out attack must not count against the cap, got %d", got)
	}
}

func TestCoordinator_UnknownTargetDenied(t *testing.T) {
	c, _, _ := setup()
	_, reason, approved := c.RequestApproval("A", "ghost")
	if approved || reason != DenyNoSuchTarget {
		t.Fatalf("want no-such-target denial, got %v %q", approved, reason)
	}
}
