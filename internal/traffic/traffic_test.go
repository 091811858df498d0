package traffic

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRoster struct {
	players []PlayerRef
}

func (f fakeRoster) ConnectedPlayers() []PlayerRef { return f.players }

type fakeBroadcast struct {
	mu       sync.Mutex
	payloads []string
}

func (f *fakeBroadcast) BroadcastDummy(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
}

func TestDummy_EmitsWithinJitterWindow(t *testing.T) {
	emit := &fakeBroadcast{}
	d := NewDummy(emit, 1, 0.01) // tiny interval so the test completes fast.

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	emit.mu.Lock()
	defer emit.mu.Unlock()
	if len(emit.payloads) == 0 {
		t.Fatalf("expected at least one dummy emission")
	}
	for _, p := range emit.payloads {
		if len(p) != len("DUMMY_")+8 {
			t.Fatalf("unexpected payload shape: %q", p)
		}
	}
}

type fakeNoiseEmit struct {
	mu    sync.Mutex
	sends int
}

func (f *fakeNoiseEmit) SendNoise(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if targetID != toPlayer {
		panic("noise must deliver to the receiver only")
	}
}

func TestNoise_RequiresAtLeastTwoPlayers(t *testing.T) {
	emit := &fakeNoiseEmit{}
	roster := fakeRoster{players: []PlayerRef{{ID: "A", Host: "10.0.0.1"}}}
	n := NewNoise(roster, emit, 1)
	n.SetInterval(0.01, 0.02)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	n.Run(ctx)

	emit.mu.Lock()
	defer emit.mu.Unlock()
	if emit.sends != 0 {
		t.Fatalf("must not emit noise with fewer than 2 players, got %d sends", emit.sends)
	}
}

type fakeDecoyEmit struct {
	mu    sync.Mutex
	count int
}

func (f *fakeDecoyEmit) SendDecoy(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func TestDecoy_EmitsExactlyCountTimes(t *testing.T) {
	emit := &fakeDecoyEmit{}
	roster := fakeRoster{players: []PlayerRef{
		{ID: "A", Host: "10.0.0.1"},
		{ID: "B", Host: "10.0.0.2"},
	}}
	d := NewDecoy(roster, emit, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	d.Run(ctx, 4*time.Second, 4)

	emit.mu.Lock()
	defer emit.mu.Unlock()
	if emit.count != 4 {
		t.Fatalf("want exactly 4 decoy emissions, got %d", emit.count)
	}
}
