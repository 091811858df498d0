package round

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/attack"
	"github.com/Hyunwoo2267/ComNetProject/internal/player"
	"github.com/Hyunwoo2267/ComNetProject/internal/traffic"
)

type fakeRegistry struct {
	mu     sync.Mutex
	infos  []player.Info
	scores map[string]int
	hps    map[string]int
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	f := &fakeRegistry{scores: map[string]int{}, hps: map[string]int{}}
	for _, id := range ids {
		f.infos = append(f.infos, player.Info{PlayerID: id, IP: "10.0.0.1", HP: 100, IsConnected: true})
		f.hps[id] = 100
	}
	return f
}

func (f *fakeRegistry) Count() int { f.mu.Lock(); defer f.mu.Unlock(); return len(f.infos) }

func (f *fakeRegistry) ListInfos() []player.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]player.Info, len(f.infos))
	for i, info := range f.infos {
		info.Score = f.scores[info.PlayerID]
		info.HP = f.hps[info.PlayerID]
		out[i] = info
	}
	return out
}

func (f *fakeRegistry) ResetAllRoundData() {}

func (f *fakeRegistry) UpdateScore(id string, delta int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[id] += delta
	return f.scores[id]
}

func (f *fakeRegistry) UpdateHP(id string, delta int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hps[id] += delta
	if f.hps[id] < 0 {
		f.hps[id] = 0
	}
	if f.hps[id] > 100 {
		f.hps[id] = 100
	}
	return f.hps[id]
}

func (f *fakeRegistry) AttacksReceived(id string) []string { return nil }

type fakeCoord struct {
	mu      sync.Mutex
	playing bool
	cap     int
}

func (c *fakeCoord) SetPlaying(p bool) { c.mu.Lock(); c.playing = p; c.mu.Unlock() }
func (c *fakeCoord) SetCap(n int)      { c.mu.Lock(); c.cap = n; c.mu.Unlock() }
func (c *fakeCoord) ResetRound()       {}
func (c *fakeCoord) CommittedList() []attack.Committed { return nil }

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) record(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, name)
}

func (b *fakeBroadcaster) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == name {
			return true
		}
	}
	return false
}

func (b *fakeBroadcaster) BroadcastGameStart()                      { b.record("game_start") }
func (b *fakeBroadcaster) BroadcastRoundStart(int, int, Difficulty) { b.record("round_start") }
func (b *fakeBroadcaster) BroadcastPlaying(int, int, string)        { b.record("playing") }
func (b *fakeBroadcaster) BroadcastTimeUpdate(int)                  { b.record("time_update") }
func (b *fakeBroadcaster) BroadcastDefensePhase(int, int)           { b.record("defense_phase") }
func (b *fakeBroadcaster) BroadcastScore(string, int, int, int, string) { b.record("score") }
func (b *fakeBroadcaster) BroadcastRoundEnd(int, []player.Info)     { b.record("round_end") }
func (b *fakeBroadcaster) BroadcastGameEnd([]RankingEntry, *string) { b.record("game_end") }
func (b *fakeBroadcaster) BroadcastPlayerList([]player.Info)        { b.record("player_list") }

type fakeRoster struct{}

func (fakeRoster) ConnectedPlayers() []traffic.PlayerRef { return nil }

type fakeEmitter struct{}

func (fakeEmitter) BroadcastDummy(string)                                     {}
func (fakeEmitter) SendNoise(string, string, string, string, string, string)  {}
func (fakeEmitter) SendDecoy(string, string, string, string, string, string)  {}

func shrinkTimings(t *testing.T) {
	t.Helper()
	origPrep, origPlay, origStart, origEnd, origTick := PreparationDuration, PlayingDuration, GameStartDelay, RoundEndDelay, TimeUpdateInterval
	PreparationDuration = 2 * time.Millisecond
	PlayingDuration = 5 * time.Millisecond
	GameStartDelay = 1 * time.Millisecond
	RoundEndDelay = 1 * time.Millisecond
	TimeUpdateInterval = 2 * time.Millisecond
	t.Cleanup(func() {
		PreparationDuration, PlayingDuration, GameStartDelay, RoundEndDelay, TimeUpdateInterval =
			origPrep, origPlay, origStart, origEnd, origTick
	})
}

func newTestEngine(ids ...string) (*Engine, *fakeRegistry, *fakeBroadcaster) {
	reg := newFakeRegistry(ids...)
	coord := &fakeCoord{}
	bcast := &fakeBroadcaster{}
	dummy := traffic.NewDummy(fakeEmitter{}, 1, 1000)
	noise := traffic.NewNoise(fakeRoster{}, fakeEmitter{}, 2)
	e := New(reg, coord, bcast, dummy, noise, fakeRoster{}, fakeEmitter{})
	return e, reg, bcast
}

func TestEngine_StartRejectsTooFewPlayers(t *testing.T) {
	e, _, _ := newTestEngine("solo")
	if err := e.Start(context.Background()); err != ErrNotEnoughPlayers {
		t.Fatalf("want ErrNotEnoughPlayers, got %v", err)
	}
}

func TestEngine_RunsFullMatchAndReachesGameEnd(t *testing.T) {
	shrinkTimings(t)
	e, _, bcast := newTestEngine("alice", "bob")

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		st := e.Status()
		if st.State == StateGameEnd.String() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("match did not reach GAME_END in time, last state=%s round=%d", st.State, st.Round)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !bcast.has("game_start") || !bcast.has("game_end") {
		t.Fatalf("expected game_start and game_end broadcasts, got %v", bcast.events)
	}
	if !bcast.has("round_start") || !bcast.has("round_end") {
		t.Fatalf("expected per-round broadcasts, got %v", bcast.events)
	}
}

func TestEngine_StopResetsToWaitingAndBroadcastsSyntheticGameEnd(t *testing.T) {
	shrinkTimings(t)
	PlayingDuration = time.Second // keep the match alive long enough to stop mid-round.
	e, _, bcast := newTestEngine("alice", "bob")

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	e.Stop()

	st := e.Status()
	if st.State != StateWaiting.String() {
		t.Fatalf("want WAITING after Stop, got %s", st.State)
	}
	if !bcast.has("game_end") {
		t.Fatalf("expected a synthetic game_end broadcast on Stop")
	}
}

func TestEngine_SubmitDefenseIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine("alice", "bob")
	e.SubmitDefense("alice", []string{"10.0.0.5", "10.0.0.6"})
	e.SubmitDefense("alice", []string{"10.0.0.5"})

	set := e.defenseSet("alice")
	if len(set) != 2 {
		t.Fatalf("want 2 unioned addresses, got %d", len(set))
	}
}
