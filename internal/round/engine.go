// Package round — engine.go
//
// The top-level match state machine: preparation -> play -> defense ->
// end, across five rounds, applying per-round difficulty and collecting
// defense submissions. Phase transitions sleep through each phase's
// duration and can be cut short by context cancellation.
package round

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Hyunwoo2267/ComNetProject/internal/attack"
	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
	"github.com/Hyunwoo2267/ComNetProject/internal/player"
	"github.com/Hyunwoo2267/ComNetProject/internal/score"
	"github.com/Hyunwoo2267/ComNetProject/internal/traffic"
)

// State is a tagged value over the match lifecycle.
type State int

const (
	StateWaiting State = iota
	StatePreparation
	StatePlaying
	StateDefense
	StateRoundEnd
	StateGameEnd
)

// String renders the wire-protocol state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StatePreparation:
		return "PREPARATION"
	case StatePlaying:
		return "PLAYING"
	case StateDefense:
		return "DEFENSE"
	case StateRoundEnd:
		return "ROUND_END"
	case StateGameEnd:
		return "GAME_END"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Timing constants, exposed as vars (not consts) rather than consts so
// tests and startup config can shrink or override them without forking
// the engine.
var (
	PreparationDuration = 10 * time.Second
	PlayingDuration      = 90 * time.Second
	GameStartDelay       = 3 * time.Second
	RoundEndDelay        = 5 * time.Second
	TimeUpdateInterval   = 10 * time.Second
)

// MinPlayers is the minimum roster size required to start a match.
// Exposed as a var, like the timing constants above, so config can
// override it at startup.
var MinPlayers = 2

// Registry is the subset of player.Registry the engine needs.
type Registry interface {
	Count() int
	ListInfos() []player.Info
	ResetAllRoundData()
	UpdateScore(id string, delta int) int
	UpdateHP(id string, delta int) int
	AttacksReceived(id string) []string
}

// Coordinator is the subset of attack.Coordinator the engine drives.
type Coordinator interface {
	SetPlaying(bool)
	SetCap(int)
	ResetRound()
	CommittedList() []attack.Committed
}

// Broadcaster is how the engine reaches connected players. Implemented
// by the session layer; kept as an interface so the engine never holds a
// session back-pointer.
type Broadcaster interface {
	BroadcastGameStart()
	BroadcastRoundStart(roundNum int, timeRemaining int, diff Difficulty)
	BroadcastPlaying(roundNum, timeRemaining int, message string)
	BroadcastTimeUpdate(timeRemaining int)
	BroadcastDefensePhase(roundNum, timeRemaining int)
	BroadcastScore(playerID string, scoreVal, hp, correct int, reason string)
	BroadcastRoundEnd(roundNum int, players []player.Info)
	BroadcastGameEnd(rankings []RankingEntry, winner *string)
	BroadcastPlayerList(players []player.Info)
}

// RankingEntry is one row of the final standings.
type RankingEntry struct {
	Rank     int
	PlayerID string
	Score    int
	HP       int
}

// StatusProjection answers the admin surface's status operation.
type StatusProjection struct {
	State        string
	Round        int
	TotalRounds  int
	PlayerCount  int
	Players      []player.Info
	DifficultyOK bool
	Difficulty   Difficulty
}

// Engine drives one match. It takes no persistent lock while composing
// its components across phase boundaries — each call below acquires only
// that component's own lock.
type Engine struct {
	players Registry
	coord   Coordinator
	bcast   Broadcaster
	metrics *observability.Metrics

	dummy *traffic.Dummy
	noise *traffic.Noise
	roster traffic.RosterSource
	decoyEmit traffic.DecoyEmitter

	mu          sync.Mutex
	state       State
	round       int
	running     bool
	cancelMatch context.CancelFunc

	defMu     sync.Mutex
	defenses  map[string]map[string]struct{}
}

// New constructs an Engine. dummy/noise are long-lived generators the
// engine reconfigures per round; decoy is built fresh each round since
// its run duration is round-scoped.
func New(players Registry, coord Coordinator, bcast Broadcaster, dummy *traffic.Dummy, noise *traffic.Noise, roster traffic.RosterSource, decoyEmit traffic.DecoyEmitter) *Engine {
	return &Engine{
		players:   players,
		coord:     coord,
		bcast:     bcast,
		dummy:     dummy,
		noise:     noise,
		roster:    roster,
		decoyEmit: decoyEmit,
		state:     StateWaiting,
		defenses:  make(map[string]map[string]struct{}),
	}
}

// ErrNotEnoughPlayers is returned by Start when fewer than MinPlayers are
// connected.
var ErrNotEnoughPlayers = fmt.Errorf("round: at least %d players required to start", MinPlayers)

// ErrAlreadyRunning is returned by Start if a match is already underway.
var ErrAlreadyRunning = fmt.Errorf("round: match already in progress")

// Start launches the match loop in the background. Returns immediately;
// the loop runs until all five rounds complete or Stop is called.
func (e *Engine) Start(parent context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	if e.players.Count() < MinPlayers {
		e.mu.Unlock()
		return ErrNotEnoughPlayers
	}
	ctx, cancel := context.WithCancel(parent)
	e.cancelMatch = cancel
	e.running = true
	e.mu.Unlock()

	go e.run(ctx)
	return nil
}

// Stop cancels an in-progress match, returns to WAITING, resets
// per-round data, and broadcasts a synthetic GAME_END.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancelMatch
	e.running = false
	e.setState(StateWaiting)
	e.round = 0
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.CurrentRound.Set(0)
	}

	if cancel != nil {
		cancel()
	}
	e.coord.SetPlaying(false)
	e.players.ResetAllRoundData()
	e.coord.ResetRound()
	e.clearDefenses()
	e.bcast.BroadcastGameEnd(nil, nil)
}

// Status returns a snapshot for the admin surface.
func (e *Engine) Status() StatusProjection {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := StatusProjection{
		State:       e.state.String(),
		Round:       e.round,
		TotalRounds: TotalRounds,
		PlayerCount: e.players.Count(),
		Players:     e.players.ListInfos(),
	}
	if e.round >= 1 && e.round <= TotalRounds {
		s.DifficultyOK = true
		s.Difficulty = Profile(e.round)
	}
	return s
}

// SubmitDefense unions addrs into playerID's accumulated submission for
// the current round (idempotent: resubmitting the same set is a no-op).
func (e *Engine) SubmitDefense(playerID string, addrs []string) {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	set, ok := e.defenses[playerID]
	if !ok {
		set = make(map[string]struct{})
		e.defenses[playerID] = set
	}
	for _, a := range addrs {
		set[a] = struct{}{}
	}
}

func (e *Engine) defenseSet(playerID string) map[string]struct{} {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	return e.defenses[playerID]
}

func (e *Engine) clearDefenses() {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	e.defenses = make(map[string]map[string]struct{})
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if e.metrics is nil.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

func (e *Engine) setState(s State) {
	e.state = s
	if e.metrics != nil {
		e.metrics.RoundTransitionsTotal.WithLabelValues(s.String()).Inc()
	}
}

// sleepOrDone blocks for d, or returns false early if ctx is cancelled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) run(ctx context.Context) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.bcast.BroadcastGameStart()
	if !sleepOrDone(ctx, GameStartDelay) {
		return
	}

	for round := 1; round <= TotalRounds; round++ {
		e.mu.Lock()
		e.round = round
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.CurrentRound.Set(float64(round))
		}

		if !e.runRound(ctx, round) {
			return
		}
	}

	e.endGame()
}

func (e *Engine) runRound(ctx context.Context, round int) bool {
	profile := Profile(round)

	e.dummy.SetInterval(profile.DummyInterval, profile.DummyInterval*2)
	e.players.ResetAllRoundData()
	e.coord.ResetRound()
	e.coord.SetCap(profile.AttackCap)
	e.clearDefenses()

	// ── Preparation ──
	e.mu.Lock()
	e.setState(StatePreparation)
	e.mu.Unlock()
	e.bcast.BroadcastRoundStart(round, int(PreparationDuration.Seconds()), profile)
	if !sleepOrDone(ctx, PreparationDuration) {
		return false
	}

	// ── Playing ──
	e.mu.Lock()
	e.setState(StatePlaying)
	e.mu.Unlock()
	e.coord.SetPlaying(true)
	e.bcast.BroadcastPlaying(round, int(PlayingDuration.Seconds()), "Round in progress")

	roundCtx, cancelRound := context.WithCancel(ctx)
	if profile.NoiseTraffic {
		e.noise.SetInterval(3.0, 8.0)
		go e.noise.Run(roundCtx)
	}
	if profile.DecoyAttacks {
		decoy := traffic.NewDecoy(e.roster, e.decoyEmit, int64(round))
		decoy.SetMetrics(e.metrics)
		go decoy.Run(roundCtx, PlayingDuration, profile.DecoyCount)
	}

	ok := e.countdownPlaying(ctx, round)
	cancelRound()
	e.coord.SetPlaying(false)
	if !ok {
		return false
	}

	// ── Defense ──
	e.mu.Lock()
	e.setState(StateDefense)
	e.mu.Unlock()
	defenseDuration := time.Duration(profile.DefenseTime) * time.Second
	e.bcast.BroadcastDefensePhase(round, int(defenseDuration.Seconds()))
	if !sleepOrDone(ctx, defenseDuration) {
		return false
	}

	// ── Round end ──
	e.mu.Lock()
	e.setState(StateRoundEnd)
	e.mu.Unlock()
	e.scoreRound(round, profile)
	e.bcast.BroadcastRoundEnd(round, e.players.ListInfos())
	return sleepOrDone(ctx, RoundEndDelay)
}

// countdownPlaying sleeps through the playing phase, emitting a
// TIME_UPDATE every TimeUpdateInterval.
func (e *Engine) countdownPlaying(ctx context.Context, round int) bool {
	remaining := PlayingDuration
	for remaining > 0 {
		tick := TimeUpdateInterval
		if remaining < tick {
			tick = remaining
		}
		if !sleepOrDone(ctx, tick) {
			return false
		}
		remaining -= tick
		if remaining > 0 {
			e.bcast.BroadcastTimeUpdate(int(remaining.Seconds()))
		}
	}
	return true
}

func (e *Engine) scoreRound(round int, profile Difficulty) {
	weights := score.WeightsForRound(round)
	for _, info := range e.players.ListInfos() {
		real := e.players.AttacksReceived(info.PlayerID)
		submitted := e.defenseSet(info.PlayerID)
		if submitted == nil {
			submitted = map[string]struct{}{}
		}
		result := score.Compute(real, submitted, weights)

		newScore := e.players.UpdateScore(info.PlayerID, result.ScoreDelta)
		newHP := e.players.UpdateHP(info.PlayerID, result.HPDelta)
		if e.metrics != nil {
			e.metrics.ScoreDeltaHistogram.Observe(float64(result.ScoreDelta))
			if result.HPDelta < 0 {
				e.metrics.HPDamageTotal.Add(float64(-result.HPDelta))
			}
		}

		reason := fmt.Sprintf("correct=%d wrong=%d missed=%d", result.Correct, result.Wrong, result.Missed)
		e.bcast.BroadcastScore(info.PlayerID, newScore, newHP, result.Correct, reason)
	}
}

func (e *Engine) endGame() {
	e.mu.Lock()
	e.setState(StateGameEnd)
	e.mu.Unlock()

	infos := e.players.ListInfos()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Score != infos[j].Score {
			return infos[i].Score > infos[j].Score
		}
		return infos[i].HP > infos[j].HP
	})

	rankings := make([]RankingEntry, len(infos))
	var winner *string
	for i, info := range infos {
		rankings[i] = RankingEntry{Rank: i + 1, PlayerID: info.PlayerID, Score: info.Score, HP: info.HP}
		if i == 0 {
			id := info.PlayerID
			winner = &id
		}
	}

	e.bcast.BroadcastGameEnd(rankings, winner)

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.CurrentRound.Set(0)
	}
}
