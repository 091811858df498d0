// Package player — registry.go
//
// The authoritative table of connected players: network identity, score,
// health, and per-round attack facts.
//
// Two deliberate design choices:
//
//   - HP is clamped to [0, 100] on both ends.
//   - AttacksReceived is a multiset: duplicate attacker addresses are
//     appended, never deduplicated, so the scorer can compute
//     multiplicity-aware missed counts (burst-partial-defense scenario).
//
// All fields on Player are protected by the Registry's lock. Do not
// access them directly from outside this package.
package player

import (
	"errors"
	"sort"
	"sync"
)

// ErrDuplicateID is returned by Add when player_id is already connected.
var ErrDuplicateID = errors.New("player: duplicate player_id")

// Outbound is the per-connection send primitive a session installs for a
// player. The registry and every other component emit through it rather
// than touching sockets directly.
type Outbound interface {
	Send(v any) error
}

// Player is one connected participant. Score has no floor; HP is clamped
// to [0, 100].
type Player struct {
	ID              string
	Host            string // bare TCP source host, no port.
	Index           int    // insertion order, 0-based. P2P port = BasePort + Index.
	Outbound        Outbound
	Connected       bool
	Score           int
	HP              int
	AttacksReceived []string // multiset of attacker hosts, this round.
}

// Info is the broadcast-safe projection of a Player.
type Info struct {
	PlayerID    string
	IP          string
	Score       int
	HP          int
	IsConnected bool
}

const initialHP = 100

// Registry is the mutex-guarded table of all players in the current
// match. All operations are serialisable with respect to each other.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
	nextIdx int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Add registers a new player and assigns the next insertion-order index.
// Returns ErrDuplicateID if id is already connected.
func (r *Registry) Add(id, host string, out Outbound) (index int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[id]; ok && p.Connected {
		return 0, ErrDuplicateID
	}

	idx := r.nextIdx
	r.nextIdx++
	r.players[id] = &Player{
		ID:        id,
		Host:      host,
		Index:     idx,
		Outbound:  out,
		Connected: true,
		HP:        initialHP,
	}
	return idx, nil
}

// Remove marks a player disconnected and evicts them. A later Add with
// the same id succeeds and gets a fresh index.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok {
		p.Connected = false
		delete(r.players, id)
	}
}

// Lookup returns the player with the given id, or nil.
func (r *Registry) Lookup(id string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// ByAddress returns the first connected player observed at the given
// host, or nil.
func (r *Registry) ByAddress(host string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.Host == host {
			cp := *p
			return &cp
		}
	}
	return nil
}

// UpdateScore applies delta to a player's score. No floor or ceiling.
// Returns the new score, or 0 if the player is unknown.
func (r *Registry) UpdateScore(id string, delta int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return 0
	}
	p.Score += delta
	return p.Score
}

// UpdateHP applies delta to a player's HP, clamped to [0, 100]. Returns
// the new HP, or 0 if the player is unknown.
func (r *Registry) UpdateHP(id string, delta int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return 0
	}
	p.HP += delta
	if p.HP < 0 {
		p.HP = 0
	}
	if p.HP > 100 {
		p.HP = 100
	}
	return p.HP
}

// RecordAttackReceived appends attackerHost to target's per-round
// multiset. Duplicates are kept — a second hit from the same source
// still counts toward the scorer's missed_count.
func (r *Registry) RecordAttackReceived(targetID, attackerHost string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[targetID]; ok {
		p.AttacksReceived = append(p.AttacksReceived, attackerHost)
	}
}

// AttacksReceived returns a copy of a player's per-round multiset.
func (r *Registry) AttacksReceived(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil
	}
	out := make([]string, len(p.AttacksReceived))
	copy(out, p.AttacksReceived)
	return out
}

// ResetAllRoundData clears every player's per-round attack multiset.
// Score and HP persist across rounds.
func (r *Registry) ResetAllRoundData() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		p.AttacksReceived = nil
	}
}

// Count returns the number of currently connected players.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// ListInfos returns the broadcast projection of every connected player,
// in id order for determinism.
func (r *Registry) ListInfos() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, Info{
			PlayerID:    p.ID,
			IP:          p.Host,
			Score:       p.Score,
			HP:          p.HP,
			IsConnected: p.Connected,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Each calls fn for every connected player under the registry lock. fn
// must not call back into the Registry.
func (r *Registry) Each(fn func(*Player)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		fn(p)
	}
}
