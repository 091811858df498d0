// Package score — scorer.go
//
// At round end, computes each player's score/HP delta from the
// coordinator's committed attack list and the player's defense
// submission.
//
// Uses an exact multiset formula rather than plain set
// subtraction/intersection, since a player can be hit twice by the same
// source in one round and a set-based comparison would compute the
// wrong missed count for that case. Reward/penalty weights differ
// between rounds 1-4 and the final round.
package score

// Weights is the (correct, wrong, missed) multiplier triple for a round
// band.
type Weights struct {
	Correct int
	Wrong   int
	Missed  int
}

// NormalWeights applies to rounds 1-4.
var NormalWeights = Weights{Correct: 10, Wrong: -5, Missed: -3}

// FinalWeights applies to round 5.
var FinalWeights = Weights{Correct: 15, Wrong: -10, Missed: -5}

// WeightsForRound returns the weight triple for the given 1-based round
// number.
func WeightsForRound(round int) Weights {
	if round >= 5 {
		return FinalWeights
	}
	return NormalWeights
}

// hpDamagePerMissed is how much HP one missed (undetected) attack costs.
const hpDamagePerMissed = 10

// Result is one player's round outcome.
type Result struct {
	ScoreDelta int
	HPDelta    int
	Correct    int
	Wrong      int
	Missed     int
}

// Compute scores a single player. realSources is the multiset of
// attacker hosts recorded against this player this round (duplicates
// kept); submitted is the set of addresses the player reported.
func Compute(realSources []string, submitted map[string]struct{}, w Weights) Result {
	multiplicity := make(map[string]int, len(realSources))
	for _, host := range realSources {
		multiplicity[host]++
	}

	correct := 0
	missed := 0
	for host, n := range multiplicity {
		if _, hit := submitted[host]; hit {
			correct++
			if n > 1 {
				missed += n - 1
			}
		} else {
			missed += n
		}
	}

	wrong := 0
	for host := range submitted {
		if _, real := multiplicity[host]; !real {
			wrong++
		}
	}

	return Result{
		ScoreDelta: correct*w.Correct + wrong*w.Wrong + missed*w.Missed,
		HPDelta:    -missed * hpDamagePerMissed,
		Correct:    correct,
		Wrong:      wrong,
		Missed:     missed,
	}
}

// ClampHP bounds hp to [0, 100] — also enforced by internal/player's
// Registry.UpdateHP, restated here for callers that build a projected
// value before applying the delta.
func ClampHP(hp int) int {
	if hp < 0 {
		return 0
	}
	if hp > 100 {
		return 100
	}
	return hp
}

// ToSet converts a defense submission slice into a set, collapsing
// duplicates, matching the union semantics the round engine's submission
// accumulator enforces before scoring runs.
func ToSet(addrs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		out[a] = struct{}{}
	}
	return out
}
