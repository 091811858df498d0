// Package round — difficulty.go
//
// The per-round difficulty profile table: one entry per round, pacing
// and obfuscation layers escalating from round 1 to round 5.
package round

// Difficulty is the parameter bundle controlling one round's pacing and
// obfuscation layers.
type Difficulty struct {
	Name          string
	DummyInterval float64 // seconds, mean
	AttackCap     int
	DefenseTime   int // seconds
	NoiseTraffic  bool
	DecoyAttacks  bool
	DecoyCount    int
	Hint          string
	Warning       string
}

// TotalRounds is the fixed match length.
const TotalRounds = 5

// byRound holds the five difficulty profiles, indexed by round number
// (1-based; index 0 unused).
var byRound = [TotalRounds + 1]Difficulty{
	1: {
		Name: "Introductory", DummyInterval: 2.0, AttackCap: 3, DefenseTime: 20,
		Hint: "Learn basic IP-based attack detection.",
	},
	2: {
		Name: "Beginner", DummyInterval: 1.5, AttackCap: 3, DefenseTime: 20,
		Hint: "Dummy packet frequency increases.",
	},
	3: {
		Name: "Intermediate", DummyInterval: 1.0, AttackCap: 4, DefenseTime: 20,
		NoiseTraffic: true,
		Hint:         "Noise traffic between players is now present.",
		Warning:      "Warning: non-attack traffic may also be observed.",
	},
	4: {
		Name: "Advanced", DummyInterval: 0.8, AttackCap: 4, DefenseTime: 20,
		NoiseTraffic: true,
		Hint:         "Dummy and noise traffic are more frequent.",
		Warning:      "Warning: packet analysis is harder now.",
	},
	5: {
		Name: "Final Round", DummyInterval: 0.5, AttackCap: 5, DefenseTime: 20,
		NoiseTraffic: true, DecoyAttacks: true, DecoyCount: 10,
		Hint:    "All disruption layers are active.",
		Warning: "Warning: decoy attacks are present!",
	},
}

// Profile returns the difficulty profile for a 1-based round number.
// Panics if round is out of [1, TotalRounds] — the caller owns bounding
// the round counter.
func Profile(round int) Difficulty {
	if round < 1 || round > TotalRounds {
		panic("round: profile requested for out-of-range round")
	}
	return byRound[round]
}
