// Package protocol — messages.go
//
// Concrete message types exchanged over the frame codec (frame.go). Go
// callers never see base64 payloads directly — use
// EncodePayload/DecodePayload at the boundary.
package protocol

// Message type tags.
const (
	TypeConnect               = "CONNECT"
	TypeAttackRequest         = "ATTACK_REQUEST"
	TypeAttackConfirm         = "ATTACK_CONFIRM"
	TypeDefense               = "DEFENSE"
	TypeInfo                  = "INFO"
	TypePlayerList            = "PLAYER_LIST"
	TypeRoundStart            = "ROUND_START"
	TypePlaying               = "PLAYING"
	TypeDefensePhase          = "DEFENSE_PHASE"
	TypeAttackApproved        = "ATTACK_APPROVED"
	TypeIncomingAttackWarning = "INCOMING_ATTACK_WARNING"
	TypeDummy                 = "DUMMY"
	TypeNoise                 = "NOISE"
	TypeDecoyAttack           = "DECOY_ATTACK"
	TypeScore                 = "SCORE"
	TypeRoundEnd              = "ROUND_END"
	TypeGameEnd               = "GAME_END"
	TypeGameStart             = "GAME_START"
	TypeAttack                = "ATTACK" // P2P-only, never seen by the coordinator.
)

// ConfirmSent and ConfirmReceived are the two confirm_type values carried
// by ATTACK_CONFIRM.
const (
	ConfirmSent     = "SENT"
	ConfirmReceived = "RECEIVED"
)

// InfoType values used inside INFO messages.
const (
	InfoWelcome      = "WELCOME"
	InfoTimeUpdate   = "TIME_UPDATE"
	InfoAttackDenied = "ATTACK_DENIED"
	InfoError        = "ERROR"
)

// Connect is the first and only handshake frame a client sends.
type Connect struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

// AttackRequest asks the coordinator to approve an attack on a target.
type AttackRequest struct {
	Type       string `json:"type"`
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

// AttackConfirm reports that the attacker sent, or the target received,
// the P2P payload for a previously approved attack_id.
type AttackConfirm struct {
	Type        string `json:"type"`
	AttackID    string `json:"attack_id"`
	ConfirmType string `json:"confirm_type"`
	FromPlayer  string `json:"from_player,omitempty"`
	ToPlayer    string `json:"to_player,omitempty"`
}

// Defense submits the set of attacker addresses a player believes hit
// them this round. Submissions accumulate via union, not replacement.
type Defense struct {
	Type        string   `json:"type"`
	PlayerID    string   `json:"player_id"`
	AttackerIPs []string `json:"attacker_ips"`
}

// Info is the catch-all server->client notice, keyed by InfoType.
type Info struct {
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
	InfoType      string `json:"info_type"`
	PlayerID      string `json:"player_id,omitempty"`
	PlayerIP      string `json:"player_ip,omitempty"`
	PlayerIndex   int    `json:"player_index,omitempty"`
	Message       string `json:"message,omitempty"`
	TimeRemaining int    `json:"time_remaining,omitempty"`
}

// PlayerInfo is one entry in a PLAYER_LIST broadcast.
type PlayerInfo struct {
	PlayerID    string `json:"player_id"`
	IP          string `json:"ip"`
	Score       int    `json:"score"`
	HP          int    `json:"hp"`
	IsConnected bool   `json:"is_connected"`
}

// PlayerList broadcasts the current player roster.
type PlayerList struct {
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Players   []PlayerInfo `json:"players"`
}

// DifficultySummary is the player-facing slice of a difficulty profile.
type DifficultySummary struct {
	Name          string `json:"name"`
	Hint          string `json:"hint"`
	Warning       string `json:"warning,omitempty"`
	AttackLimit   int    `json:"attack_limit"`
	NoiseTraffic  bool   `json:"noise_traffic"`
	DecoyAttacks  bool   `json:"decoy_attacks"`
}

// RoundStart opens the preparation phase of a round.
type RoundStart struct {
	Type          string             `json:"type"`
	Timestamp     int64              `json:"timestamp"`
	RoundNum      int                `json:"round_num"`
	TotalRounds   int                `json:"total_rounds"`
	TimeRemaining int                `json:"time_remaining"`
	Difficulty    DifficultySummary  `json:"difficulty"`
}

// Playing opens the playing phase of a round.
type Playing struct {
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
	RoundNum      int    `json:"round_num"`
	TimeRemaining int    `json:"time_remaining"`
	Message       string `json:"message"`
}

// DefensePhase opens the defense-submission window of a round.
type DefensePhase struct {
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
	RoundNum      int    `json:"round_num"`
	TimeRemaining int    `json:"time_remaining"`
}

// AttackApproved tells the attacker where to connect to deliver the P2P
// payload for a newly approved attack.
type AttackApproved struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	AttackID   string `json:"attack_id"`
	TargetIP   string `json:"target_ip"`
	TargetPort int    `json:"target_port"`
	TargetID   string `json:"target_id"`
}

// IncomingAttackWarning tells the target to expect a P2P delivery.
type IncomingAttackWarning struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	AttackID   string `json:"attack_id"`
	AttackerIP string `json:"attacker_ip"`
	AttackerID string `json:"attacker_id"`
}

// Dummy is server-synthesised broadcast filler traffic.
type Dummy struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Payload   string `json:"payload"`
}

// Noise is server-synthesised benign traffic between two real players.
type Noise struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	FromIP     string `json:"from_ip"`
	ToIP       string `json:"to_ip"`
	FromPlayer string `json:"from_player"`
	ToPlayer   string `json:"to_player"`
	Payload    string `json:"payload"`
}

// DecoyAttack is a server-synthesised pseudo-attack attributed to a real,
// innocent player. On the wire it is shaped identically to a genuine
// attack delivery except for its type and the internal IsDecoy marker;
// the registry never records it as a received attack.
type DecoyAttack struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	FromIP     string `json:"from_ip"`
	ToIP       string `json:"to_ip"`
	FromPlayer string `json:"from_player"`
	ToPlayer   string `json:"to_player"`
	Payload    string `json:"payload"`
	IsDecoy    bool   `json:"is_decoy"`
}

// Attack is the P2P-only payload exchanged directly between clients after
// approval. The coordinator never parses one of these — it is relevant
// only to the reference client helper in internal/session.
type Attack struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	AttackID   string `json:"attack_id"`
	FromPlayer string `json:"from_player"`
	ToPlayer   string `json:"to_player"`
	Payload    string `json:"payload"`
}

// Score reports one player's post-round delta.
type Score struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	PlayerID  string `json:"player_id"`
	Score     int    `json:"score"`
	HP        int    `json:"hp"`
	Correct   int    `json:"correct"`
	Reason    string `json:"reason"`
}

// RoundEnd summarises the roster at the end of a round.
type RoundEnd struct {
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"`
	RoundNum  int          `json:"round_num"`
	Players   []PlayerInfo `json:"players"`
}

// RankingEntry is one row of the GAME_END ranking table.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
	HP       int    `json:"hp"`
}

// GameEnd closes the match.
type GameEnd struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Rankings  []RankingEntry `json:"rankings"`
	Winner    *string        `json:"winner"`
}

// GameStart opens a match, before round 1's preparation phase.
type GameStart struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
