// Package session — server.go
//
// The TCP coordinator endpoint: accepts connections, performs the CONNECT
// handshake, dispatches inbound frames to the attack coordinator / round
// engine, and implements every callback interface those components need
// to reach back out to players (attack.Lookup, attack.Notifier,
// traffic.Emitter/NoiseEmitter/DecoyEmitter/RosterSource,
// round.Broadcaster) — so neither package ever imports this one.
//
// The accept loop spawns one goroutine per connection; each connection
// performs a CONNECT handshake before entering its read/dispatch loop.
package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/attack"
	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
	"github.com/Hyunwoo2267/ComNetProject/internal/player"
	"github.com/Hyunwoo2267/ComNetProject/internal/protocol"
	"github.com/Hyunwoo2267/ComNetProject/internal/round"
	"github.com/Hyunwoo2267/ComNetProject/internal/traffic"
)

// BasePort is the first P2P listening port. A player's P2P port is
// BasePort + their registry index. A var, not a const, so cmd/rangecoord
// can override it from config at startup.
var BasePort = 10001

// connectHandshakeTimeout bounds how long a freshly accepted socket has
// to send its CONNECT frame before the server gives up on it.
const connectHandshakeTimeout = 5 * time.Second

// Server owns the player registry, attack coordinator, and round engine
// for one match, and is the sole place where any of those three reach
// the network.
type Server struct {
	log       *zap.Logger
	registry  *player.Registry
	coord     *attack.Coordinator
	engine    *round.Engine
	rateLimit RateLimit
	metrics   *observability.Metrics

	packetLog        *packetRing
	packetLogEnabled bool

	listener net.Listener
}

// NewServer wires a Server around an already-constructed registry and
// coordinator. The round engine is attached afterward via SetEngine,
// since the engine itself is constructed with this Server as its
// Broadcaster/RosterSource/Emitter — breaking the construction cycle.
func NewServer(log *zap.Logger, registry *player.Registry, coord *attack.Coordinator) *Server {
	return &Server{log: log, registry: registry, coord: coord, rateLimit: DefaultRateLimit, packetLog: newPacketRing()}
}

// SetPacketLogEnabled toggles recording of dispatched messages into the
// in-memory debug ring surfaced by RecentMessages. Off by default.
func (s *Server) SetPacketLogEnabled(enabled bool) {
	s.packetLogEnabled = enabled
}

// RecentMessages returns the packet debug ring's contents, oldest first,
// formatted as "type:player_id". Empty if the ring is disabled or no
// messages have been dispatched yet.
func (s *Server) RecentMessages() []string {
	if !s.packetLogEnabled {
		return nil
	}
	entries := s.packetLog.snapshot()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Type + ":" + e.PlayerID
	}
	return out
}

// SetRateLimit overrides the per-connection inbound token-bucket
// parameters applied to every subsequently accepted connection.
func (s *Server) SetRateLimit(rl RateLimit) {
	s.rateLimit = rl
}

// SetEngine attaches the round engine once constructed.
func (s *Server) SetEngine(e *round.Engine) {
	s.engine = e
}

// SetMetrics attaches the Prometheus metrics registry. Safe to leave
// unset; metric updates become no-ops if s.metrics is nil.
func (s *Server) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Serve accepts connections on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("session: listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("session: accept error", zap.Error(err))
				continue
			}
		}
		go s.handle(ctx, c)
	}
}

func (s *Server) handle(ctx context.Context, raw net.Conn) {
	conn := newConnection(raw, s.log, s.rateLimit, s.metrics)
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
	}

	if err := raw.SetReadDeadline(time.Now().Add(connectHandshakeTimeout)); err != nil {
		conn.Close()
		return
	}
	env, err := protocol.ReadMessage(conn.reader)
	if err != nil || env.Type != protocol.TypeConnect {
		conn.log.Debug("session: handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	var hello protocol.Connect
	if err := env.Decode(&hello); err != nil || hello.PlayerID == "" {
		conn.Close()
		return
	}
	_ = raw.SetReadDeadline(time.Time{})

	index, err := s.registry.Add(hello.PlayerID, conn.Host, conn)
	if err != nil {
		_ = conn.Send(protocol.Info{
			Type: protocol.TypeInfo, Timestamp: nowUnix(), InfoType: protocol.InfoError,
			Message: "player_id already connected",
		})
		conn.Close()
		return
	}
	conn.PlayerID = hello.PlayerID
	if s.metrics != nil {
		s.metrics.PlayersConnected.Inc()
	}

	conn.log.Info("session: player connected", zap.String("player_id", hello.PlayerID), zap.Int("index", index))
	_ = conn.Send(protocol.Info{
		Type: protocol.TypeInfo, Timestamp: nowUnix(), InfoType: protocol.InfoWelcome,
		PlayerID: hello.PlayerID, PlayerIP: conn.Host, PlayerIndex: index,
	})
	s.BroadcastPlayerList(s.registry.ListInfos())

	s.readLoop(ctx, conn)

	s.registry.Remove(hello.PlayerID)
	if s.metrics != nil {
		s.metrics.PlayersConnected.Dec()
	}
	s.BroadcastPlayerList(s.registry.ListInfos())
	conn.log.Info("session: player disconnected", zap.String("player_id", hello.PlayerID))
}

func (s *Server) readLoop(ctx context.Context, conn *Connection) {
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-conn.closed:
			return
		default:
		}

		env, err := protocol.ReadMessage(conn.reader)
		if err != nil {
			conn.Close()
			return
		}
		if !conn.AllowMessage() {
			conn.log.Debug("session: rate limit exceeded, dropping message", zap.String("player_id", conn.PlayerID))
			if s.metrics != nil {
				s.metrics.RateLimitDropsTotal.Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.MessagesReceivedTotal.WithLabelValues(env.Type).Inc()
		}
		s.dispatch(conn, env)
	}
}

func (s *Server) dispatch(conn *Connection, env protocol.Envelope) {
	if s.packetLogEnabled {
		s.packetLog.record(packetLogEntry{SessionID: conn.SessionID, PlayerID: conn.PlayerID, Type: env.Type})
	}

	switch env.Type {
	case protocol.TypeAttackRequest:
		var req protocol.AttackRequest
		if env.Decode(&req) != nil {
			s.sendProtocolError(conn, "malformed attack_request")
			return
		}
		attackID, reason, approved := s.coord.RequestApproval(req.AttackerID, req.TargetID)
		if !approved {
			_ = conn.Send(protocol.Info{
				Type: protocol.TypeInfo, Timestamp: nowUnix(), InfoType: protocol.InfoAttackDenied,
				Message: reason,
			})
			return
		}
		_ = attackID // approval notices are sent by the coordinator via Notify*.

	case protocol.TypeAttackConfirm:
		var c protocol.AttackConfirm
		if env.Decode(&c) != nil {
			s.sendProtocolError(conn, "malformed attack_confirm")
			return
		}
		switch c.ConfirmType {
		case protocol.ConfirmSent:
			s.coord.ConfirmSent(c.AttackID)
		case protocol.ConfirmReceived:
			s.coord.ConfirmReceived(c.AttackID)
		}

	case protocol.TypeDefense:
		var d protocol.Defense
		if env.Decode(&d) != nil {
			s.sendProtocolError(conn, "malformed defense")
			return
		}
		if s.engine != nil {
			s.engine.SubmitDefense(d.PlayerID, d.AttackerIPs)
		}

	default:
		s.sendProtocolError(conn, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

// sendProtocolError notifies the originator of a malformed or
// unrecognized message without tearing down the session — the
// connection stays open, the frame is dropped, the client gets a toast.
func (s *Server) sendProtocolError(conn *Connection, message string) {
	_ = conn.Send(protocol.Info{
		Type: protocol.TypeInfo, Timestamp: nowUnix(), InfoType: protocol.InfoError,
		Message: message,
	})
}

func nowUnix() int64 { return time.Now().Unix() }

func (s *Server) sendTo(id string, msg any) {
	p := s.registry.Lookup(id)
	if p == nil || p.Outbound == nil {
		return
	}
	_ = p.Outbound.Send(msg)
}

// ─── attack.Lookup ───

// Resolve implements attack.Lookup.
func (s *Server) Resolve(id string) (attack.Target, bool) {
	p := s.registry.Lookup(id)
	if p == nil {
		return attack.Target{}, false
	}
	return attack.Target{ID: p.ID, Host: p.Host, Port: BasePort + p.Index, Index: p.Index}, true
}

// RecordAttackReceived implements attack.Lookup.
func (s *Server) RecordAttackReceived(targetID, attackerHost string) {
	s.registry.RecordAttackReceived(targetID, attackerHost)
}

// ─── attack.Notifier ───

// NotifyApproved implements attack.Notifier.
func (s *Server) NotifyApproved(attackerID string, msg attack.ApprovedNotice) {
	s.sendTo(attackerID, protocol.AttackApproved{
		Type: protocol.TypeAttackApproved, Timestamp: nowUnix(),
		AttackID: msg.AttackID, TargetIP: msg.TargetHost, TargetPort: msg.TargetPort, TargetID: msg.TargetID,
	})
}

// NotifyIncoming implements attack.Notifier.
func (s *Server) NotifyIncoming(targetID string, msg attack.IncomingNotice) {
	s.sendTo(targetID, protocol.IncomingAttackWarning{
		Type: protocol.TypeIncomingAttackWarning, Timestamp: nowUnix(),
		AttackID: msg.AttackID, AttackerIP: msg.AttackerIP, AttackerID: msg.AttackerID,
	})
}

// ─── traffic.Emitter / NoiseEmitter / DecoyEmitter / RosterSource ───

// BroadcastDummy implements traffic.Emitter.
func (s *Server) BroadcastDummy(payload string) {
	s.broadcast(protocol.Dummy{Type: protocol.TypeDummy, Timestamp: nowUnix(), Payload: protocol.EncodePayload(payload)})
}

// SendNoise implements traffic.NoiseEmitter.
func (s *Server) SendNoise(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string) {
	s.sendTo(targetID, protocol.Noise{
		Type: protocol.TypeNoise, Timestamp: nowUnix(),
		FromIP: fromIP, ToIP: toIP, FromPlayer: fromPlayer, ToPlayer: toPlayer,
		Payload: protocol.EncodePayload(payload),
	})
}

// SendDecoy implements traffic.DecoyEmitter.
func (s *Server) SendDecoy(targetID, fromIP, toIP, fromPlayer, toPlayer, payload string) {
	s.sendTo(targetID, protocol.DecoyAttack{
		Type: protocol.TypeDecoyAttack, Timestamp: nowUnix(),
		FromIP: fromIP, ToIP: toIP, FromPlayer: fromPlayer, ToPlayer: toPlayer,
		Payload: protocol.EncodePayload(payload), IsDecoy: true,
	})
}

// ConnectedPlayers implements traffic.RosterSource.
func (s *Server) ConnectedPlayers() []traffic.PlayerRef {
	infos := s.registry.ListInfos()
	out := make([]traffic.PlayerRef, 0, len(infos))
	for _, info := range infos {
		if info.IsConnected {
			out = append(out, traffic.PlayerRef{ID: info.PlayerID, Host: info.IP})
		}
	}
	return out
}

// ─── round.Broadcaster ───

func (s *Server) broadcast(msg any) {
	s.registry.Each(func(p *player.Player) {
		if p.Outbound != nil {
			_ = p.Outbound.Send(msg)
		}
	})
}

func toPlayerInfos(infos []player.Info) []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, len(infos))
	for i, info := range infos {
		out[i] = protocol.PlayerInfo{PlayerID: info.PlayerID, IP: info.IP, Score: info.Score, HP: info.HP, IsConnected: info.IsConnected}
	}
	return out
}

// BroadcastPlayerList implements round.Broadcaster.
func (s *Server) BroadcastPlayerList(infos []player.Info) {
	s.broadcast(protocol.PlayerList{Type: protocol.TypePlayerList, Timestamp: nowUnix(), Players: toPlayerInfos(infos)})
}

// BroadcastGameStart implements round.Broadcaster.
func (s *Server) BroadcastGameStart() {
	s.broadcast(protocol.GameStart{Type: protocol.TypeGameStart, Timestamp: nowUnix()})
}

// BroadcastRoundStart implements round.Broadcaster.
func (s *Server) BroadcastRoundStart(roundNum int, timeRemaining int, diff round.Difficulty) {
	s.broadcast(protocol.RoundStart{
		Type: protocol.TypeRoundStart, Timestamp: nowUnix(),
		RoundNum: roundNum, TotalRounds: round.TotalRounds, TimeRemaining: timeRemaining,
		Difficulty: protocol.DifficultySummary{
			Name: diff.Name, Hint: diff.Hint, Warning: diff.Warning,
			AttackLimit: diff.AttackCap, NoiseTraffic: diff.NoiseTraffic, DecoyAttacks: diff.DecoyAttacks,
		},
	})
}

// BroadcastPlaying implements round.Broadcaster.
func (s *Server) BroadcastPlaying(roundNum, timeRemaining int, message string) {
	s.broadcast(protocol.Playing{Type: protocol.TypePlaying, Timestamp: nowUnix(), RoundNum: roundNum, TimeRemaining: timeRemaining, Message: message})
}

// BroadcastTimeUpdate implements round.Broadcaster.
func (s *Server) BroadcastTimeUpdate(timeRemaining int) {
	s.broadcast(protocol.Info{Type: protocol.TypeInfo, Timestamp: nowUnix(), InfoType: protocol.InfoTimeUpdate, TimeRemaining: timeRemaining})
}

// BroadcastDefensePhase implements round.Broadcaster.
func (s *Server) BroadcastDefensePhase(roundNum, timeRemaining int) {
	s.broadcast(protocol.DefensePhase{Type: protocol.TypeDefensePhase, Timestamp: nowUnix(), RoundNum: roundNum, TimeRemaining: timeRemaining})
}

// BroadcastScore implements round.Broadcaster.
func (s *Server) BroadcastScore(playerID string, scoreVal, hp, correct int, reason string) {
	s.sendTo(playerID, protocol.Score{
		Type: protocol.TypeScore, Timestamp: nowUnix(), PlayerID: playerID,
		Score: scoreVal, HP: hp, Correct: correct, Reason: reason,
	})
}

// BroadcastRoundEnd implements round.Broadcaster.
func (s *Server) BroadcastRoundEnd(roundNum int, players []player.Info) {
	s.broadcast(protocol.RoundEnd{Type: protocol.TypeRoundEnd, Timestamp: nowUnix(), RoundNum: roundNum, Players: toPlayerInfos(players)})
}

// BroadcastGameEnd implements round.Broadcaster.
func (s *Server) BroadcastGameEnd(rankings []round.RankingEntry, winner *string) {
	out := make([]protocol.RankingEntry, len(rankings))
	for i, r := range rankings {
		out[i] = protocol.RankingEntry{Rank: r.Rank, PlayerID: r.PlayerID, Score: r.Score, HP: r.HP}
	}
	s.broadcast(protocol.GameEnd{Type: protocol.TypeGameEnd, Timestamp: nowUnix(), Rankings: out, Winner: winner})
}
