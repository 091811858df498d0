// Package main — admin_surface.go
//
// adminSurface implements operator.AdminSurface directly against this
// process's wiring (round engine, session server, ledger). No separate
// in-memory PID-keyed registry is needed since there is exactly one
// match and one session server per process.
package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/config"
	"github.com/Hyunwoo2267/ComNetProject/internal/operator"
	"github.com/Hyunwoo2267/ComNetProject/internal/round"
	"github.com/Hyunwoo2267/ComNetProject/internal/session"
	"github.com/Hyunwoo2267/ComNetProject/internal/storage"
)

// adminSurface is the single implementation of operator.AdminSurface
// shared by the operator Unix socket and the admin stdin REPL.
type adminSurface struct {
	rootCtx context.Context
	engine  *round.Engine
	srv     *session.Server
	cfg     *config.Config
	log     *zap.Logger
	ledger  *storage.DB

	mu           sync.Mutex
	serverCancel context.CancelFunc
}

// StartServer starts accepting player connections on the configured
// listen address. A second call while already listening is a no-op.
func (a *adminSurface) StartServer() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serverCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(a.rootCtx)
	a.serverCancel = cancel
	go func() {
		if err := a.srv.Serve(ctx, a.cfg.Server.ListenAddr); err != nil {
			a.log.Error("session server error", zap.Error(err))
		}
	}()
	a.appendLedger(storage.EventAdminAction, "start_server")
	return nil
}

// StopServer stops accepting new player connections. Connections already
// established are unaffected; the in-progress match (if any) keeps
// running.
func (a *adminSurface) StopServer() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serverCancel == nil {
		return nil
	}
	a.serverCancel()
	a.serverCancel = nil
	a.appendLedger(storage.EventAdminAction, "stop_server")
	return nil
}

// StartMatch starts the five-round match loop.
func (a *adminSurface) StartMatch() error {
	if err := a.engine.Start(a.rootCtx); err != nil {
		return err
	}
	a.appendLedger(storage.EventMatchStarted, "")
	return nil
}

// StopMatch cancels an in-progress match.
func (a *adminSurface) StopMatch() error {
	a.engine.Stop()
	a.appendLedger(storage.EventMatchStopped, "")
	return nil
}

// Status projects the engine's current state for the operator surface.
func (a *adminSurface) Status() operator.StatusResponse {
	st := a.engine.Status()
	players := make([]operator.PlayerStatus, len(st.Players))
	for i, p := range st.Players {
		players[i] = operator.PlayerStatus{
			PlayerID: p.PlayerID, IP: p.IP, Score: p.Score, HP: p.HP, Connected: p.IsConnected,
		}
	}
	resp := operator.StatusResponse{
		MatchState:     st.State,
		Round:          st.Round,
		TotalRounds:    st.TotalRounds,
		PlayerCount:    st.PlayerCount,
		Players:        players,
		RecentMessages: a.srv.RecentMessages(),
	}
	if st.DifficultyOK {
		resp.DifficultyName = st.Difficulty.Name
	}
	return resp
}

func (a *adminSurface) appendLedger(eventType, detail string) {
	err := a.ledger.AppendLedger(storage.LedgerEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Detail:    detail,
		NodeID:    a.cfg.NodeID,
	})
	if err != nil {
		a.log.Warn("ledger write failed", zap.String("event_type", eventType), zap.Error(err))
	}
}
