// Package admin — repl.go
//
// The interactive Admin CLI: start, stop, status, quit. This is distinct
// from the ambient Unix socket operator surface in internal/operator —
// both drive the same operator.AdminSurface, so an operator can use
// whichever channel fits (interactive stdin on the console, or a
// scriptable socket).
//
// Short functions, one command per case, structured log lines on every
// transition.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/operator"
)

// ExitRequested is returned by Run when the operator typed "quit".
// Callers use this to distinguish a clean exit from a read error.
var ExitRequested = fmt.Errorf("admin: quit requested")

// REPL reads newline-delimited commands from in and writes responses to
// out, driving an AdminSurface until "quit" is read or in is exhausted.
type REPL struct {
	admin operator.AdminSurface
	log   *zap.Logger
	in    *bufio.Scanner
	out   io.Writer
}

// New returns a REPL over the given input/output streams.
func New(admin operator.AdminSurface, log *zap.Logger, in io.Reader, out io.Writer) *REPL {
	return &REPL{admin: admin, log: log, in: bufio.NewScanner(in), out: out}
}

// Run blocks reading commands until "quit" (returns ExitRequested) or in
// reaches EOF (returns nil).
func (r *REPL) Run() error {
	fmt.Fprintln(r.out, "rangecoord admin — commands: start, stop, status, quit")
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		cmd := strings.ToLower(strings.TrimSpace(r.in.Text()))
		if cmd == "" {
			continue
		}

		switch cmd {
		case "start":
			r.dispatch("start", r.admin.StartMatch)
		case "stop":
			r.dispatch("stop", r.admin.StopMatch)
		case "status":
			r.printStatus()
		case "quit":
			fmt.Fprintln(r.out, "goodbye")
			return ExitRequested
		default:
			fmt.Fprintf(r.out, "unknown command %q (try: start, stop, status, quit)\n", cmd)
		}
	}
}

func (r *REPL) dispatch(name string, fn func() error) {
	if err := fn(); err != nil {
		r.log.Warn("admin command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.log.Info("admin command executed", zap.String("command", name))
	fmt.Fprintln(r.out, "ok")
}

func (r *REPL) printStatus() {
	st := r.admin.Status()
	fmt.Fprintf(r.out, "state=%s round=%d/%d players=%d\n", st.MatchState, st.Round, st.TotalRounds, st.PlayerCount)
	for _, p := range st.Players {
		fmt.Fprintf(r.out, "  %-16s ip=%-15s score=%-5d hp=%-3d connected=%v\n",
			p.PlayerID, p.IP, p.Score, p.HP, p.Connected)
	}
	for _, m := range st.RecentMessages {
		fmt.Fprintf(r.out, "  recent: %s\n", m)
	}
}

// ListenAndServe binds the Admin CLI's remote TCP surface: one REPL
// session per accepted connection, same four commands as the stdin REPL.
// The bound host/port are operator-configurable (default 0.0.0.0:9999).
// Blocks until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, a operator.AdminSurface, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: listen %q: %w", addr, err)
	}
	defer ln.Close()
	log.Info("admin CLI listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn("admin: accept error", zap.Error(err))
				continue
			}
		}
		go func(c net.Conn) {
			defer c.Close()
			repl := New(a, log, c, c)
			if err := repl.Run(); err != nil {
				log.Debug("admin: session ended", zap.Error(err))
			}
		}(conn)
	}
}
