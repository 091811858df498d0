package admin

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/operator"
)

type fakeAdmin struct {
	startMatchErr error
	stopMatchErr  error
	status        operator.StatusResponse
	calls         []string
}

func (f *fakeAdmin) StartServer() error { f.calls = append(f.calls, "start_server"); return nil }
func (f *fakeAdmin) StopServer() error  { f.calls = append(f.calls, "stop_server"); return nil }

func (f *fakeAdmin) StartMatch() error {
	f.calls = append(f.calls, "start_match")
	return f.startMatchErr
}

func (f *fakeAdmin) StopMatch() error {
	f.calls = append(f.calls, "stop_match")
	return f.stopMatchErr
}

func (f *fakeAdmin) Status() operator.StatusResponse {
	f.calls = append(f.calls, "status")
	return f.status
}

func TestREPL_StartStopStatusQuit(t *testing.T) {
	a := &fakeAdmin{
		status: operator.StatusResponse{
			MatchState:  "PLAYING",
			Round:       2,
			TotalRounds: 5,
			PlayerCount: 1,
			Players: []operator.PlayerStatus{
				{PlayerID: "alice", IP: "10.0.0.2", Score: 10, HP: 90, Connected: true},
			},
		},
	}
	in := strings.NewReader("start\nstatus\nstop\nquit\n")
	var out bytes.Buffer
	repl := New(a, zap.NewNop(), in, &out)

	err := repl.Run()
	if err != ExitRequested {
		t.Fatalf("want ExitRequested, got %v", err)
	}

	want := []string{"start_match", "status", "stop_match"}
	if len(a.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", a.calls, want)
	}
	for i, c := range want {
		if a.calls[i] != c {
			t.Fatalf("calls[%d] = %q, want %q", i, a.calls[i], c)
		}
	}

	output := out.String()
	if !strings.Contains(output, "alice") || !strings.Contains(output, "PLAYING") {
		t.Fatalf("status output missing expected fields: %q", output)
	}
	if !strings.Contains(output, "goodbye") {
		t.Fatalf("expected goodbye on quit, got %q", output)
	}
}

func TestREPL_UnknownCommandDoesNotStop(t *testing.T) {
	a := &fakeAdmin{}
	in := strings.NewReader("bogus\nquit\n")
	var out bytes.Buffer
	repl := New(a, zap.NewNop(), in, &out)

	if err := repl.Run(); err != ExitRequested {
		t.Fatalf("want ExitRequested, got %v", err)
	}
	if len(a.calls) != 0 {
		t.Fatalf("unknown command should not dispatch, got calls=%v", a.calls)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected unknown-command message, got %q", out.String())
	}
}

func TestREPL_StartMatchErrorIsReported(t *testing.T) {
	a := &fakeAdmin{startMatchErr: fmt.Errorf("not enough players")}
	in := strings.NewReader("start\nquit\n")
	var out bytes.Buffer
	repl := New(a, zap.NewNop(), in, &out)

	if err := repl.Run(); err != ExitRequested {
		t.Fatalf("want ExitRequested, got %v", err)
	}
	if !strings.Contains(out.String(), "error: not enough players") {
		t.Fatalf("expected error line, got %q", out.String())
	}
}

func TestREPL_EOFReturnsNilWithoutQuit(t *testing.T) {
	a := &fakeAdmin{}
	in := strings.NewReader("status\n")
	var out bytes.Buffer
	repl := New(a, zap.NewNop(), in, &out)

	if err := repl.Run(); err != nil {
		t.Fatalf("want nil on EOF, got %v", err)
	}
}

func TestListenAndServe_AcceptsAndDispatchesOverTCP(t *testing.T) {
	a := &fakeAdmin{status: operator.StatusResponse{MatchState: "WAITING", TotalRounds: 5}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- ListenAndServe(ctx, addr, a, zap.NewNop()) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprintln(conn, "status")
	fmt.Fprintln(conn, "quit")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received bytes.Buffer
	buf := make([]byte, 4096)
	for !strings.Contains(received.String(), "WAITING") {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (so far: %q)", err, received.String())
		}
		received.Write(buf[:n])
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not stop after context cancellation")
	}
}
