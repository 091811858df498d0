package session

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/attack"
	"github.com/Hyunwoo2267/ComNetProject/internal/player"
	"github.com/Hyunwoo2267/ComNetProject/internal/protocol"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	registry := player.NewRegistry()
	srv := NewServer(zap.NewNop(), registry, nil)
	srv.coord = attack.New(srv, srv)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handle(ctx, c)
		}
	}()

	return srv, ln.Addr().String()
}

func connectAs(t *testing.T, addr, id string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := protocol.WriteMessage(conn, protocol.Connect{Type: protocol.TypeConnect, PlayerID: id}); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	r := bufio.NewReader(conn)
	env, err := protocol.ReadMessage(r)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if env.Type != protocol.TypeInfo {
		t.Fatalf("want INFO welcome, got %s", env.Type)
	}
	var info protocol.Info
	if err := env.Decode(&info); err != nil || info.InfoType != protocol.InfoWelcome {
		t.Fatalf("want WELCOME info_type, got %+v err=%v", info, err)
	}
	return conn, r
}

func TestServer_ConnectHandshakeAssignsWelcome(t *testing.T) {
	_, addr := startTestServer(t)
	conn, _ := connectAs(t, addr, "alice")
	defer conn.Close()
}

func TestServer_DuplicatePlayerIDRejected(t *testing.T) {
	_, addr := startTestServer(t)
	conn1, _ := connectAs(t, addr, "bob")
	defer conn1.Close()

	conn2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn2.Close()
	if err := protocol.WriteMessage(conn2, protocol.Connect{Type: protocol.TypeConnect, PlayerID: "bob"}); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	r := bufio.NewReader(conn2)
	env, err := protocol.ReadMessage(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var info protocol.Info
	if err := env.Decode(&info); err != nil || info.InfoType != protocol.InfoError {
		t.Fatalf("want ERROR info_type for duplicate id, got %+v", info)
	}
}

func TestServer_SelfAttackRequestDenied(t *testing.T) {
	srv, addr := startTestServer(t)
	conn, r := connectAs(t, addr, "carol")
	defer conn.Close()

	srv.coord.SetPlaying(true)
	srv.coord.SetCap(3)

	if err := protocol.WriteMessage(conn, protocol.AttackRequest{
		Type: protocol.TypeAttackRequest, AttackerID: "carol", TargetID: "carol",
	}); err != nil {
		t.Fatalf("write attack request: %v", err)
	}

	env, err := protocol.ReadMessage(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var info protocol.Info
	if err := env.Decode(&info); err != nil || info.InfoType != protocol.InfoAttackDenied {
		t.Fatalf("want ATTACK_DENIED, got %+v", info)
	}
	if info.Message == "" {
		t.Fatalf("want a denial reason message")
	}
}

func TestServer_MalformedAttackRequestGetsErrorInfo(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := connectAs(t, addr, "erin")
	defer conn.Close()

	// attacker_id missing is still valid JSON but decodes fine; send a
	// structurally wrong payload type instead to force env.Decode to fail.
	if err := protocol.WriteMessage(conn, struct {
		Type       string `json:"type"`
		AttackerID []int  `json:"attacker_id"`
	}{Type: protocol.TypeAttackRequest, AttackerID: []int{1, 2}}); err != nil {
		t.Fatalf("write malformed attack request: %v", err)
	}

	env, err := protocol.ReadMessage(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var info protocol.Info
	if err := env.Decode(&info); err != nil || info.InfoType != protocol.InfoError {
		t.Fatalf("want ERROR info_type for malformed request, got %+v err=%v", info, err)
	}
}

func TestServer_UnknownMessageTypeGetsErrorInfo(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := connectAs(t, addr, "frank")
	defer conn.Close()

	if err := protocol.WriteMessage(conn, struct {
		Type string `json:"type"`
	}{Type: "NOT_A_REAL_TYPE"}); err != nil {
		t.Fatalf("write unknown-type message: %v", err)
	}

	env, err := protocol.ReadMessage(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var info protocol.Info
	if err := env.Decode(&info); err != nil || info.InfoType != protocol.InfoError {
		t.Fatalf("want ERROR info_type for unknown message type, got %+v err=%v", info, err)
	}
}

func TestServer_OutboundQueueOverflowDisconnects(t *testing.T) {
	registry := player.NewRegistry()
	log := zap.NewNop()

	server, client := net.Pipe()
	defer client.Close()
	conn := newConnection(server, log, DefaultRateLimit, nil)
	defer conn.Close()

	_, _ = registry.Add("dana", "10.0.0.9", conn)

	// The writer goroutine can't drain because nothing reads from the
	// client side; flood past capacity to force an overflow disconnect.
	var gotErr bool
	for i := 0; i < OutboundQueueCapacity+5; i++ {
		if err := conn.Send(protocol.Info{Type: protocol.TypeInfo, Timestamp: 1}); err != nil {
			gotErr = true
			break
		}
	}
	if !gotErr {
		t.Fatalf("expected an overflow error before exceeding queue capacity")
	}

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatalf("expected connection to be closed after overflow")
	}
}
