package health

import (
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/wire"
)

// startFakeUpstream runs a listener that accepts one connection, reads
// a StartupMessage, then sends back the given response before closing.
func startFakeUpstream(t *testing.T, respond func(*wire.ClientCodec)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		backend := wire.NewClientCodec(conn, conn)
		if _, err := backend.ReceiveStartupMessage(); err != nil {
			return
		}
		respond(backend)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestCheckerHealthyOnAuthenticationOk(t *testing.T) {
	addr := startFakeUpstream(t, func(b *wire.ClientCodec) {
		b.Send(&pgproto3.AuthenticationOk{})
	})

	c := NewChecker(addr, nil, time.Hour, 3, time.Second)
	c.check()

	if !c.IsHealthy() {
		t.Error("expected healthy after AuthenticationOk probe")
	}
	if got := c.GetState().Status; got != StatusHealthy {
		t.Errorf("expected StatusHealthy, got %v", got)
	}
}

func TestCheckerHealthyOnErrorResponse(t *testing.T) {
	addr := startFakeUpstream(t, func(b *wire.ClientCodec) {
		b.Send(&pgproto3.ErrorResponse{Severity: "FATAL", Code: "28000"})
	})

	c := NewChecker(addr, nil, time.Hour, 3, time.Second)
	c.check()

	if !c.IsHealthy() {
		t.Error("an ErrorResponse still proves the server answered, so it should count as healthy")
	}
}

func TestCheckerUnreachableMarksUnhealthyAfterThreshold(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listening now

	c := NewChecker(addr, nil, time.Hour, 3, 200*time.Millisecond)

	c.check()
	if !c.IsHealthy() {
		t.Error("should still be healthy before reaching the failure threshold")
	}
	c.check()
	c.check()
	if c.IsHealthy() {
		t.Error("expected unhealthy after reaching the failure threshold")
	}
	if got := c.GetState().ConsecutiveFailures; got != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", got)
	}
	if c.GetState().LastError == "" {
		t.Error("expected LastError to be populated")
	}
}

func TestCheckerRecoversAfterFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewChecker(addr, nil, time.Hour, 1, 200*time.Millisecond)
	c.check()
	if c.IsHealthy() {
		t.Error("expected unhealthy after failing to connect")
	}

	addr2 := startFakeUpstream(t, func(b *wire.ClientCodec) {
		b.Send(&pgproto3.AuthenticationOk{})
	})
	c.addr = addr2
	c.check()
	if !c.IsHealthy() {
		t.Error("expected healthy again once the upstream answers")
	}
	if got := c.GetState().ConsecutiveFailures; got != 0 {
		t.Errorf("expected failure count reset to 0, got %d", got)
	}
}

func TestCheckerStartStop(t *testing.T) {
	addr := startFakeUpstream(t, func(b *wire.ClientCodec) {
		b.Send(&pgproto3.AuthenticationOk{})
	})

	c := NewChecker(addr, nil, 10*time.Millisecond, 3, time.Second)
	c.Start()
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	if !c.IsHealthy() {
		t.Error("expected healthy after running a few check cycles")
	}
}
