package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"gwdiag/internal/domain"
)

func TestConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gw := newFakeGateway(t)
		sess := gw.dial(t)

		if !sess.IsConnected() {
			t.Error("session should report connected")
		}
		if sess.SessionID() != 7 {
			t.Errorf("expected session id 7, got %d", sess.SessionID())
		}
		if sess.CreatedAt().IsZero() {
			t.Error("creation timestamp should be set")
		}

		connects, _, handshakes, _ := gw.counts()
		if connects != 1 || handshakes != 1 {
			t.Errorf("expected 1 connect / 1 handshake, got %d / %d", connects, handshakes)
		}
	})

	t.Run("Gateway Unreachable", func(t *testing.T) {
		// Grab a port nothing listens on.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		host, port := "127.0.0.1", l.Addr().(*net.TCPAddr).Port
		l.Close()

		_, err = Connect(context.Background(), ConnectConfig{
			Host:             host,
			Port:             port,
			SessionID:        1,
			ProbeTimeout:     200 * time.Millisecond,
			HandshakeTimeout: 200 * time.Millisecond,
		})
		if !errors.Is(err, domain.ErrGatewayUnreachable) {
			t.Fatalf("expected ErrGatewayUnreachable, got %v", err)
		}
		if domain.IsRetriable(err) {
			t.Error("unreachable gateway is fatal within a run, not retriable")
		}
	})

	t.Run("Handshake Timeout Retried Once Then Succeeds", func(t *testing.T) {
		gw := newFakeGateway(t)
		gw.handshakeDelay = 400 * time.Millisecond // beyond the 200ms handshake timeout
		gw.delayOnce = true

		sess, err := Connect(context.Background(), gw.connectConfig())
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		defer sess.Close()

		if !waitFor(t, time.Second, func() bool { _, _, h, _ := gw.counts(); return h == 2 }) {
			_, _, h, _ := gw.counts()
			t.Errorf("expected exactly 2 handshake attempts, got %d", h)
		}
	})

	t.Run("Handshake Timeout Twice Is Fatal", func(t *testing.T) {
		gw := newFakeGateway(t)
		gw.handshakeDelay = 400 * time.Millisecond // never cleared

		_, err := Connect(context.Background(), gw.connectConfig())
		if !errors.Is(err, domain.ErrHandshakeTimeout) {
			t.Fatalf("expected ErrHandshakeTimeout, got %v", err)
		}

		// One retry, no more.
		if !waitFor(t, 2*time.Second, func() bool { _, _, h, _ := gw.counts(); return h >= 2 }) {
			t.Fatal("expected both handshake attempts to reach the gateway")
		}
		time.Sleep(50 * time.Millisecond)
		if _, _, h, _ := gw.counts(); h != 2 {
			t.Errorf("expected exactly 2 handshake attempts, got %d", h)
		}
	})

	t.Run("Session ID Collision Not Retried", func(t *testing.T) {
		gw := newFakeGateway(t)
		gw.sessionInUse = true

		_, err := Connect(context.Background(), gw.connectConfig())
		if !errors.Is(err, domain.ErrSessionInUse) {
			t.Fatalf("expected ErrSessionInUse, got %v", err)
		}
		if domain.OutcomeFor(err) != domain.OutcomeHandshakeRejected {
			t.Error("collision should report as handshake rejection")
		}

		time.Sleep(50 * time.Millisecond)
		if _, _, h, _ := gw.counts(); h != 1 {
			t.Errorf("rejection must not be retried, got %d handshakes", h)
		}
	})
}

func TestSession_Close(t *testing.T) {
	t.Run("Disconnect Observed By Gateway", func(t *testing.T) {
		gw := newFakeGateway(t)
		sess := gw.dial(t)

		sess.Close()
		if sess.IsConnected() {
			t.Error("session should report disconnected after Close")
		}

		if !waitFor(t, time.Second, func() bool { _, d, _, _ := gw.counts(); return d == 1 }) {
			t.Error("gateway should observe the disconnect")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		gw := newFakeGateway(t)
		sess := gw.dial(t)

		sess.Close()
		sess.Close() // must not panic or block

		time.Sleep(50 * time.Millisecond)
		if _, d, _, _ := gw.counts(); d != 1 {
			t.Errorf("expected a single observed disconnect, got %d", d)
		}
	})
}

func TestSession_RequestAfterClose(t *testing.T) {
	gw := newFakeGateway(t)
	sess := gw.dial(t)
	sess.Close()

	_, err := sess.resolveOnce(context.Background(), resolveRequest{ISIN: "XX0000000000"})
	if err == nil {
		t.Fatal("request on a closed session must fail, not hang")
	}
}

// A gateway dropping the connection mid-run triggers teardown from the
// read loop while callers may still be writing (the deferred unsubscribe,
// for one). Close must still return promptly on every interleaving.
func TestSession_CloseDuringConcurrentWrites(t *testing.T) {
	gw := newFakeGateway(t)
	gw.dropOnUnsubscribe = true
	sess := gw.dial(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sess.Unsubscribe(&Subscription{id: id})
			}
		}(uint64(i + 100))
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		sess.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked after the gateway dropped the connection")
	}
}
