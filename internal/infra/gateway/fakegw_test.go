package gateway

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// clientFrame is the fake gateway's view of any client request
type clientFrame struct {
	Op         string `json:"op"`
	ID         uint64 `json:"id"`
	SessionID  int    `json:"session_id"`
	Account    string `json:"account"`
	ISIN       string `json:"isin"`
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	Exchange   string `json:"exchange"`
	ContractID int64  `json:"contract_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	BarSize    string `json:"bar_size"`
}

// fakeGateway is an in-process scripted gateway for tests: an httptest
// server upgraded to the websocket protocol, with per-test behavior knobs.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	connects     int
	disconnects  int
	handshakes   int
	unsubscribes int
	resolveCalls []clientFrame
	historyCalls []clientFrame

	// Behavior knobs, set before connecting.
	handshakeDelay    time.Duration
	delayOnce         bool // clear handshakeDelay after the first handshake
	sessionInUse      bool
	subscribeReject   bool
	dropOnUnsubscribe bool // abruptly close the connection on the first unsubscribe
	ticks             []tickPayload // streamed immediately after a subscribe ack
	resolve           func(req clientFrame) []contractPayload
	history           func(req clientFrame) ([]barPayload, bool)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handle)
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) hostPort() (string, int) {
	host, portStr, err := net.SplitHostPort(g.srv.Listener.Addr().String())
	if err != nil {
		g.t.Fatalf("split fake gateway addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (g *fakeGateway) connectConfig() ConnectConfig {
	host, port := g.hostPort()
	return ConnectConfig{
		Host:             host,
		Port:             port,
		SessionID:        7,
		Account:          "DU000001",
		ProbeTimeout:     time.Second,
		HandshakeTimeout: 200 * time.Millisecond,
	}
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.connects++
	g.mu.Unlock()
	defer func() {
		conn.Close()
		g.mu.Lock()
		g.disconnects++
		g.mu.Unlock()
	}()

	var hs clientFrame
	if err := conn.ReadJSON(&hs); err != nil {
		return
	}
	g.mu.Lock()
	g.handshakes++
	delay := g.handshakeDelay
	if g.delayOnce {
		g.handshakeDelay = 0
	}
	inUse := g.sessionInUse
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if inUse {
		conn.WriteJSON(gatewayFrame{Op: opHandshake, Code: codeSessionInUse, Msg: "duplicate session id"})
		return
	}
	if err := conn.WriteJSON(gatewayFrame{Op: opHandshake, Code: codeOK}); err != nil {
		return
	}

	for {
		var req clientFrame
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		switch req.Op {
		case opResolve:
			g.mu.Lock()
			g.resolveCalls = append(g.resolveCalls, req)
			fn := g.resolve
			g.mu.Unlock()
			var candidates []contractPayload
			if fn != nil {
				candidates = fn(req)
			}
			conn.WriteJSON(gatewayFrame{Op: opResolve, ID: req.ID, Code: codeOK, Contracts: candidates})

		case opSubscribe:
			g.mu.Lock()
			reject := g.subscribeReject
			ticks := g.ticks
			g.mu.Unlock()
			if reject {
				conn.WriteJSON(gatewayFrame{Op: opSubscribe, ID: req.ID, Code: codeRejected, Msg: "contract rejected"})
				continue
			}
			conn.WriteJSON(gatewayFrame{Op: opSubscribe, ID: req.ID, Code: codeOK})
			for i := range ticks {
				tick := ticks[i]
				conn.WriteJSON(gatewayFrame{Op: opTick, ID: req.ID, Tick: &tick})
			}

		case opUnsubscribe:
			g.mu.Lock()
			g.unsubscribes++
			drop := g.dropOnUnsubscribe
			g.mu.Unlock()
			if drop {
				return // tear the connection down with no close frame
			}

		case opHistory:
			g.mu.Lock()
			g.historyCalls = append(g.historyCalls, req)
			fn := g.history
			g.mu.Unlock()
			if fn == nil {
				conn.WriteJSON(gatewayFrame{Op: opHistory, ID: req.ID, Code: codeOK})
				continue
			}
			bars, ok := fn(req)
			if !ok {
				conn.WriteJSON(gatewayFrame{Op: opHistory, ID: req.ID, Code: codeRejected, Msg: "pacing violation"})
				continue
			}
			conn.WriteJSON(gatewayFrame{Op: opHistory, ID: req.ID, Code: codeOK, Bars: bars})
		}
	}
}

// dial connects a session to the fake gateway, failing the test on error
func (g *fakeGateway) dial(t *testing.T) *Session {
	t.Helper()
	sess, err := Connect(t.Context(), g.connectConfig())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

func (g *fakeGateway) counts() (connects, disconnects, handshakes, unsubscribes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connects, g.disconnects, g.handshakes, g.unsubscribes
}

func (g *fakeGateway) historyRequests() []clientFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]clientFrame(nil), g.historyCalls...)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
