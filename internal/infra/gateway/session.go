package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gwdiag/internal/domain"
	"gwdiag/internal/infra"
)

// ConnectConfig carries everything needed to open one gateway session
type ConnectConfig struct {
	Host             string
	Port             int
	SessionID        int
	Account          string
	ProbeTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// Session is one live connection to the gateway process: the transport
// handle every other gateway operation runs through. Owned exclusively by
// the caller that opened it; never shared across concurrent runs (distinct
// runs use distinct session ids instead).
type Session struct {
	host      string
	port      int
	sessionID int
	createdAt time.Time

	conn      *websocket.Conn
	mu        sync.RWMutex // guards conn, connected
	writeMu   sync.Mutex
	connected bool

	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *gatewayFrame

	subsMu sync.RWMutex
	subs   map[uint64]*Subscription

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// Connect opens exactly one transport session to the gateway.
//
// A cheap raw-socket probe runs before the protocol handshake so that a
// gateway that is simply not running fails fast as ErrGatewayUnreachable,
// distinct from a handshake rejection or timeout. A handshake timeout is
// retried exactly once with a fresh attempt; any other handshake error is
// surfaced immediately.
func Connect(ctx context.Context, cfg ConnectConfig) (*Session, error) {
	infra.GlobalMetrics.RecordConnectAttempt()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	probe, err := net.DialTimeout("tcp", addr, cfg.ProbeTimeout)
	if err != nil {
		return nil, domain.NewFatalGatewayError("probe",
			fmt.Errorf("%w: %v", domain.ErrGatewayUnreachable, err))
	}
	probe.Close()

	sess, err := attemptHandshake(ctx, cfg, addr)
	if err != nil && errors.Is(err, domain.ErrHandshakeTimeout) {
		slog.Warn("Handshake timed out, retrying once",
			slog.String("addr", addr),
			slog.Int("session_id", cfg.SessionID),
		)
		infra.GlobalMetrics.RecordHandshakeRetry()
		sess, err = attemptHandshake(ctx, cfg, addr)
	}
	if err != nil {
		return nil, err
	}

	sess.wg.Add(1)
	go sess.readLoop()

	slog.Info("Gateway session connected",
		slog.String("addr", addr),
		slog.Int("session_id", cfg.SessionID),
	)
	return sess, nil
}

// attemptHandshake dials the websocket endpoint and performs one protocol
// handshake. Timeouts come back as retriable ErrHandshakeTimeout, everything
// else as a rejection.
func attemptHandshake(ctx context.Context, cfg ConnectConfig, addr string) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewGatewayError("handshake", domain.ErrHandshakeTimeout)
		}
		return nil, domain.NewFatalGatewayError("handshake",
			fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err))
	}

	deadline := time.Now().Add(cfg.HandshakeTimeout)
	conn.SetWriteDeadline(deadline)
	req := handshakeRequest{Op: opHandshake, SessionID: cfg.SessionID, Account: cfg.Account}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, domain.NewGatewayError("handshake", domain.ErrHandshakeTimeout)
		}
		return nil, domain.NewFatalGatewayError("handshake",
			fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err))
	}

	conn.SetReadDeadline(deadline)
	var reply gatewayFrame
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, domain.NewGatewayError("handshake", domain.ErrHandshakeTimeout)
		}
		return nil, domain.NewFatalGatewayError("handshake",
			fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err))
	}

	switch reply.Code {
	case codeOK:
	case codeSessionInUse:
		conn.Close()
		return nil, domain.NewFatalGatewayError("handshake", domain.ErrSessionInUse)
	default:
		conn.Close()
		return nil, domain.NewFatalGatewayError("handshake",
			fmt.Errorf("%w: code=%s msg=%s", domain.ErrHandshakeRejected, reply.Code, reply.Msg))
	}

	// Clear deadlines; per-request timeouts take over from here.
	conn.SetWriteDeadline(time.Time{})
	conn.SetReadDeadline(time.Time{})

	return &Session{
		host:      cfg.Host,
		port:      cfg.Port,
		sessionID: cfg.SessionID,
		createdAt: time.Now(),
		conn:      conn,
		connected: true,
		pending:   make(map[uint64]chan *gatewayFrame),
		subs:      make(map[uint64]*Subscription),
		done:      make(chan struct{}),
	}, nil
}

// isTimeout reports whether err is a timeout at any wrapping level
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// SessionID returns the id this session handshook with
func (s *Session) SessionID() int {
	return s.sessionID
}

// CreatedAt returns the session creation timestamp
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// IsConnected returns connection status
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Close disconnects from the gateway. Idempotent: every caller that
// successfully connects must guarantee a matching Close on every exit path
// so the gateway does not accumulate orphaned sessions blocking retries.
func (s *Session) Close() {
	s.closeConnection()
	s.wg.Wait()
	slog.Info("Gateway session disconnected", slog.Int("session_id", s.sessionID))
}

// closeConnection safely tears down the websocket connection. The close
// frame is sent outside the state mutex: threadSafeWrite acquires writeMu
// before mu, so nesting writeMu inside mu here would invert the lock order
// and deadlock against an in-flight write. WriteControl is safe to call
// concurrently with other writes, so it needs no writeMu at all.
func (s *Session) closeConnection() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.doneOnce.Do(func() { close(s.done) })
}

// readLoop reads frames from the gateway and routes them: replies go to
// the pending request that issued them, ticks to their subscription cell.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Gateway read loop panic recovered", slog.Any("panic", r))
		}
	}()

	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		var frame gatewayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Gateway read error", slog.Any("error", err))
			}
			s.closeConnection()
			return
		}

		s.dispatch(&frame)
	}
}

// dispatch routes one inbound frame
func (s *Session) dispatch(frame *gatewayFrame) {
	if frame.Op == opTick {
		s.subsMu.RLock()
		sub := s.subs[frame.ID]
		s.subsMu.RUnlock()
		if sub != nil && frame.Tick != nil {
			sub.update(frame.Tick)
		}
		return
	}

	s.pendingMu.Lock()
	ch, ok := s.pending[frame.ID]
	if ok {
		delete(s.pending, frame.ID)
	}
	s.pendingMu.Unlock()

	if ok {
		ch <- frame // buffered; never blocks
	}
}

// threadSafeWrite sends a message to the websocket connection in a
// thread-safe manner
func (s *Session) threadSafeWrite(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	return conn.WriteJSON(v)
}

// request sends one frame and waits for the reply with the same id,
// bounded by ctx.
func (s *Session) request(ctx context.Context, id uint64, payload interface{}) (*gatewayFrame, error) {
	ch := make(chan *gatewayFrame, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	if err := s.threadSafeWrite(payload); err != nil {
		s.dropPending(id)
		return nil, domain.NewGatewayError("write", err)
	}

	select {
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case <-s.done:
		s.dropPending(id)
		return nil, domain.NewFatalGatewayError("read", errors.New("session closed"))
	case frame := <-ch:
		return frame, nil
	}
}

func (s *Session) dropPending(id uint64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// resolveOnce issues a single resolution request and returns the candidate
// list as the gateway reported it. Zero candidates is not an error.
func (s *Session) resolveOnce(ctx context.Context, req resolveRequest) ([]domain.ResolvedContract, error) {
	req.Op = opResolve
	req.ID = s.nextID.Add(1)

	frame, err := s.request(ctx, req.ID, req)
	if err != nil {
		return nil, err
	}
	if frame.Code != codeOK {
		return nil, domain.NewFatalGatewayError("resolve",
			fmt.Errorf("gateway error: code=%s msg=%s", frame.Code, frame.Msg))
	}

	candidates := make([]domain.ResolvedContract, 0, len(frame.Contracts))
	for _, c := range frame.Contracts {
		candidates = append(candidates, c.toDomain())
	}
	return candidates, nil
}

// Subscribe issues one streaming market data subscription for a contract.
// A synchronous gateway rejection comes back as ErrSubscriptionRejected.
func (s *Session) Subscribe(ctx context.Context, contractID int64) (*Subscription, error) {
	id := s.nextID.Add(1)
	sub := &Subscription{id: id, contractID: contractID}

	// Register before the ack so ticks racing the ack are not lost.
	s.subsMu.Lock()
	s.subs[id] = sub
	s.subsMu.Unlock()

	frame, err := s.request(ctx, id, subscribeRequest{Op: opSubscribe, ID: id, ContractID: contractID})
	if err != nil {
		s.removeSubscription(id)
		return nil, err
	}
	if frame.Code != codeOK {
		s.removeSubscription(id)
		return nil, domain.NewFatalGatewayError("subscribe",
			fmt.Errorf("%w: %s", domain.ErrSubscriptionRejected, frame.Msg))
	}

	return sub, nil
}

// Unsubscribe cancels a market data subscription. Best effort: the cell is
// always removed locally so repeated runs never leak gateway-side
// subscriptions even if the cancel frame cannot be written.
func (s *Session) Unsubscribe(sub *Subscription) {
	s.removeSubscription(sub.id)
	if err := s.threadSafeWrite(unsubscribeRequest{Op: opUnsubscribe, ID: sub.id}); err != nil {
		slog.Debug("Unsubscribe write failed", slog.Uint64("sub_id", sub.id), slog.Any("error", err))
	}
}

func (s *Session) removeSubscription(id uint64) {
	s.subsMu.Lock()
	delete(s.subs, id)
	s.subsMu.Unlock()
}

// fetchBars issues a single historical bars request for one sub-window
func (s *Session) fetchBars(ctx context.Context, contractID int64, window domain.Window, barSize string) ([]domain.Bar, error) {
	id := s.nextID.Add(1)
	req := historyRequest{
		Op:         opHistory,
		ID:         id,
		ContractID: contractID,
		Start:      window.Start.UTC().Format(time.RFC3339),
		End:        window.End.UTC().Format(time.RFC3339),
		BarSize:    barSize,
	}

	frame, err := s.request(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if frame.Code != codeOK {
		return nil, domain.NewGatewayError("history",
			fmt.Errorf("gateway error: code=%s msg=%s", frame.Code, frame.Msg))
	}

	bars := make([]domain.Bar, 0, len(frame.Bars))
	for _, b := range frame.Bars {
		bar, ok, err := b.toDomain()
		if err != nil {
			return nil, domain.NewGatewayError("history", fmt.Errorf("bad bar time %q: %w", b.Time, err))
		}
		if !ok {
			continue // bar with sentinel prices, nothing usable in it
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Subscription is one live market data stream. The read loop accumulates
// tick fields into it; SnapshotPoller samples it.
type Subscription struct {
	id         uint64
	contractID int64

	mu         sync.Mutex
	last       *float64
	bid        *float64
	ask        *float64
	closePrice *float64
	volume     *float64
	ts         int64
}

/// update merges one tick into the accumulated state. Ticks are partial:
// a field the gateway did not send keeps its previous value, while a field
// sent as the sentinel clears back to absent.
func (sub *Subscription) update(t *tickPayload) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if t.Last != nil {
		sub.last = t.Last.ptr()
	}
	if t.Bid != nil {
		sub.bid = t.Bid.ptr()
	}
	if t.Ask != nil {
		sub.ask = t.Ask.ptr()
	}
	if t.Close != nil {
		sub.closePrice = t.Close.ptr()
	}
	if t.Volume != nil {
		sub.volume = t.Volume.ptr()
	}
	sub.ts = t.TS
}

// Sample converts the current accumulated state into a validated snapshot.
// Sentinel not-a-number values become absent fields, never zeros.
func (sub *Subscription) Sample() *domain.MarketSnapshot {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	ts := time.Now()
	if sub.ts > 0 {
		ts = time.UnixMilli(sub.ts)
	}

	return &domain.MarketSnapshot{
		ContractID: sub.contractID,
		Last:       domain.PresentField(sub.last),
		Bid:        domain.PresentField(sub.bid),
		Ask:        domain.PresentField(sub.ask),
		Close:      domain.PresentField(sub.closePrice),
		Volume:     domain.PresentField(sub.volume),
		Timestamp:  ts,
	}
}
