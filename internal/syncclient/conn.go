package syncclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/pkg/chessmsg"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

var ErrNotConnected = errors.New("not connected")

// Conn is the client websocket. A dropped connection is redialled with backoff;
// the server treats the new connection as a fresh arrival, so OnStateChange callers
// re-send joinGame on StateConnected.
type Conn struct {
	url    string
	header http.Header

	mu    sync.RWMutex
	conn  *websocket.Conn
	state ConnState
	// wmu serialises writers; wsjson.Write is not safe for concurrent use.
	wmu sync.Mutex

	onMessage func(chessmsg.Envelope)
	onState   func(ConnState)

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type ConnOption func(*Conn)

func WithReconnectAttempts(n int) ConnOption { return func(c *Conn) { c.maxReconnectAttempts = n } }

func WithPingInterval(d time.Duration) ConnOption { return func(c *Conn) { c.pingInterval = d } }

func WithHeader(h http.Header) ConnOption { return func(c *Conn) { c.header = h } }

func NewConn(wsURL string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:                  wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         20 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

// OnMessage and OnStateChange must be set before Connect.
func (c *Conn) OnMessage(cb func(chessmsg.Envelope)) { c.onMessage = cb }

func (c *Conn) OnStateChange(cb func(ConnState)) { c.onState = cb }

func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) Connect(ctx context.Context) error {
	if s := c.State(); s == StateConnected || s == StateConnecting {
		return nil
	}
	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	return nil
}

func (c *Conn) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.header,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.isStopping() {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
		return ErrNotConnected
	}
	c.conn = ws
	c.wg.Add(2)
	c.mu.Unlock()

	go c.listen(ws)
	go c.pingLoop(ws)
	c.setState(StateConnected)
	return nil
}

func (c *Conn) listen(ws *websocket.Conn) {
	defer c.wg.Done()
	for {
		var env chessmsg.Envelope
		if err := wsjson.Read(c.rootCtx, ws, &env); err != nil {
			if c.isStopping() {
				return
			}
			obslog.L().Info("client_ws_read_error", zap.Error(err))
			c.drop(ws, "read failed")
			return
		}
		if cb := c.onMessage; cb != nil {
			cb(env)
		}
	}
}

func (c *Conn) pingLoop(ws *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.rootCtx.Done():
			return
		case <-t.C:
			if c.current() != ws {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.drop(ws, "ping failure")
				return
			}
		}
	}
}

func (c *Conn) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// drop closes ws if it is still current and starts reconnecting.
func (c *Conn) drop(ws *websocket.Conn, reason string) {
	c.mu.Lock()
	if c.conn != ws {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	_ = ws.Close(websocket.StatusGoingAway, reason)
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Conn) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 || c.isStopping() {
		return
	}
	c.setState(StateReconnecting)
	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			if err := c.dial(c.rootCtx); err != nil {
				obslog.L().Debug("client_ws_redial_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return
		}
		c.setState(StateFailed)
	}()
}

// Send implements Sender.
func (c *Conn) Send(ctx context.Context, env chessmsg.Envelope) error {
	ws := c.current()
	if ws == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsjson.Write(ctx, ws, env)
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if cb := c.onState; cb != nil {
		cb(s)
	}
}

func (c *Conn) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	ws := c.conn
	c.conn = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}
	c.rootCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Conn) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
}
