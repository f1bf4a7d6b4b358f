// Package roomws is the websocket transport of the room: one reader and one writer
// goroutine per connection, with the session behind a single dispatch switch.
package roomws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/internal/relay"
	"github.com/park285/chessroom/internal/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingTimeout  = 3 * time.Second
	readLimit    = 4096

	shutdownReason = "server shutdown"
)

type Options struct {
	Session *session.Session
	Relay   *relay.Relay
	// AllowedOrigins are host patterns; empty means same-origin only.
	AllowedOrigins []string
	SendQueueSize  int
	PingInterval   time.Duration
	NewConnID      func() string
}

type Server struct {
	session      *session.Session
	relay        *relay.Relay
	origins      []string
	queueSize    int
	pingInterval time.Duration
	newID        func() string

	// mu orders wg.Add against Shutdown.
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing chan struct{}
	closed  bool
}

func NewServer(opts Options) (*Server, error) {
	if opts.Session == nil || opts.Relay == nil {
		return nil, errors.New("roomws: session and relay are required")
	}
	s := &Server{
		session:      opts.Session,
		relay:        opts.Relay,
		origins:      opts.AllowedOrigins,
		queueSize:    opts.SendQueueSize,
		pingInterval: opts.PingInterval,
		newID:        opts.NewConnID,
		closing:      make(chan struct{}),
	}
	if s.queueSize <= 0 {
		s.queueSize = 64
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 15 * time.Second
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// peer is the relay sink of one connection.
type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	// done stops the writer; closed by the first Kick.
	done chan struct{}

	once   sync.Once
	reason string
}

func (p *peer) Enqueue(frame []byte) bool {
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// Kick stops the writer and closes the connection; the reader then fails and the
// handler cleans up. It never blocks, since the relay calls it under the session lock.
func (p *peer) Kick(reason string) {
	p.once.Do(func() {
		p.reason = reason
		close(p.done)
		status := websocket.StatusNormalClosure
		switch reason {
		case "":
		case shutdownReason:
			status = websocket.StatusGoingAway
		default:
			status = websocket.StatusPolicyViolation
		}
		go func() { _ = p.conn.Close(status, reason) }()
	})
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closing:
		http.Error(w, shutdownReason, http.StatusServiceUnavailable)
		return
	default:
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Info("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c.SetReadLimit(readLimit)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close(websocket.StatusGoingAway, shutdownReason)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	p := &peer{id: s.newID(), conn: c, send: make(chan []byte, s.queueSize), done: make(chan struct{})}
	s.relay.Attach(p.id, p)
	s.session.Connect(p.id)
	obslog.L().Info("ws_connected", zap.String("conn_id", p.id), zap.String("remote", r.RemoteAddr))

	go func() {
		select {
		case <-s.closing:
			p.Kick(shutdownReason)
		case <-p.done:
		}
	}()

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		s.writeLoop(c, p)
	}()

	err = s.readLoop(r.Context(), c, p.id)

	p.Kick("")
	writer.Wait()
	s.relay.Detach(p.id)
	s.session.Leave(p.id)
	obslog.L().Info("ws_disconnected",
		zap.String("conn_id", p.id),
		zap.String("kick_reason", p.reason),
		zap.String("close_status", websocket.CloseStatus(err).String()),
	)
}

func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, connID string) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		s.handleFrame(connID, data)
	}
}

func (s *Server) writeLoop(c *websocket.Conn, p *peer) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("conn_id", p.id), zap.Error(err))
				p.Kick("write failed")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_ping_error", zap.String("conn_id", p.id), zap.Error(err))
				p.Kick("ping timeout")
				return
			}
		}
	}
}

// Shutdown closes every connection and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until every connection handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}
