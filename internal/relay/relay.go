// Package relay fans session events out to connection queues.
package relay

import (
	"encoding/json"
	"sync"

	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/pkg/chessmsg"
	"go.uber.org/zap"
)

// Event is either addressed to one connection (Target set) or to everyone.
type Event struct {
	Target  string
	Message chessmsg.Envelope
}

func Global(msg chessmsg.Envelope) Event { return Event{Message: msg} }

func Targeted(connID string, msg chessmsg.Envelope) Event {
	return Event{Target: connID, Message: msg}
}

func (e Event) IsGlobal() bool { return e.Target == "" }

// Sink is a per-connection FIFO. Enqueue must not block; a false return means the
// queue is full and the connection is kicked.
type Sink interface {
	Enqueue(frame []byte) bool
	Kick(reason string)
}

// Publisher receives a copy of every global frame with its message type.
type Publisher interface {
	Publish(typ chessmsg.Type, frame []byte)
}

type Relay struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	feed  Publisher
}

func New(feed Publisher) *Relay {
	return &Relay{sinks: make(map[string]Sink), feed: feed}
}

func (r *Relay) Attach(id string, s Sink) {
	r.mu.Lock()
	r.sinks[id] = s
	r.mu.Unlock()
}

func (r *Relay) Detach(id string) {
	r.mu.Lock()
	delete(r.sinks, id)
	r.mu.Unlock()
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Dispatch delivers events in order. Each frame is marshalled once.
func (r *Relay) Dispatch(events ...Event) {
	for _, ev := range events {
		frame, err := json.Marshal(ev.Message)
		if err != nil {
			obslog.L().Error("relay_marshal_error", zap.String("type", string(ev.Message.Type)), zap.Error(err))
			continue
		}
		if ev.IsGlobal() {
			r.broadcast(frame, ev.Message.Type)
			if r.feed != nil {
				r.feed.Publish(ev.Message.Type, frame)
			}
			continue
		}
		r.mu.RLock()
		s, ok := r.sinks[ev.Target]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		r.deliver(ev.Target, s, frame, ev.Message.Type)
	}
}

func (r *Relay) broadcast(frame []byte, typ chessmsg.Type) {
	r.mu.RLock()
	targets := make(map[string]Sink, len(r.sinks))
	for id, s := range r.sinks {
		targets[id] = s
	}
	r.mu.RUnlock()
	for id, s := range targets {
		r.deliver(id, s, frame, typ)
	}
}

func (r *Relay) deliver(id string, s Sink, frame []byte, typ chessmsg.Type) {
	if s.Enqueue(frame) {
		return
	}
	// 큐가 가득 찬 연결은 순서가 깨지기 전에 끊는다
	obslog.L().Warn("relay_queue_full", zap.String("conn_id", id), zap.String("type", string(typ)))
	s.Kick("send queue full")
	r.Detach(id)
}
