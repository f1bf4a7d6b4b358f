// Package seat tracks live connections and which of them hold the two playing seats.
package seat

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Seat is white, black or Observer (empty).
type Seat string

const (
	Observer Seat = ""
	White    Seat = "white"
	Black    Seat = "black"
)

func (s Seat) Seated() bool { return s == White || s == Black }

// Opponent returns the other playing seat; observers have none.
func (s Seat) Opponent() Seat {
	switch s {
	case White:
		return Black
	case Black:
		return White
	}
	return Observer
}

func (s Seat) String() string {
	if s == Observer {
		return "observer"
	}
	return string(s)
}

// Connection is one attached client.
type Connection struct {
	ID       string
	Name     string
	Seat     Seat
	JoinedAt time.Time
}

var ErrUnknownConnection = errors.New("unknown connection")

// Registry assigns seats White first, then Black, everyone else observes.
// It is safe for concurrent use; callers that need a consistent view across several
// calls (the session) serialise through their own lock.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	holders map[Seat]string
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		holders: make(map[Seat]string),
		now:     time.Now,
	}
}

// Attach registers id as an observer. Attaching an existing id is a no-op.
func (r *Registry) Attach(id string) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		return *c
	}
	c := &Connection{ID: id, JoinedAt: r.now()}
	r.conns[id] = c
	return *c
}

// Detach forgets id, releasing its seat, and returns what it held.
func (r *Registry) Detach(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	if c.Seat.Seated() && r.holders[c.Seat] == id {
		delete(r.holders, c.Seat)
	}
	delete(r.conns, id)
	return *c, true
}

// AssignSeat gives id the first vacant seat, or keeps the seat it already holds.
// filled is true when this call occupied a seat and both seats are now held.
func (r *Registry) AssignSeat(id, name string) (s Seat, filled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return Observer, false, ErrUnknownConnection
	}
	if n := strings.TrimSpace(name); n != "" {
		c.Name = n
	}
	if c.Seat.Seated() {
		return c.Seat, false, nil
	}
	for _, candidate := range []Seat{White, Black} {
		if _, taken := r.holders[candidate]; taken {
			continue
		}
		r.holders[candidate] = id
		c.Seat = candidate
		_, w := r.holders[White]
		_, b := r.holders[Black]
		return candidate, w && b, nil
	}
	return Observer, false, nil
}

// ReleaseSeat vacates the seat held by id and reports which one it was.
func (r *Registry) ReleaseSeat(id string) (Seat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok || !c.Seat.Seated() {
		return Observer, false
	}
	held := c.Seat
	delete(r.holders, held)
	c.Seat = Observer
	return held, true
}

func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// SeatOf is Observer for unknown ids.
func (r *Registry) SeatOf(id string) Seat {
	c, _ := r.Lookup(id)
	return c.Seat
}

// Holder returns the connection occupying s.
func (r *Registry) Holder(s Seat) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.holders[s]
	if !ok {
		return Connection{}, false
	}
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Connections lists everyone in join order.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, *c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Observers() []Connection {
	return lo.Filter(r.Connections(), func(c Connection, _ int) bool { return !c.Seat.Seated() })
}

// Names returns the display names of the seated players.
func (r *Registry) Names() (white, black string) {
	if c, ok := r.Holder(White); ok {
		white = c.Name
	}
	if c, ok := r.Holder(Black); ok {
		black = c.Name
	}
	return white, black
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
