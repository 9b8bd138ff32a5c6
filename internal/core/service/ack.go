// Package service provides the connection registry and event router for SockMesh.
package service

import (
	"sort"
	"sync"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
)

// pendingAck is an emitted event waiting for its acknowledgement.
type pendingAck struct {
	id      int
	event   string
	handler AckHandler
	sentAt  time.Time
	timer   *time.Timer
}

// ackTable holds the pending acknowledgements of one session.
// IDs increase monotonically for the session's lifetime.
type ackTable struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]*pendingAck
	closed  bool
}

func newAckTable() *ackTable {
	return &ackTable{pending: make(map[int]*pendingAck)}
}

// register allocates an id for handler. When timeout is positive,
// onTimeout is called with the id once it elapses.
func (t *ackTable) register(event string, handler AckHandler, timeout time.Duration, onTimeout func(id int)) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, domain.ErrSessionClosed
	}

	id := t.nextID
	t.nextID++

	p := &pendingAck{id: id, event: event, handler: handler, sentAt: time.Now()}
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() { onTimeout(id) })
	}
	t.pending[id] = p
	return id, nil
}

// take removes and returns the pending entry for id.
func (t *ackTable) take(id int) (*pendingAck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p, true
}

// drain removes every pending entry, oldest first, and refuses further
// registrations.
func (t *ackTable) drain() []*pendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	out := make([]*pendingAck, 0, len(t.pending))
	for id, p := range t.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		out = append(out, p)
		delete(t.pending, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// len returns the number of pending acknowledgements.
func (t *ackTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
