package relay

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/wtask/relay/internal/metrics"
)

// Queue - ordered buffer of pending client lines together with the registry of sessions.
// Both are guarded by the same mutex, so a drain and a prune made on a single
// broadcast tick are consistent with each other.
type Queue struct {
	clock clockwork.Clock

	mu       sync.Mutex
	pending  []string
	sessions map[*Session]struct{}
}

// NewQueue - builds empty queue. Packet timestamps are taken from clock.
func NewQueue(clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{
		clock:    clock,
		sessions: make(map[*Session]struct{}),
	}
}

// Enqueue - appends formatted line to the tail.
func (q *Queue) Enqueue(text string) {
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.mu.Unlock()
	metrics.MessagesEnqueued.Inc()
}

// Len - number of pending lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainAndFormat - takes all pending lines and renders them as a packet.
// Returns false and does nothing else when queue is empty.
func (q *Queue) DrainAndFormat() (string, bool) {
	q.mu.Lock()
	p, ok := q.drain()
	q.mu.Unlock()
	if !ok {
		return "", false
	}
	return p.String(), true
}

// drain - must be called under q.mu.
func (q *Queue) drain() (Packet, bool) {
	if len(q.pending) == 0 {
		return Packet{}, false
	}
	p := Packet{Time: q.clock.Now(), Messages: q.pending}
	q.pending = nil
	return p, true
}

// Register - adds session into registry. Returns false if it is registered already.
func (q *Queue) Register(s *Session) bool {
	if s == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.sessions[s]; ok {
		return false
	}
	q.sessions[s] = struct{}{}
	metrics.SessionsActive.Inc()
	return true
}

// Deregister - removes session from registry. Returns false if it was not registered.
func (q *Queue) Deregister(s *Session) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.sessions[s]; !ok {
		return false
	}
	delete(q.sessions, s)
	metrics.SessionsActive.Dec()
	return true
}

// Sessions - returns snapshot of registered sessions in no particular order.
func (q *Queue) Sessions() []*Session {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := make([]*Session, 0, len(q.sessions))
	for s := range q.sessions {
		list = append(list, s)
	}
	return list
}

// SessionCount - number of registered sessions.
func (q *Queue) SessionCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sessions)
}

// collect - one broadcast pass in a single critical section: drains pending lines and,
// if there was anything to drain, removes dead sessions and snapshots the live ones.
// Neither enqueue nor registration can interleave with it.
func (q *Queue) collect() (p Packet, live, dead []*Session, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok = q.drain()
	if !ok {
		return p, nil, nil, false
	}
	live = make([]*Session, 0, len(q.sessions))
	for s := range q.sessions {
		if !s.IsConnected() {
			delete(q.sessions, s)
			dead = append(dead, s)
			continue
		}
		live = append(live, s)
	}
	metrics.SessionsActive.Sub(float64(len(dead)))
	return p, live, dead, true
}
