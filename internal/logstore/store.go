// Package logstore provides the in-memory, append-only broadcast log for one
// spawned process: every appended line is retained for replay and fanned out
// to all live subscribers.
package logstore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosuda/corral/internal/domain"
)

// subscriberHeadroom is the live-delivery buffer added on top of the replay
// backlog for each new subscriber. A subscriber that falls this far behind
// the producer is disconnected with an overflow signal instead of stalling
// appends.
const subscriberHeadroom = 256

// Store is the broadcast log for a single process. It is safe for concurrent
// subscription and single-writer append.
type Store struct {
	mu      sync.Mutex
	lines   []domain.LogLine
	subs    map[uint64]*Subscription
	nextSub uint64
	closed  bool
}

// Subscription is one reader's view of a store: the full backlog in original
// order, then live lines until detach, overflow, or store close. The line
// channel is closed exactly once in all three cases.
type Subscription struct {
	id         uint64
	ch         chan domain.LogLine
	store      *Store
	overflowed atomic.Bool
}

// Lines returns the delivery channel. It is closed when the store closes,
// the subscription is detached, or the subscriber overflows.
func (s *Subscription) Lines() <-chan domain.LogLine {
	return s.ch
}

// Overflowed reports whether the subscription was disconnected because it
// could not keep up with the producer.
func (s *Subscription) Overflowed() bool {
	return s.overflowed.Load()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.store.detach(s.id)
}

// New creates an empty, open store.
func New() *Store {
	return &Store{
		subs: make(map[uint64]*Subscription),
	}
}

// Append assigns the next sequence number to a line, retains it, and
// delivers it to every live subscriber. Subscribers whose buffers are full
// are disconnected rather than blocking the producer.
func (st *Store) Append(stream domain.StreamKind, content string) (domain.LogLine, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return domain.LogLine{}, fmt.Errorf("logstore.Store.Append: %w", domain.ErrStoreClosed)
	}

	line := domain.LogLine{
		Seq:       uint64(len(st.lines)) + 1,
		Stream:    stream,
		Content:   content,
		CreatedAt: time.Now(),
	}
	st.lines = append(st.lines, line)

	for id, sub := range st.subs {
		select {
		case sub.ch <- line:
		default:
			sub.overflowed.Store(true)
			close(sub.ch)
			delete(st.subs, id)
		}
	}

	return line, nil
}

// Subscribe registers a new subscriber. The returned subscription first
// receives every previously appended line in sequence order, then all
// subsequent lines as they arrive.
func (st *Store) Subscribe() (*Subscription, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, fmt.Errorf("logstore.Store.Subscribe: %w", domain.ErrStoreClosed)
	}

	sub := &Subscription{
		id:    st.nextSub,
		ch:    make(chan domain.LogLine, len(st.lines)+subscriberHeadroom),
		store: st,
	}
	st.nextSub++

	// The channel capacity covers the whole backlog, so replay never blocks.
	for _, line := range st.lines {
		sub.ch <- line
	}

	st.subs[sub.id] = sub

	return sub, nil
}

// Close marks the store terminal. All live subscribers receive end-of-stream
// after draining their buffered lines; further appends and subscriptions
// fail with ErrStoreClosed. Safe to call more than once.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	st.closed = true

	for id, sub := range st.subs {
		close(sub.ch)
		delete(st.subs, id)
	}
}

// Len returns the number of lines appended so far.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.lines)
}

// Snapshot returns a copy of all lines appended so far, in sequence order.
// Usable after Close, unlike Subscribe.
func (st *Store) Snapshot() []domain.LogLine {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]domain.LogLine, len(st.lines))
	copy(out, st.lines)

	return out
}

func (st *Store) detach(id uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sub, ok := st.subs[id]
	if !ok {
		return
	}
	delete(st.subs, id)
	close(sub.ch)
}
