package state

import (
	"sync"
)

// Store owns the live ChatState. Transitions are applied one at a time under
// the lock, giving the same no-interleaving guarantee the transitions were
// designed for; readers only ever see deep-copied snapshots. A buffered
// change signal lets the UI redraw without polling.
type Store struct {
	mu        sync.Mutex
	st        ChatState
	version   uint64
	changes   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore returns a store holding an empty aggregate.
func NewStore() *Store {
	return &Store{
		st:      NewChatState(),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Apply runs one transition atomically and publishes the result.
func (s *Store) Apply(fn func(ChatState) ChatState) {
	s.mu.Lock()
	s.st = fn(s.st)
	s.version++
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default: // a redraw is already pending
	}
}

// Snapshot returns an independent copy of the current state.
func (s *Store) Snapshot() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Version counts applied transitions, mostly for tests.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Changes signals after each applied transition. Signals coalesce: a slow
// consumer sees at least one signal for any burst.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Done is closed by Close. Consumers blocked on Changes select on it so
// they can unwind when the store's owner shuts down.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Close releases anyone waiting on Changes. Safe to call more than once;
// Apply and Snapshot remain usable after.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
