// Package session composes the public chat operation surface. The Manager
// is what UI collaborators call: it owns the state.Store, talks to the
// backend through api.Client, and runs the streaming ingestion of
// assistant replies. UI code only ever reads store snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatfront/internal/api"
	"chatfront/internal/state"
)

var (
	// ErrNoActiveSession means no target session could be resolved for an
	// operation. Nothing was mutated.
	ErrNoActiveSession = errors.New("no active session")
	// ErrStreamActive rejects a send while a reply is already streaming.
	// Callers are expected to disable send in that state; this guard keeps
	// the single global stream slot honest anyway.
	ErrStreamActive = errors.New("a reply is already streaming")
	// ErrUnknownSession means the given session id is not in the store.
	ErrUnknownSession = errors.New("unknown session")
)

// HistoryStore mirrors finalized exchanges to local storage. Failures are
// logged, never surfaced: the in-memory store is authoritative.
type HistoryStore interface {
	SaveMessage(sessionID string, msg state.Message) error
	DeleteSession(sessionID string) error
}

// Manager is the session facade.
type Manager struct {
	store   *state.Store
	client  *api.Client
	history HistoryStore
	log     *zap.Logger

	mu     sync.Mutex
	loaded map[string]bool // sessions whose message history has been fetched
}

// NewManager wires a facade. history may be nil to disable the local
// mirror; a nil logger becomes a no-op one.
func NewManager(st *state.Store, client *api.Client, history HistoryStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:   st,
		client:  client,
		history: history,
		log:     log,
		loaded:  make(map[string]bool),
	}
}

// Store exposes the state store for snapshot reads.
func (m *Manager) Store() *state.Store { return m.store }

// LoadSessions fetches the session list and selects the first one if
// nothing is selected yet. The selected session's history is loaded too.
func (m *Manager) LoadSessions(ctx context.Context) error {
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.LoadingSet(st, true)
	})
	defer m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.LoadingSet(st, false)
	})

	sessions, err := m.client.ListSessions(ctx)
	if err != nil {
		m.setError("load sessions", err)
		return err
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.SessionsLoaded(st, sessions)
	})

	if cur := m.store.Snapshot().CurrentSessionID; cur != "" {
		return m.loadHistory(ctx, cur)
	}
	return nil
}

// CreateSession creates a session server-side, inserts it at the front and
// selects it. Returns the new session id.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	sess, err := m.client.CreateSession(ctx, "")
	if err != nil {
		m.setError("create session", err)
		return "", err
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.SessionCreated(st, sess)
	})
	m.markLoaded(sess.ID) // a fresh session has no history to fetch
	return sess.ID, nil
}

// SelectSession switches the current session, lazily fetching its history
// the first time it is viewed.
func (m *Manager) SelectSession(ctx context.Context, id string) error {
	if _, ok := m.store.Snapshot().Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.SessionSelected(st, id)
	})
	if m.isLoaded(id) {
		return nil
	}
	return m.loadHistory(ctx, id)
}

// DeleteSession removes a session remotely, then locally. Deleting the
// session a stream is running into is fine: the stream's remaining
// transitions become no-ops and the slot is released immediately.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if err := m.client.DeleteSession(ctx, id); err != nil {
		m.setError("delete session", err)
		return err
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.SessionDeleted(st, id)
	})
	m.mu.Lock()
	delete(m.loaded, id)
	m.mu.Unlock()
	if m.history != nil {
		if err := m.history.DeleteSession(id); err != nil {
			m.log.Warn("failed to drop local history", zap.String("session", id), zap.Error(err))
		}
	}
	return nil
}

// RenameSession applies the new title immediately and pushes it to the
// server best-effort. A remote failure only sets the error banner; the
// optimistic title is deliberately kept (accepted divergence).
func (m *Manager) RenameSession(ctx context.Context, id, title string) error {
	if _, ok := m.store.Snapshot().Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.TitleUpdated(st, id, title)
	})
	if err := m.client.RenameSession(ctx, id, title); err != nil {
		m.setError("rename session", err)
	}
	return nil
}

func (m *Manager) loadHistory(ctx context.Context, id string) error {
	msgs, err := m.client.GetMessages(ctx, id)
	if err != nil {
		m.setError("load history", err)
		return err
	}
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.MessagesLoaded(st, id, msgs)
	})
	m.markLoaded(id)
	return nil
}

func (m *Manager) isLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[id]
}

func (m *Manager) markLoaded(id string) {
	m.mu.Lock()
	m.loaded[id] = true
	m.mu.Unlock()
}

func (m *Manager) setError(op string, err error) {
	m.log.Warn("operation failed", zap.String("op", op), zap.Error(err))
	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.ErrorSet(st, &state.ErrorInfo{Op: op, Message: err.Error(), Time: time.Now()})
	})
}

func (m *Manager) mirror(sessionID string, msg state.Message) {
	if m.history == nil || msg.Content == "" {
		return
	}
	if err := m.history.SaveMessage(sessionID, msg); err != nil {
		m.log.Warn("failed to mirror message", zap.String("session", sessionID), zap.Error(err))
	}
}
