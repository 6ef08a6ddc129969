package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatfront/internal/api"
	"chatfront/internal/sse"
	"chatfront/internal/state"
)

// errorPlaceholder is what the assistant slot shows when a reply could not
// be obtained at all. The real cause lands in the error banner.
const errorPlaceholder = "[error] failed to get a response"

// serverDefaultTitle is what the backend names a session it titled itself.
const serverDefaultTitle = "New chat"

const maxTitleLen = 48

// sendOp tracks one send-and-reply operation: the two optimistic messages
// it appended and the running accumulator for the streamed reply.
type sendOp struct {
	sessionID   string
	userID      string
	assistantID string
	userMsg     state.Message
	autoTitle   string
	accum       string
	finalized   bool
	failed      bool
}

// SendMessage appends the user's message and a streaming assistant
// placeholder, then obtains the reply: incrementally over SSE when stream
// is true, in one round trip otherwise. Whatever happens on the wire, the
// placeholder is finalized and the global stream slot released before this
// returns.
//
// sessionID may be empty to target the current session. A send while
// another reply is streaming is rejected up front with ErrStreamActive and
// mutates nothing.
func (m *Manager) SendMessage(ctx context.Context, content, sessionID string, stream bool) error {
	op, err := m.begin(content, sessionID)
	if err != nil {
		return err
	}
	// Scoped release: no exit path may leave a message stuck streaming.
	defer func() {
		m.finalize(op, op.accum, "")
	}()

	if op.autoTitle != "" {
		// Best-effort: the optimistic title stands even if this fails.
		if err := m.client.RenameSession(ctx, op.sessionID, op.autoTitle); err != nil {
			m.log.Debug("auto-title rename failed", zap.String("session", op.sessionID), zap.Error(err))
		}
	}

	if stream {
		m.runStream(ctx, op, content)
	} else {
		m.runPlain(ctx, op, content)
	}
	return nil
}

// begin validates preconditions and applies the optimistic transitions
// (steps the UI sees before any network traffic). It is the only part of a
// send that needs mutual exclusion: claiming the stream slot must be
// atomic with checking it.
func (m *Manager) begin(content, sessionID string) (*sendOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.Snapshot()
	if snap.Pending == state.OpStreaming {
		return nil, ErrStreamActive
	}
	sid := sessionID
	if sid == "" {
		sid = snap.CurrentSessionID
	}
	if sid == "" {
		return nil, ErrNoActiveSession
	}
	sess, ok := snap.Get(sid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}

	now := time.Now()
	user := state.Message{
		ID:        uuid.NewString(),
		SessionID: sid,
		Role:      state.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	placeholder := state.Message{
		ID:        uuid.NewString(),
		SessionID: sid,
		Role:      state.RoleAssistant,
		CreatedAt: now,
		Streaming: true,
	}

	m.store.Apply(func(st state.ChatState) state.ChatState {
		st = state.ErrorSet(st, nil)
		st = state.MessageAppended(st, sid, user)
		return state.MessageAppended(st, sid, placeholder)
	})

	op := &sendOp{
		sessionID:   sid,
		userID:      user.ID,
		assistantID: placeholder.ID,
		userMsg:     user,
	}

	// First exchange in an untitled session names it after the message.
	if len(sess.Messages) == 0 && (sess.Title == "" || sess.Title == serverDefaultTitle) {
		op.autoTitle = truncateTitle(content)
		m.store.Apply(func(st state.ChatState) state.ChatState {
			return state.TitleUpdated(st, sid, op.autoTitle)
		})
	}
	return op, nil
}

// runStream opens the SSE transport and feeds it through the decoder. A
// rejected or unreachable streaming endpoint falls back to exactly one
// plain request; a server that answers a stream request synchronously is
// honored as-is.
func (m *Manager) runStream(ctx context.Context, op *sendOp, content string) {
	resp, err := m.client.OpenStream(ctx, op.sessionID, content)
	if err != nil {
		m.log.Warn("stream open failed, falling back to plain request",
			zap.String("session", op.sessionID), zap.Error(err))
		m.runPlain(ctx, op, content)
		return
	}
	defer resp.Body.Close()

	if !api.IsEventStream(resp) {
		msg, derr := api.DecodePlainReply(resp.Body, op.sessionID)
		if derr != nil {
			m.fail(op, derr)
			return
		}
		m.finalizeReply(op, msg.Content, msg.ID)
		return
	}

	m.consume(op, resp.Body)
}

// runPlain is the single request/response cycle: same finalize semantics,
// no intermediate deltas.
func (m *Manager) runPlain(ctx context.Context, op *sendOp, content string) {
	msg, err := m.client.SendPlain(ctx, op.sessionID, content)
	if err != nil {
		m.fail(op, err)
		return
	}
	m.finalizeReply(op, msg.Content, msg.ID)
}

// consume reads the SSE body chunk by chunk until a completion record, a
// transport failure, or end of stream. Deltas are applied as the full
// accumulated text so the store always holds the complete current reply.
func (m *Manager) consume(op *sendOp, body io.Reader) {
	dec := sse.NewDecoder(m.log)
	buf := make([]byte, 4096)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Decode(buf[:n]) {
				if m.handleEvent(op, ev) {
					return
				}
			}
		}
		if rerr == io.EOF {
			// Transport closed without a completion record: finalize with
			// whatever accumulated rather than leaving the slot wedged.
			m.finalizeReply(op, op.accum, "")
			return
		}
		if rerr != nil {
			m.fail(op, fmt.Errorf("stream read failed: %w", rerr))
			return
		}
	}
}

// handleEvent applies one decoded event. Returns true when the operation
// is finished and no further reading is wanted.
func (m *Manager) handleEvent(op *sendOp, ev sse.Event) bool {
	switch ev.Kind {
	case sse.KindDelta:
		op.accum += ev.Payload.Content
		m.store.Apply(func(st state.ChatState) state.ChatState {
			return state.StreamDeltaApplied(st, op.sessionID, op.assistantID, op.accum)
		})
		return false

	case sse.KindComplete:
		final := op.accum
		if final == "" {
			final = ev.Payload.Content
		}
		m.finalizeReply(op, final, ev.Payload.ID.String())
		return true

	default:
		if ev.Payload.Error != "" {
			m.fail(op, errors.New(ev.Payload.Error))
			return true
		}
		if ev.Payload.Type == "user_message" {
			// The server echoes the persisted user message with its real
			// id; swap the provisional one in place.
			if id := ev.Payload.ID.String(); id != "" {
				m.store.Apply(func(st state.ChatState) state.ChatState {
					return state.MessageIDReplaced(st, op.sessionID, op.userID, id)
				})
				op.userID = id
				op.userMsg.ID = id
			}
		}
		return false
	}
}

// fail finalizes the placeholder with the error marker and raises the
// banner. Other sessions and messages are untouched.
func (m *Manager) fail(op *sendOp, err error) {
	op.failed = true
	m.setError("send message", err)
	m.finalize(op, errorPlaceholder, "")
}

// finalizeReply is the success-path finalize: fixes the content, swaps in
// the server id, and mirrors the exchange to local history.
func (m *Manager) finalizeReply(op *sendOp, content, finalID string) {
	op.accum = content
	m.finalize(op, content, finalID)
}

// finalize ends the operation exactly once. The underlying transition is a
// tolerated no-op when the target session was deleted mid-stream; the slot
// is released in every case.
func (m *Manager) finalize(op *sendOp, content, finalID string) {
	if op.finalized {
		return
	}
	op.finalized = true

	m.store.Apply(func(st state.ChatState) state.ChatState {
		return state.StreamFinalized(st, op.sessionID, op.assistantID, content, finalID)
	})

	if op.failed {
		return
	}
	// Mirror only if the session still exists; a post-delete write would
	// resurrect rows the delete just dropped.
	snap := m.store.Snapshot()
	if _, ok := snap.Get(op.sessionID); !ok {
		return
	}
	m.mirror(op.sessionID, op.userMsg)
	assistantID := op.assistantID
	if finalID != "" {
		assistantID = finalID
	}
	m.mirror(op.sessionID, state.Message{
		ID:        assistantID,
		SessionID: op.sessionID,
		Role:      state.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen-1]) + "…"
}
