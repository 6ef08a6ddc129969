// Package state holds the client-side chat aggregate: every session the user
// can see, the message lists inside them, and the single global streaming
// slot. All mutation goes through the pure transition functions in
// transitions.go; everything else reads immutable snapshots.
package state

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PendingOp describes the one operation the UI surfaces globally.
type PendingOp string

const (
	OpIdle      PendingOp = "idle"
	OpLoading   PendingOp = "loading"
	OpStreaming PendingOp = "streaming"
)

// Message is a single chat message. While Streaming is true the ID is a
// provisional client-generated one; finalization may swap it for the
// server-issued ID without moving the message in the list.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
	Streaming bool
}

// Session is one conversation: an insertion-ordered message list plus
// metadata. UpdatedAt advances whenever a message is appended or edited.
type Session struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrorInfo is the last surfaced error, for banner display.
type ErrorInfo struct {
	Op      string
	Message string
	Time    time.Time
}

// ChatState is the aggregate root. Order mirrors iteration order of the
// session list (newest first, as the server returns them).
type ChatState struct {
	Sessions         map[string]Session
	Order            []string
	CurrentSessionID string
	Pending          PendingOp
	ActiveStreamID   string // message id of the in-flight assistant reply
	ActiveStreamSess string // session that message lives in
	LastError        *ErrorInfo
}

// NewChatState returns an empty aggregate.
func NewChatState() ChatState {
	return ChatState{
		Sessions: map[string]Session{},
		Pending:  OpIdle,
	}
}

// =============================================================================
// SELECTORS
// =============================================================================

// Current returns the selected session, if any.
func (s ChatState) Current() (Session, bool) {
	return s.Get(s.CurrentSessionID)
}

// Get looks up a session by id.
func (s ChatState) Get(id string) (Session, bool) {
	sess, ok := s.Sessions[id]
	return sess, ok
}

// SessionList returns sessions in iteration order.
func (s ChatState) SessionList() []Session {
	out := make([]Session, 0, len(s.Order))
	for _, id := range s.Order {
		if sess, ok := s.Sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// StreamingCount reports how many messages across the whole aggregate are
// still marked streaming. The invariant is that this never exceeds one.
func (s ChatState) StreamingCount() int {
	n := 0
	for _, sess := range s.Sessions {
		for _, m := range sess.Messages {
			if m.Streaming {
				n++
			}
		}
	}
	return n
}

// clone deep-copies the aggregate so transitions never alias a snapshot a
// reader may still hold.
func (s ChatState) clone() ChatState {
	out := s
	out.Sessions = make(map[string]Session, len(s.Sessions))
	for id, sess := range s.Sessions {
		out.Sessions[id] = sess.clone()
	}
	out.Order = append([]string(nil), s.Order...)
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

func (sess Session) clone() Session {
	out := sess
	out.Messages = append([]Message(nil), sess.Messages...)
	return out
}
