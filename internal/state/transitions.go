package state

import "time"

// Transitions are pure and total: each takes the current aggregate and
// returns a new one, and a transition aimed at a session or message that no
// longer exists returns the input unchanged. The UI routinely races ahead of
// the network (a session can be deleted while a stream is mid-flight), so
// "target missing" is an expected condition here, never an error.

// SessionsLoaded replaces the session mapping wholesale. Sessions already
// holding messages keep them (a reload must not wipe lazily fetched
// history). If nothing is selected yet, the first session becomes current.
func SessionsLoaded(st ChatState, sessions []Session) ChatState {
	out := st.clone()
	prev := out.Sessions
	out.Sessions = make(map[string]Session, len(sessions))
	out.Order = out.Order[:0]
	for _, sess := range sessions {
		if old, ok := prev[sess.ID]; ok && len(sess.Messages) == 0 {
			sess.Messages = old.Messages
		}
		out.Sessions[sess.ID] = sess.clone()
		out.Order = append(out.Order, sess.ID)
	}
	if _, ok := out.Sessions[out.CurrentSessionID]; !ok {
		out.CurrentSessionID = ""
	}
	if out.CurrentSessionID == "" && len(out.Order) > 0 {
		out.CurrentSessionID = out.Order[0]
	}
	return out
}

// SessionCreated inserts a new session at the front and selects it.
func SessionCreated(st ChatState, sess Session) ChatState {
	out := st.clone()
	out.Sessions[sess.ID] = sess.clone()
	out.Order = append([]string{sess.ID}, out.Order...)
	out.CurrentSessionID = sess.ID
	return out
}

// SessionSelected switches the current session. Unknown ids are a no-op;
// callers verify existence first.
func SessionSelected(st ChatState, id string) ChatState {
	if _, ok := st.Sessions[id]; !ok {
		return st
	}
	out := st.clone()
	out.CurrentSessionID = id
	return out
}

// MessagesLoaded replaces a session's message list (lazy history fetch).
func MessagesLoaded(st ChatState, sessionID string, msgs []Message) ChatState {
	sess, ok := st.Sessions[sessionID]
	if !ok {
		return st
	}
	out := st.clone()
	sess = out.Sessions[sessionID]
	sess.Messages = append([]Message(nil), msgs...)
	out.Sessions[sessionID] = sess
	return out
}

// MessageAppended pushes a message onto a session and bumps UpdatedAt. A
// streaming message claims the global stream slot.
func MessageAppended(st ChatState, sessionID string, msg Message) ChatState {
	if _, ok := st.Sessions[sessionID]; !ok {
		return st
	}
	out := st.clone()
	sess := out.Sessions[sessionID]
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = laterOf(sess.UpdatedAt, msg.CreatedAt)
	out.Sessions[sessionID] = sess
	if msg.Streaming {
		out.ActiveStreamID = msg.ID
		out.ActiveStreamSess = sessionID
		out.Pending = OpStreaming
	}
	return out
}

// StreamDeltaApplied replaces the content of the streaming message. The
// caller passes the full accumulated text, not the increment, so the store
// always holds the complete current reply.
func StreamDeltaApplied(st ChatState, sessionID, messageID, content string) ChatState {
	sess, idx, ok := findMessage(st, sessionID, messageID)
	if !ok {
		return st
	}
	out := st.clone()
	sess = out.Sessions[sessionID]
	sess.Messages[idx].Content = content
	sess.UpdatedAt = laterOf(sess.UpdatedAt, time.Now())
	out.Sessions[sessionID] = sess
	return out
}

// StreamFinalized ends the incremental phase: content is fixed, the
// streaming flag clears, and finalID (when non-empty) replaces the
// provisional id in place. Finalizing an already-final message, or one in a
// deleted session, is a no-op apart from releasing a matching stream slot.
func StreamFinalized(st ChatState, sessionID, messageID, content, finalID string) ChatState {
	sess, idx, ok := findMessage(st, sessionID, messageID)
	if !ok {
		// The message may be gone (session deleted mid-stream) but the
		// slot must still be released or the UI wedges in "streaming".
		if st.ActiveStreamID == messageID {
			out := st.clone()
			out.ActiveStreamID = ""
			out.ActiveStreamSess = ""
			out.Pending = OpIdle
			return out
		}
		return st
	}
	out := st.clone()
	sess = out.Sessions[sessionID]
	if !sess.Messages[idx].Streaming {
		return st
	}
	sess.Messages[idx].Content = content
	sess.Messages[idx].Streaming = false
	if finalID != "" {
		sess.Messages[idx].ID = finalID
	}
	sess.UpdatedAt = laterOf(sess.UpdatedAt, time.Now())
	out.Sessions[sessionID] = sess
	if out.ActiveStreamID == messageID {
		out.ActiveStreamID = ""
		out.ActiveStreamSess = ""
		out.Pending = OpIdle
	}
	return out
}

// MessageIDReplaced swaps a provisional id for the server-issued one
// without touching anything else about the slot. Used for the user message,
// whose server id arrives in the stream's user_message event.
func MessageIDReplaced(st ChatState, sessionID, provisionalID, finalID string) ChatState {
	if finalID == "" || finalID == provisionalID {
		return st
	}
	sess, idx, ok := findMessage(st, sessionID, provisionalID)
	if !ok {
		return st
	}
	out := st.clone()
	sess = out.Sessions[sessionID]
	sess.Messages[idx].ID = finalID
	out.Sessions[sessionID] = sess
	return out
}

// SessionDeleted removes a session. If it was current, selection moves to
// the first remaining session in order (or clears). If it hosted the active
// stream, the slot is released; the in-flight network operation is orphaned
// and its later transitions no-op.
func SessionDeleted(st ChatState, id string) ChatState {
	if _, ok := st.Sessions[id]; !ok {
		return st
	}
	out := st.clone()
	delete(out.Sessions, id)
	order := out.Order[:0]
	for _, sid := range out.Order {
		if sid != id {
			order = append(order, sid)
		}
	}
	out.Order = order
	if out.CurrentSessionID == id {
		out.CurrentSessionID = ""
		if len(out.Order) > 0 {
			out.CurrentSessionID = out.Order[0]
		}
	}
	if out.ActiveStreamSess == id {
		out.ActiveStreamID = ""
		out.ActiveStreamSess = ""
		if out.Pending == OpStreaming {
			out.Pending = OpIdle
		}
	}
	return out
}

// TitleUpdated renames a session.
func TitleUpdated(st ChatState, sessionID, title string) ChatState {
	sess, ok := st.Sessions[sessionID]
	if !ok {
		return st
	}
	out := st.clone()
	sess = out.Sessions[sessionID]
	sess.Title = title
	out.Sessions[sessionID] = sess
	return out
}

// ErrorSet records (or with nil clears) the banner error.
func ErrorSet(st ChatState, info *ErrorInfo) ChatState {
	out := st.clone()
	if info == nil {
		out.LastError = nil
	} else {
		e := *info
		out.LastError = &e
	}
	return out
}

// LoadingSet flips the loading flag. It never overrides an active stream:
// the streaming slot owns Pending while it is held.
func LoadingSet(st ChatState, loading bool) ChatState {
	out := st.clone()
	if out.Pending == OpStreaming {
		return out
	}
	if loading {
		out.Pending = OpLoading
	} else {
		out.Pending = OpIdle
	}
	return out
}

func findMessage(st ChatState, sessionID, messageID string) (Session, int, bool) {
	sess, ok := st.Sessions[sessionID]
	if !ok {
		return Session{}, 0, false
	}
	for i, m := range sess.Messages {
		if m.ID == messageID {
			return sess, i, true
		}
	}
	return Session{}, 0, false
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
