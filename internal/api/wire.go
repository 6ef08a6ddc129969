package api

import (
	"encoding/json"
	"time"

	"chatfront/internal/state"
)

// Wire DTOs for the backend's snake_case JSON. Conversion to the camelCase
// client model happens on ingestion so the rest of the program never sees
// wire shapes. Server ids are JSON numbers; the client identifier is a
// string, so ids are formatted in decimal here.

type conversationDTO struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	MessageCount int         `json:"message_count"`
}

type messageDTO struct {
	ID        json.Number `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

type createSessionRequest struct {
	Title *string `json:"title"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// plainReply is the body of a non-streaming send. Deployments disagree on
// the content field name, so both are accepted.
type plainReply struct {
	ID        json.Number `json:"id"`
	Content   string      `json:"content"`
	Answer    string      `json:"answer"`
	Timestamp *time.Time  `json:"timestamp"`
	CreatedAt *time.Time  `json:"created_at"`
}

func (r plainReply) text() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Answer
}

func (r plainReply) when() time.Time {
	switch {
	case r.CreatedAt != nil:
		return *r.CreatedAt
	case r.Timestamp != nil:
		return *r.Timestamp
	default:
		return time.Now()
	}
}

func (c conversationDTO) toSession() state.Session {
	return state.Session{
		ID:        c.ID.String(),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (m messageDTO) toMessage(sessionID string) state.Message {
	return state.Message{
		ID:        m.ID.String(),
		SessionID: sessionID,
		Role:      state.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
