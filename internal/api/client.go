// Package api is the HTTP client for the chat backend: session CRUD,
// message history, and the send endpoint in both its streaming and plain
// dispositions. It owns nothing but the wire; session state lives in the
// state package and stream interpretation in the session package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chatfront/internal/state"
)

// TokenSource supplies the bearer credential. It is collaborator-managed;
// an empty token means the request goes out unauthenticated and the
// server's 401 flows through the normal error path.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a func to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// StaticToken is a fixed credential (possibly empty).
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Client talks to one chat backend. CRUD calls get the configured timeout;
// the streaming send deliberately has none (a reply can take arbitrarily
// long to produce), so a hung stream blocks its slot until the transport
// drops. That is a documented limitation, not something to paper over
// with deadlines.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	tokens  TokenSource
	log     *zap.Logger
}

// NewClient builds a client for baseURL (no trailing slash).
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, log *zap.Logger) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		tokens:  tokens,
		log:     log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// doJSON executes a request expecting a JSON body and decodes into out
// (nil out discards the body).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ListSessions fetches every session, newest first (server order).
func (c *Client) ListSessions(ctx context.Context) ([]state.Session, error) {
	var dtos []conversationDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/sessions", nil, &dtos); err != nil {
		return nil, err
	}
	sessions := make([]state.Session, 0, len(dtos))
	for _, d := range dtos {
		sessions = append(sessions, d.toSession())
	}
	return sessions, nil
}

// CreateSession creates a session; an empty title lets the server pick its
// default.
func (c *Client) CreateSession(ctx context.Context, title string) (state.Session, error) {
	var t *string
	if title != "" {
		t = &title
	}
	var dto conversationDTO
	if err := c.doJSON(ctx, http.MethodPost, "/chat/sessions", createSessionRequest{Title: t}, &dto); err != nil {
		return state.Session{}, err
	}
	return dto.toSession(), nil
}

// RenameSession sets a session's title.
func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	return c.doJSON(ctx, http.MethodPut, "/chat/sessions/"+id, renameSessionRequest{Title: title}, nil)
}

// DeleteSession removes a session server-side.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/chat/sessions/"+id, nil, nil)
}

// GetMessages fetches a session's full history, oldest first.
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]state.Message, error) {
	var dtos []messageDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/sessions/"+sessionID+"/messages", nil, &dtos); err != nil {
		return nil, err
	}
	msgs := make([]state.Message, 0, len(dtos))
	for _, d := range dtos {
		msgs = append(msgs, d.toMessage(sessionID))
	}
	return msgs, nil
}

// SendPlain posts a message with stream=false and returns the finished
// assistant reply.
func (c *Client) SendPlain(ctx context.Context, sessionID, content string) (state.Message, error) {
	var reply plainReply
	err := c.doJSON(ctx, http.MethodPost, "/chat/sessions/"+sessionID+"/messages",
		sendMessageRequest{Content: content, Stream: false}, &reply)
	if err != nil {
		return state.Message{}, err
	}
	return state.Message{
		ID:        reply.ID.String(),
		SessionID: sessionID,
		Role:      state.RoleAssistant,
		Content:   reply.text(),
		CreatedAt: reply.when(),
	}, nil
}

// OpenStream posts a message with stream=true and hands back the raw
// response for the caller to interpret. The caller owns resp.Body. A
// non-2xx status is returned as *StatusError with the body already
// consumed and closed.
func (c *Client) OpenStream(ctx context.Context, sessionID, content string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/sessions/"+sessionID+"/messages",
		sendMessageRequest{Content: content, Stream: true})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return resp, nil
}

// IsEventStream reports whether a response carries an SSE body. The server
// may legitimately answer a stream request synchronously with plain JSON.
func IsEventStream(resp *http.Response) bool {
	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "text/event-stream"
}

// DecodePlainReply parses a synchronous JSON answer to a stream request.
func DecodePlainReply(body io.Reader, sessionID string) (state.Message, error) {
	var reply plainReply
	if err := json.NewDecoder(body).Decode(&reply); err != nil {
		return state.Message{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return state.Message{
		ID:        reply.ID.String(),
		SessionID: sessionID,
		Role:      state.RoleAssistant,
		Content:   reply.text(),
		CreatedAt: reply.when(),
	}, nil
}
