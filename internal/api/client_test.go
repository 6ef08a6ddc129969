package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatfront/internal/state"
)

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/chat/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 2, "title": "newer", "created_at": "2026-08-01T10:00:00Z", "updated_at": "2026-08-02T10:00:00Z", "message_count": 4},
			{"id": 1, "title": "older", "created_at": "2026-07-01T10:00:00Z", "updated_at": "2026-07-01T10:00:00Z", "message_count": 0}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Numeric server ids arrive as strings client-side.
	assert.Equal(t, "2", sessions[0].ID)
	assert.Equal(t, "newer", sessions[0].Title)
	assert.Equal(t, "1", sessions[1].ID)
}

func TestCreateSessionSendsNullTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		v, present := body["title"]
		require.True(t, present, "title key must be sent")
		assert.Nil(t, v, "empty title must serialize as null")
		w.Write([]byte(`{"id": 7, "title": "New chat"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	sess, err := c.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "7", sess.ID)
	assert.Equal(t, "New chat", sess.Title)
}

func TestBearerTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, StaticToken("sekrit"), nil)
	_, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekrit", got)

	c = NewClient(srv.URL, time.Second, StaticToken(""), nil)
	_, err = c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "empty token must omit the header")
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.GetMessages(context.Background(), "99")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "session not found")
}

func TestSendPlainAcceptsAnswerField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		w.Write([]byte(`{"id": 12, "answer": "hi there", "timestamp": "2026-08-02T10:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	msg, err := c.SendPlain(context.Background(), "3", "hello")
	require.NoError(t, err)
	assert.Equal(t, "12", msg.ID)
	assert.Equal(t, state.RoleAssistant, msg.Role)
	assert.Equal(t, "hi there", msg.Content)
	assert.Equal(t, "3", msg.SessionID)
}

func TestOpenStreamHeadersAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["stream"] != true {
			t.Errorf("stream flag = %v", req["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	resp, err := c.OpenStream(context.Background(), "3", "hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, IsEventStream(resp))
}

func TestOpenStreamNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stream unsupported", http.StatusNotImplemented)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.OpenStream(context.Background(), "3", "hello")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotImplemented, se.Code)
}

func TestIsEventStreamParsesParameters(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Type", "text/event-stream; charset=utf-8")
	assert.True(t, IsEventStream(resp))

	resp.Header.Set("Content-Type", "application/json")
	assert.False(t, IsEventStream(resp))
}
