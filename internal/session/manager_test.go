package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatfront/internal/api"
	"chatfront/internal/state"
)

// backendStub serves the session CRUD surface from in-memory fixtures and
// counts history fetches per session.
type backendStub struct {
	t            *testing.T
	historyCalls map[string]int
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/chat/sessions":
		w.Write([]byte(`[
			{"id": 1, "title": "alpha", "updated_at": "2026-08-02T10:00:00Z"},
			{"id": 2, "title": "beta", "updated_at": "2026-08-01T10:00:00Z"}
		]`))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/chat/sessions/"), "/messages")
		b.historyCalls[id]++
		w.Write([]byte(`[
			{"id": 10, "role": "user", "content": "q"},
			{"id": 11, "role": "assistant", "content": "a"}
		]`))
	case r.Method == http.MethodPost && r.URL.Path == "/chat/sessions":
		w.Write([]byte(`{"id": 3, "title": "New chat"}`))
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut:
		w.Write([]byte(`{}`))
	default:
		b.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func newCRUDManager(t *testing.T) (*Manager, *backendStub, *fakeHistory) {
	t.Helper()
	stub := &backendStub{t: t, historyCalls: map[string]int{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	hist := &fakeHistory{}
	mgr := NewManager(state.NewStore(), api.NewClient(srv.URL, time.Second, nil, nil), hist, nil)
	return mgr, stub, hist
}

func TestLoadSessionsSelectsAndFetchesHistory(t *testing.T) {
	mgr, stub, _ := newCRUDManager(t)

	if err := mgr.LoadSessions(context.Background()); err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	snap := mgr.Store().Snapshot()
	if snap.CurrentSessionID != "1" {
		t.Errorf("current = %q, want first listed", snap.CurrentSessionID)
	}
	if snap.Pending != state.OpIdle {
		t.Errorf("pending = %q after load", snap.Pending)
	}
	sess, _ := snap.Get("1")
	if len(sess.Messages) != 2 {
		t.Errorf("selected session history not loaded: %d messages", len(sess.Messages))
	}
	if stub.historyCalls["1"] != 1 || stub.historyCalls["2"] != 0 {
		t.Errorf("history calls = %v, only the selected session loads eagerly", stub.historyCalls)
	}
}

func TestSelectSessionLoadsHistoryOnce(t *testing.T) {
	mgr, stub, _ := newCRUDManager(t)
	if err := mgr.LoadSessions(context.Background()); err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := mgr.SelectSession(context.Background(), "2"); err != nil {
			t.Fatalf("SelectSession: %v", err)
		}
	}
	if stub.historyCalls["2"] != 1 {
		t.Errorf("history fetched %d times, want lazy single fetch", stub.historyCalls["2"])
	}
	if cur := mgr.Store().Snapshot().CurrentSessionID; cur != "2" {
		t.Errorf("current = %q", cur)
	}

	if err := mgr.SelectSession(context.Background(), "99"); err == nil {
		t.Error("unknown session select must error")
	}
}

func TestCreateSessionSkipsHistoryFetch(t *testing.T) {
	mgr, stub, _ := newCRUDManager(t)

	id, err := mgr.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "3" {
		t.Errorf("id = %q", id)
	}
	if cur := mgr.Store().Snapshot().CurrentSessionID; cur != "3" {
		t.Errorf("new session not selected: %q", cur)
	}
	if err := mgr.SelectSession(context.Background(), "3"); err != nil {
		t.Fatalf("SelectSession: %v", err)
	}
	if stub.historyCalls["3"] != 0 {
		t.Error("fresh session must not trigger a history fetch")
	}
}

func TestDeleteSessionDropsLocalMirror(t *testing.T) {
	mgr, _, hist := newCRUDManager(t)
	if err := mgr.LoadSessions(context.Background()); err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}

	if err := mgr.DeleteSession(context.Background(), "1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	snap := mgr.Store().Snapshot()
	if _, ok := snap.Get("1"); ok {
		t.Error("session still present")
	}
	if snap.CurrentSessionID != "2" {
		t.Errorf("selection = %q", snap.CurrentSessionID)
	}
	if len(hist.deleted) != 1 || hist.deleted[0] != "1" {
		t.Errorf("mirror delete = %v", hist.deleted)
	}
}

func TestRenameSessionKeepsOptimisticTitleOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	mgr := NewManager(state.NewStore(), api.NewClient(srv.URL, time.Second, nil, nil), nil, nil)
	mgr.Store().Apply(func(st state.ChatState) state.ChatState {
		return state.SessionCreated(st, state.Session{ID: "7", Title: "old"})
	})

	if err := mgr.RenameSession(context.Background(), "7", "new title"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	snap := mgr.Store().Snapshot()
	sess, _ := snap.Get("7")
	if sess.Title != "new title" {
		t.Errorf("title = %q, optimistic rename must stand", sess.Title)
	}
	if snap.LastError == nil {
		t.Error("remote failure must raise the banner")
	}
}

func TestLoadSessionsFailureRaisesBanner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	mgr := NewManager(state.NewStore(), api.NewClient(srv.URL, time.Second, nil, nil), nil, nil)

	if err := mgr.LoadSessions(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	snap := mgr.Store().Snapshot()
	if snap.LastError == nil || snap.LastError.Op != "load sessions" {
		t.Errorf("banner = %+v", snap.LastError)
	}
	if snap.Pending != state.OpIdle {
		t.Errorf("loading flag stuck: %q", snap.Pending)
	}
}
