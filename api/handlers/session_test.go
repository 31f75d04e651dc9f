package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/smux/internal/db"
	"github.com/agent-sandbox/smux/internal/mux"
	"github.com/agent-sandbox/smux/internal/pty"
	"github.com/agent-sandbox/smux/internal/repository"
	"github.com/agent-sandbox/smux/internal/session"
	"github.com/agent-sandbox/smux/internal/ws"
)

func setupRouter(t *testing.T, fake *mux.Fake) (*gin.Engine, *repository.Journal) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	journal := repository.NewJournal(testDB)
	manager := session.NewManager(fake, session.Config{})
	handler := NewSessionHandler(manager, fake, journal, nil, "")

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api"))
	return router, journal
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListSessions(t *testing.T) {
	fake := mux.NewFake("alpha", "bravo")
	fake.Captured = map[string]string{
		"alpha": "$ make test\n\x1b[32mok\x1b[0m  ./...\n",
	}
	router, _ := setupRouter(t, fake)

	w := doJSON(t, router, http.MethodGet, "/api/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sessions []SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	byName := make(map[string]SessionResponse)
	for _, s := range sessions {
		if !s.Alive {
			t.Errorf("session %s should be alive", s.Name)
		}
		byName[s.Name] = s
	}
	if byName["alpha"].PreviewLine != "ok  ./..." {
		t.Errorf("preview line = %q, want %q", byName["alpha"].PreviewLine, "ok  ./...")
	}
}

func TestListReportsViewerCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := mux.NewFake("alpha")

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	bridge := pty.NewBridge(fake, "")
	service := ws.NewService(bridge)
	defer service.Close()

	handler := NewSessionHandler(
		session.NewManager(fake, session.Config{}),
		fake,
		repository.NewJournal(testDB),
		service,
		"",
	)
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api"))

	w := doJSON(t, router, http.MethodGet, "/api/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sessions []SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Viewers != 0 {
		t.Errorf("viewers = %d, want 0 with nobody attached", sessions[0].Viewers)
	}
}

func TestCreateSession(t *testing.T) {
	t.Run("named session is created and journaled", func(t *testing.T) {
		fake := mux.NewFake()
		router, journal := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{
			"name":    "build",
			"command": "make -j4",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Name != "build" || !resp.Created {
			t.Errorf("unexpected response: %+v", resp)
		}
		if fake.Command("build") != "make -j4" {
			t.Errorf("session command = %q, want %q", fake.Command("build"), "make -j4")
		}

		entry, err := journal.Current(context.Background(), "build")
		if err != nil {
			t.Fatalf("journal should hold the new session: %v", err)
		}
		if entry.Command != "make -j4" {
			t.Errorf("journaled command = %q", entry.Command)
		}
	})

	t.Run("empty name allocates from the phonetic pool", func(t *testing.T) {
		fake := mux.NewFake("alpha", "bravo")
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Name != "charlie" {
			t.Errorf("allocated name = %q, want %q", resp.Name, "charlie")
		}
	})

	t.Run("existing session is found, not recreated", func(t *testing.T) {
		fake := mux.NewFake("alpha")
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{
			"name": "alpha",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(fake.NewCalls) != 0 {
			t.Errorf("no creation should be attempted, got calls %v", fake.NewCalls)
		}
	})

	t.Run("invalid name is rejected before delegation", func(t *testing.T) {
		fake := mux.NewFake()
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{
			"name": "bad:name",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if len(fake.NewCalls) != 0 {
			t.Errorf("no creation should be attempted, got calls %v", fake.NewCalls)
		}
	})
}

func TestGetSession(t *testing.T) {
	t.Run("live session", func(t *testing.T) {
		fake := mux.NewFake("alpha")
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodGet, "/api/sessions/alpha", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if !resp.Alive {
			t.Error("session should be alive")
		}
	})

	t.Run("killed session keeps its journal history", func(t *testing.T) {
		fake := mux.NewFake()
		router, journal := setupRouter(t, fake)

		if _, err := journal.RecordCreated(context.Background(), "alpha", "/bin/bash", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := journal.RecordKilled(context.Background(), "alpha"); err != nil {
			t.Fatalf("kill: %v", err)
		}

		w := doJSON(t, router, http.MethodGet, "/api/sessions/alpha", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Alive {
			t.Error("session should be dead")
		}
		if resp.KilledAt == "" {
			t.Error("killedAt should be set")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		fake := mux.NewFake()
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodGet, "/api/sessions/ghost", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}

func TestDeleteSession(t *testing.T) {
	t.Run("kills and closes the journal row", func(t *testing.T) {
		fake := mux.NewFake("alpha")
		router, journal := setupRouter(t, fake)

		if _, err := journal.RecordCreated(context.Background(), "alpha", "/bin/bash", ""); err != nil {
			t.Fatalf("record: %v", err)
		}

		w := doJSON(t, router, http.MethodDelete, "/api/sessions/alpha", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
		}
		if len(fake.KillCalls) != 1 || fake.KillCalls[0] != "alpha" {
			t.Errorf("kill calls = %v", fake.KillCalls)
		}

		history, err := journal.History(context.Background(), "alpha")
		if err != nil || len(history) != 1 {
			t.Fatalf("history: %v (%d rows)", err, len(history))
		}
		if history[0].KilledAt == nil {
			t.Error("journal row should be closed")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		fake := mux.NewFake()
		router, _ := setupRouter(t, fake)

		w := doJSON(t, router, http.MethodDelete, "/api/sessions/ghost", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
		if len(fake.KillCalls) != 0 {
			t.Errorf("no kill should be attempted, got %v", fake.KillCalls)
		}
	})
}

func TestGetLogsWithoutRecording(t *testing.T) {
	fake := mux.NewFake("alpha")
	router, journal := setupRouter(t, fake)

	if _, err := journal.RecordCreated(context.Background(), "alpha", "/bin/bash", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/sessions/alpha/logs", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
