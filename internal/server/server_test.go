package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"boardline/internal/config"
	"boardline/internal/db"
	"boardline/internal/engine"
	"boardline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.CreateOrg(context.Background(), "acme", "Acme", "tester"); err != nil {
		t.Fatalf("create org: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

// doJSON sends a request as the seeded owner unless the headers override
// X-Actor-Id or supply an Authorization header.
func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type boardDetail struct {
	Board          BoardResponse           `json:"board"`
	StatusOptions  []StatusOptionResponse  `json:"status_options"`
	SectionOptions []SectionOptionResponse `json:"section_options"`
}

func createBoard(t *testing.T, srv *testServer, name string) boardDetail {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards", map[string]any{
		"org_id": "acme",
		"name":   name,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create board status %d: %s", res.StatusCode, string(data))
	}
	var b BoardResponse
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/"+b.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get board status %d: %s", res.StatusCode, string(data))
	}
	var detail boardDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal board detail: %v", err)
	}
	return detail
}

func TestTaskLifecycleWithSubtaskGuard(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	board := createBoard(t, srv, "Release")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/"+board.Board.ID+"/tasks", map[string]any{
		"title": "Ship it",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create parent status %d: %s", res.StatusCode, string(data))
	}
	var parent TaskResponse
	if err := json.Unmarshal(data, &parent); err != nil {
		t.Fatalf("unmarshal parent: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/"+board.Board.ID+"/tasks", map[string]any{
		"title":     "Write changelog",
		"parent_id": parent.ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create subtask status %d: %s", res.StatusCode, string(data))
	}
	var child TaskResponse
	_ = json.Unmarshal(data, &child)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+parent.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected subtask conflict, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "subtasks_incomplete" {
		t.Fatalf("expected code subtasks_incomplete, got %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+child.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete subtask status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+parent.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete parent status %d: %s", res.StatusCode, string(data))
	}
	var done MoveTaskResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal move result: %v", err)
	}
	if done.Task.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestCompleteRecurringSpawnsNext(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	board := createBoard(t, srv, "Chores")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/"+board.Board.ID+"/tasks", map[string]any{
		"title":    "Water plants",
		"due_date": "2025-01-02",
		"recurring": map[string]any{
			"frequency": "daily",
			"interval":  1,
		},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var moved MoveTaskResponse
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatalf("unmarshal move result: %v", err)
	}
	if moved.Spawned == nil {
		t.Fatalf("expected a spawned occurrence")
	}
	if moved.Spawned.DueDate == nil || *moved.Spawned.DueDate != "2025-01-03" {
		t.Fatalf("expected spawned due 2025-01-03, got %v", moved.Spawned.DueDate)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID+"/series", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("series status %d: %s", res.StatusCode, string(data))
	}
	var series []TaskResponse
	if err := json.Unmarshal(data, &series); err != nil {
		t.Fatalf("unmarshal series: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 tasks in series, got %d", len(series))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/orgs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	healthRes, err := client.Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	healthRes.Body.Close()
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", healthRes.StatusCode)
	}
}

func TestDevLoginAndBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "jess",
		"org_id":   "acme",
		"roles":    []string{"editor"},
		"scopes":   []string{"read", "write"},
	}, map[string]string{"X-Actor-Id": ""})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal whoami: %v", err)
	}
	if who.ActorID != "jess" || who.OrgID != "acme" {
		t.Fatalf("unexpected principal: %+v", who)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards", map[string]any{
		"org_id": "acme",
		"name":   "Token board",
	}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create board via token status %d: %s", res.StatusCode, string(data))
	}
}

func TestBoardStatusCounts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	board := createBoard(t, srv, "Counts")

	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/"+board.Board.ID+"/tasks", map[string]any{
			"title": title,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", title, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/"+board.Board.ID+"/status", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("board status %d: %s", res.StatusCode, string(data))
	}
	var status BoardStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	total := 0
	for _, n := range status.TaskCounts {
		total += n
	}
	if total != 3 {
		t.Fatalf("expected 3 tasks counted, got %d (%v)", total, status.TaskCounts)
	}
}
