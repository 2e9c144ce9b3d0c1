package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AgentFlow/internal/agent"
	"AgentFlow/internal/auth"
	"AgentFlow/internal/session"
	"AgentFlow/internal/task"
	"AgentFlow/internal/tools"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *session.Store) {
	t.Helper()
	sessions := session.NewStore()
	return NewServer(":0", agent.New(tools.NewMockRegistry()), sessions, opts...), sessions
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestExecuteAndReadBack(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/executions",
		`{"session_id":"s1","query":"Translate 'Good Morning' into German and then multiply 5 and 6."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	exec := decode[agent.Execution](t, rec)
	if exec.Status != agent.StatusCompleted || len(exec.Steps) != 2 {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	if !strings.Contains(exec.FinalResult, "Calculated: 5 × 6 = 30") {
		t.Fatalf("unexpected final result: %q", exec.FinalResult)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions/"+exec.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("execution detail: got %d", rec.Code)
	}
	if got := decode[agent.Execution](t, rec); got.ID != exec.ID {
		t.Fatalf("unexpected execution id: got %q want %q", got.ID, exec.ID)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/stats", "")
	stats := decode[session.Stats](t, rec)
	if stats.Total != 1 || stats.Completed != 1 || stats.Steps != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestExecuteDefaultsSession(t *testing.T) {
	server, sessions := newTestServer(t)

	rec := do(t, server.Handler(), http.MethodPost, "/api/v1/executions", `{"query":"add 1 and 2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if got := rec.Header().Get("X-Session-ID"); got != session.DefaultID {
		t.Fatalf("unexpected session header: %q", got)
	}
	if memory, ok := sessions.Snapshot(session.DefaultID); !ok || memory.Len() != 1 {
		t.Fatalf("execution not appended to default session")
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	cases := []struct {
		name string
		body string
	}{
		{name: "blank query", body: `{"query":"   "}`},
		{name: "malformed json", body: `{"query":`},
		{name: "unknown field", body: `{"query":"add 1 and 2","extra":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, "/api/v1/executions", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusBadRequest)
			}
			body := decode[errorResponse](t, rec)
			if body.Error.Code != "INVALID_ARGUMENT" {
				t.Fatalf("unexpected error code: %+v", body.Error)
			}
		})
	}
}

func TestFailedExecutionIsStillStored(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/executions", `{"session_id":"s1","query":"add 99999999999999999999 and 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if exec := decode[agent.Execution](t, rec); exec.Status != agent.StatusFailed {
		t.Fatalf("expected failed execution, got %s", exec.Status)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions?status=failed", "")
	list := decode[struct {
		Executions []agent.Execution `json:"executions"`
	}](t, rec)
	if len(list.Executions) != 1 {
		t.Fatalf("expected one failed execution, got %d", len(list.Executions))
	}
}

func TestMemoryExport(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := do(t, handler, http.MethodGet, "/api/v1/sessions/missing/memory", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusNotFound)
	}

	do(t, handler, http.MethodPost, "/api/v1/executions", `{"session_id":"s1","query":"What is the capital of France?"}`)

	rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/memory?download=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "agent-memory-s1.json") {
		t.Fatalf("unexpected content disposition: %q", got)
	}
	memory := decode[agent.Memory](t, rec)
	if memory.Len() != 1 || memory.Context == nil {
		t.Fatalf("unexpected memory: %+v", memory)
	}
}

func TestListExecutionsQueryParameters(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	for _, query := range []string{"add 1 and 2", "multiply 3 and 4", "Who wrote Hamlet?"} {
		body, _ := json.Marshal(executeRequest{SessionID: "s1", Query: query})
		if rec := do(t, handler, http.MethodPost, "/api/v1/executions", string(body)); rec.Code != http.StatusOK {
			t.Fatalf("execute %q: %d", query, rec.Code)
		}
	}

	type listBody struct {
		Executions []agent.Execution `json:"executions"`
	}

	rec := do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions?order=asc&limit=2", "")
	list := decode[listBody](t, rec)
	if len(list.Executions) != 2 || list.Executions[0].Query != "add 1 and 2" {
		t.Fatalf("unexpected ascending page: %+v", list.Executions)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions?q=multiply", "")
	if list = decode[listBody](t, rec); len(list.Executions) != 1 {
		t.Fatalf("expected one match, got %d", len(list.Executions))
	}

	if rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit: got %d", rec.Code)
	}
	if rec = do(t, handler, http.MethodGet, "/api/v1/sessions/nope/executions", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: got %d", rec.Code)
	}
	if rec = do(t, handler, http.MethodGet, "/api/v1/sessions/s1/executions/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown execution: got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestServer(t, WithRateLimit(0.001, 1))
	handler := server.Handler()

	if rec := do(t, handler, http.MethodPost, "/api/v1/executions", `{"query":"add 1 and 2"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := do(t, handler, http.MethodPost, "/api/v1/executions", `{"query":"add 1 and 2"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	if rec = do(t, handler, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("read endpoints must not be limited: %d", rec.Code)
	}
}

func TestTaskEndpoints(t *testing.T) {
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(8)
	defer queue.Close()
	server, _ := newTestServer(t, WithTaskService(task.NewService(store, queue)))
	handler := server.Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/tasks", `{"id":"task-1","session_id":"s1","query":"add 1 and 2"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "/api/v1/tasks/task-1" {
		t.Fatalf("unexpected location: %q", got)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks/task-1", "")
	got := decode[task.Task](t, rec)
	if got.ID != "task-1" || got.Status != task.StatusPending || got.SessionID != "s1" {
		t.Fatalf("unexpected task: %+v", got)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks?status=pending&session_id=s1", "")
	list := decode[struct {
		Tasks []task.Task `json:"tasks"`
	}](t, rec)
	if len(list.Tasks) != 1 {
		t.Fatalf("expected one pending task, got %d", len(list.Tasks))
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks/stats", "")
	if stats := decode[task.TaskStats](t, rec); stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if rec = do(t, handler, http.MethodGet, "/api/v1/tasks/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing task: got %d", rec.Code)
	}
	if rec = do(t, handler, http.MethodPost, "/api/v1/tasks", `{"query":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank task query: got %d", rec.Code)
	}
}

func TestTaskEndpointsDisabled(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server.Handler(), http.MethodPost, "/api/v1/tasks", `{"query":"add 1 and 2"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	do(t, handler, http.MethodGet, "/healthz", "")
	rec := do(t, handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `agentflow_http_requests_total{code="200",handler="GET /healthz",method="GET"}`) {
		t.Fatalf("request metric missing from exposition")
	}
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := withContext(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := do(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestAuthProtectsBusinessRoutes(t *testing.T) {
	svc, err := auth.NewService(auth.Config{
		Mode: auth.ModeAPIKey,
		Keys: []auth.Key{
			{Name: "reader", Secret: "reader-secret-0001", Permissions: []string{auth.PermissionRead}},
			{Name: "admin", Secret: "admin-secret-00001", Permissions: []string{auth.PermissionAll}},
		},
	})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	server, _ := newTestServer(t, WithAuth(svc))
	handler := server.Handler()

	send := func(method, target, key, body string) int {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, reader)
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPost, "/api/v1/executions", "", `{"query":"add 1 and 2"}`); code != http.StatusUnauthorized {
		t.Fatalf("anonymous execute: got %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/executions", "reader-secret-0001", `{"query":"add 1 and 2"}`); code != http.StatusForbidden {
		t.Fatalf("reader execute: got %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/executions", "admin-secret-00001", `{"session_id":"s1","query":"add 1 and 2"}`); code != http.StatusOK {
		t.Fatalf("admin execute: got %d", code)
	}
	if code := send(http.MethodGet, "/api/v1/sessions/s1/stats", "reader-secret-0001", ""); code != http.StatusOK {
		t.Fatalf("reader stats: got %d", code)
	}
	if code := send(http.MethodGet, "/healthz", "", ""); code != http.StatusOK {
		t.Fatalf("health must stay public: got %d", code)
	}
}
