package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AgentRelay/internal/agent"
	"AgentRelay/internal/llm"
	"AgentRelay/internal/task"
)

type echoLLM struct{}

func (echoLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: "echo: " + req.Prompt}, nil
}

func newTestServer(t *testing.T) (*Server, *task.Service, task.Store) {
	t.Helper()
	store := task.NewMemoryStore()
	svc := task.NewService(store, task.NewMemoryQueue(16), 3)

	templates := agent.DefaultTemplates()
	client := echoLLM{}
	dispatcher := agent.NewDispatcher([]agent.Agent{
		agent.NewTranslator(client, templates),
		agent.NewSummarizer(client, templates),
	}, agent.WithRoutingStrategy(agent.RoutingStatic), agent.WithDefaultRole(agent.RoleSummarizer))

	return NewServer(":0", svc, WithDispatcher(dispatcher)), svc, store
}

func TestHandleTaskDetailSuccess(t *testing.T) {
	server, _, store := newTestServer(t)

	sample := &task.Task{
		ID:         "task-success",
		Type:       agent.RoleSummarizer,
		Content:    "demo",
		Status:     task.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		CreatedAt:  1700000000,
		UpdatedAt:  1700000001,
		Result: &task.ExecutionResult{
			Role:   agent.RoleSummarizer,
			Output: "ok",
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample task: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/task-success", nil)
	rec := httptest.NewRecorder()

	server.handleTaskDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID {
		t.Fatalf("unexpected task id: got %q want %q", got.ID, sample.ID)
	}
	if got.Result == nil || got.Result.Output != "ok" {
		t.Fatalf("unexpected task result: %+v", got.Result)
	}
}

func TestHandleTaskDetailErrors(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task-1", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleCreateTaskAcceptsRequest(t *testing.T) {
	server, svc, _ := newTestServer(t)

	body := `{"type": "translate", "content": "Bonjour", "target_language": "en"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleTasks(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("unexpected created task: %+v", created)
	}

	stored, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("task not persisted: %v", err)
	}
	if stored.Type != agent.RoleTranslator || stored.TargetLanguage != "en" {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestHandleCreateTaskRejectsInvalidPayload(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		server.handleTasks(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"content": ""}`))
		rec := httptest.NewRecorder()
		server.handleTasks(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"type": "mystery", "content": "hi"}`))
		rec := httptest.NewRecorder()
		server.handleTasks(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})
}

func TestHandleDispatchSynchronous(t *testing.T) {
	server, _, _ := newTestServer(t)

	body := `{"type": "summarize", "content": "a long article"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleDispatch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var response agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Role != agent.RoleSummarizer || response.Output == "" {
		t.Fatalf("unexpected dispatch response: %+v", response)
	}
}

func TestHandleStatsAndList(t *testing.T) {
	server, svc, _ := newTestServer(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, agent.TaskRequest{Type: agent.RoleTranslator, Content: "Bonjour"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, agent.TaskRequest{Type: agent.RoleSummarizer, Content: "article"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/stats", nil)
	rec := httptest.NewRecorder()
	server.handleStats(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: %d", rec.Code)
	}
	var stats task.TaskStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks?type=translate", nil)
	rec = httptest.NewRecorder()
	server.handleTasks(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d", rec.Code)
	}
	var listed []*task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].Type != agent.RoleTranslator {
		t.Fatalf("unexpected list: %+v", listed)
	}
}
