package agentrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDispatchSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/dispatch" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		var req TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Type != "translate" || req.Content != "Bonjour" {
			t.Fatalf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Response{Role: "translate", Output: "Hello"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	client.SetAccessToken("secret")

	response, err := client.Dispatch(context.Background(), TaskRequest{
		Type:           "translate",
		Content:        "Bonjour",
		TargetLanguage: "en",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if response.Output != "Hello" {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestSubmitAndWaitUntilCompleted(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tasks":
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: StatusPending})
		case "/api/v1/tasks/task-1":
			polls++
			status := StatusRunning
			var result *Response
			if polls >= 2 {
				status = StatusSucceeded
				result = &Response{Role: "summarize", Output: "short"}
			}
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: status, Result: result})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	created, err := client.SubmitTask(context.Background(), TaskRequest{Type: "summarize", Content: "long text"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.ID != "task-1" {
		t.Fatalf("unexpected task: %+v", created)
	}

	done, err := client.WaitUntilCompleted(context.Background(), created.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusSucceeded || done.Result == nil || done.Result.Output != "short" {
		t.Fatalf("unexpected final task: %+v", done)
	}
}

func TestGetTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":  "TASK_NOT_FOUND",
			"error": "task not found",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	_, err := client.GetTask(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "TASK_NOT_FOUND" || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestListTasksBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("limit") != "10" || query.Get("status") != "succeeded,failed" || query.Get("type") != "translate" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode([]Task{{ID: "task-1", Status: StatusSucceeded}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	tasks, err := client.ListTasks(context.Background(), ListQuery{
		Limit:    10,
		Statuses: []string{StatusSucceeded, StatusFailed},
		Types:    []string{"translate"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}
