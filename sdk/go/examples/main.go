package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentRelay/sdk/go/agentrelay"
)

// 演示 SDK 的典型用法：依次同步调度五种任务类型，再异步提交一个任务并等待完成。
// 为了让示例开箱即用，这里用 httptest 伪造了一个服务端；
// 对接真实部署时把 NewClient 的地址换成守护进程地址即可。
func main() {
	srv := newDemoServer()
	defer srv.Close()

	client := agentrelay.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requests := []agentrelay.TaskRequest{
		{Type: "translate", Content: "Bonjour tout le monde!", TargetLanguage: "en"},
		{Type: "summarize", Content: "Mistral AI publishes open-weight large language models and offers a hosted chat-completions API used by this demo."},
		{Type: "entity_extraction", Content: "Mistral is headquartered in Paris."},
		{Type: "search_internet", Content: "latest open-weight Mistral model"},
		{Type: "final_format", Content: `{"translate": "Hello everyone!", "summarize": "Mistral ships open models."}`},
	}

	for _, request := range requests {
		response, err := client.Dispatch(ctx, request)
		if err != nil {
			panic(err)
		}
		fmt.Printf("[%s] %s\n", response.Role, response.Output)
		if len(response.Entities) > 0 {
			fmt.Printf("  entities: %v\n", response.Entities)
		}
		for _, source := range response.Sources {
			fmt.Printf("  source: %s (%s)\n", source.Title, source.URL)
		}
	}

	submitted, err := client.SubmitTask(ctx, agentrelay.TaskRequest{
		Type:    "entity_extraction",
		Content: "Mistral is headquartered in Paris.",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", submitted.ID, submitted.Status)

	done, err := client.WaitUntilCompleted(ctx, submitted.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished with entities %v\n", done.ID, done.Result.Entities)
}

// newDemoServer 为每种任务类型返回固定的示例响应。
func newDemoServer() *httptest.Server {
	canned := map[string]agentrelay.Response{
		"translate": {Role: "translate", Output: "Hello everyone!"},
		"summarize": {Role: "summarize", Output: "Mistral ships open-weight models behind a hosted API."},
		"entity_extraction": {
			Role:     "entity_extraction",
			Output:   "Mistral, Paris",
			Entities: []string{"Mistral", "Paris"},
		},
		"search_internet": {
			Role:   "search_internet",
			Output: "The most recent open-weight release is documented on the official site.",
			Sources: []agentrelay.SearchResult{
				{Title: "Mistral AI", URL: "https://mistral.ai/", Snippet: "Open-weight model announcements."},
			},
		},
		"final_format": {Role: "final_format", Output: "Translation: Hello everyone! Summary: Mistral ships open models."},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dispatch", func(w http.ResponseWriter, r *http.Request) {
		var req agentrelay.TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		response, ok := canned[req.Type]
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "UNROUTABLE_TASK", "error": "unknown task type"})
			return
		}
		_ = json.NewEncoder(w).Encode(response)
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(agentrelay.Task{
			ID:     "task-demo",
			Status: agentrelay.StatusPending,
		})
	})
	mux.HandleFunc("/api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		result := canned["entity_extraction"]
		_ = json.NewEncoder(w).Encode(agentrelay.Task{
			ID:     "task-demo",
			Status: agentrelay.StatusSucceeded,
			Result: &result,
		})
	})

	return httptest.NewServer(mux)
}
