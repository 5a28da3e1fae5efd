package agent

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/llm"
	"AgentRelay/internal/search"
)

// scriptedLLM 记录收到的提示词，并按注册的规则返回回复。
type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	rules   []scriptRule
	err     error
	wait    time.Duration
}

type scriptRule struct {
	contains string
	reply    string
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, rule := range s.rules {
		if strings.Contains(req.Prompt, rule.contains) {
			return &llm.Response{Content: rule.reply}, nil
		}
	}
	reply := s.reply
	if reply == "" {
		reply = "ok"
	}
	return &llm.Response{Content: reply}, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *scriptedLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func newTestDispatcher(client llm.Client, opts ...DispatcherOption) *Dispatcher {
	prompts := DefaultTemplates()
	provider := NewStaticSearchForTest()
	agents := []Agent{
		NewTranslator(client, prompts),
		NewSummarizer(client, prompts),
		NewExtractor(client, prompts),
		NewSearch(client, provider, prompts),
		NewFormatter(client, prompts),
	}
	return NewDispatcher(agents, opts...)
}

// NewStaticSearchForTest 返回一个固定结果的检索实现。
func NewStaticSearchForTest() search.Provider {
	return search.NewStaticProvider([]search.Snippet{
		{Title: "Sample Article", URL: "https://example.com/article1", Content: "simulated snippet"},
	})
}

func TestDispatchRoutesByExplicitType(t *testing.T) {
	cases := []struct {
		role     Role
		fragment string
	}{
		{RoleTranslator, "Translate the following text into"},
		{RoleSummarizer, "Provide a concise summary"},
		{RoleExtractor, "Extract named entities"},
		{RoleSearch, "Search results:"},
		{RoleFormatter, "aggregated JSON result"},
	}

	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			stub := &scriptedLLM{reply: "done"}
			dispatcher := newTestDispatcher(stub)

			resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{
				Type:    tc.role,
				Content: "some task content",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Role != tc.role {
				t.Fatalf("routed to %s, want %s", resp.Role, tc.role)
			}
			if stub.calls() != 1 {
				t.Fatalf("expected exactly one llm call, got %d", stub.calls())
			}
			prompt := stub.lastPrompt()
			if !strings.Contains(prompt, tc.fragment) {
				t.Fatalf("prompt missing template fragment %q:\n%s", tc.fragment, prompt)
			}
			if !strings.Contains(prompt, "some task content") {
				t.Fatalf("prompt missing task content:\n%s", prompt)
			}
		})
	}
}

func TestDispatchRejectsEmptyContent(t *testing.T) {
	stub := &scriptedLLM{}
	dispatcher := newTestDispatcher(stub)

	_, err := dispatcher.Dispatch(context.Background(), TaskRequest{Type: RoleSummarizer, Content: "   "})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeValidation {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}
	if stub.calls() != 0 {
		t.Fatalf("llm must not be called on invalid input, got %d calls", stub.calls())
	}
}

func TestDispatchUnknownTypeIsUnroutable(t *testing.T) {
	stub := &scriptedLLM{}
	dispatcher := newTestDispatcher(stub)

	_, err := dispatcher.Dispatch(context.Background(), TaskRequest{Type: Role("classify"), Content: "text"})
	if err == nil {
		t.Fatalf("expected unroutable error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeUnroutableTask {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}
	if stub.calls() != 0 {
		t.Fatalf("llm must not be called for unroutable task, got %d calls", stub.calls())
	}
}

func TestDispatchTranslateScenario(t *testing.T) {
	stub := &scriptedLLM{reply: "Hello world"}
	dispatcher := newTestDispatcher(stub)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{
		Type:           RoleTranslator,
		Content:        "Bonjour le monde",
		TargetLanguage: "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "Hello world" {
		t.Fatalf("unexpected output: %q", resp.Output)
	}
	prompt := stub.lastPrompt()
	if !strings.Contains(prompt, "Bonjour le monde") {
		t.Fatalf("translator prompt missing source text:\n%s", prompt)
	}
	if !strings.Contains(prompt, "into en") {
		t.Fatalf("translator prompt missing target language:\n%s", prompt)
	}
}

func TestDispatchSummarizeScenario(t *testing.T) {
	article := strings.Repeat("The committee discussed the annual budget in detail. ", 40)
	stub := &scriptedLLM{reply: "Budget approved."}
	dispatcher := newTestDispatcher(stub)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{Type: RoleSummarizer, Content: article})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Output) >= len(article) {
		t.Fatalf("summary not shorter than input: %d >= %d", len(resp.Output), len(article))
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	stub := &scriptedLLM{reply: "stable"}
	dispatcher := newTestDispatcher(stub)
	req := TaskRequest{Type: RoleExtractor, Content: "Steve and Mary are going to the theater."}

	first, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if first.Output != second.Output {
		t.Fatalf("outputs differ: %q vs %q", first.Output, second.Output)
	}
	if len(first.Entities) != len(second.Entities) {
		t.Fatalf("entities differ: %v vs %v", first.Entities, second.Entities)
	}
}

func TestExtractorSplitsEntities(t *testing.T) {
	stub := &scriptedLLM{reply: "Steve, Mary, theater "}
	dispatcher := newTestDispatcher(stub)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{
		Type:    RoleExtractor,
		Content: "Steve and Mary are going to the theater.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Steve", "Mary", "theater"}
	if len(resp.Entities) != len(want) {
		t.Fatalf("unexpected entities: %v", resp.Entities)
	}
	for idx, entity := range want {
		if resp.Entities[idx] != entity {
			t.Fatalf("entity %d: got %q want %q", idx, resp.Entities[idx], entity)
		}
	}
}

func TestSearchAgentInjectsRetrievalContext(t *testing.T) {
	stub := &scriptedLLM{reply: "answer"}
	dispatcher := newTestDispatcher(stub)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{
		Type:    RoleSearch,
		Content: "openai chatgpt documentation",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected retrieval sources, got %+v", resp.Sources)
	}
	if !strings.Contains(stub.lastPrompt(), "simulated snippet") {
		t.Fatalf("search prompt missing retrieved snippet:\n%s", stub.lastPrompt())
	}
}

func TestDispatchStaticStrategyUsesDefaultRole(t *testing.T) {
	stub := &scriptedLLM{reply: "summary"}
	dispatcher := newTestDispatcher(stub,
		WithRoutingStrategy(RoutingStatic),
		WithDefaultRole(RoleSummarizer),
	)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{Content: "untyped request"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Role != RoleSummarizer {
		t.Fatalf("expected default role %s, got %s", RoleSummarizer, resp.Role)
	}
}

func TestDispatchStaticStrategyWithoutDefaultIsUnroutable(t *testing.T) {
	stub := &scriptedLLM{}
	dispatcher := newTestDispatcher(stub, WithRoutingStrategy(RoutingStatic))

	_, err := dispatcher.Dispatch(context.Background(), TaskRequest{Content: "untyped request"})
	if err == nil || xerrors.CodeOf(err) != xerrors.CodeUnroutableTask {
		t.Fatalf("expected unroutable error, got %v", err)
	}
}

func TestDispatchPlanStrategyExecutesSteps(t *testing.T) {
	stub := &scriptedLLM{
		rules: []scriptRule{
			{contains: "action plan", reply: `{"tasks": [
				{"action": "summarize", "params": {"text": "long article"}},
				{"action": "entity_extraction", "params": {"text": "long article"}}
			]}`},
			{contains: "concise summary", reply: "short summary"},
			{contains: "named entities", reply: "Steve, Mary"},
			{contains: "aggregated JSON result", reply: "final readable text"},
		},
	}
	prompts := DefaultTemplates()
	planner := NewPlanner(stub, prompts, nil)
	dispatcher := newTestDispatcher(stub,
		WithPlanner(planner),
		WithFormatter(NewFormatter(stub, prompts)),
	)

	resp, err := dispatcher.Dispatch(context.Background(), TaskRequest{
		Content: "Summarize this text and extract its named entities: long article",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "final readable text" {
		t.Fatalf("unexpected aggregated output: %q", resp.Output)
	}
	if len(resp.Entities) != 2 {
		t.Fatalf("expected merged entities, got %v", resp.Entities)
	}
	// 计划 + 两个步骤 + 格式化，共 4 次调用。
	if stub.calls() != 4 {
		t.Fatalf("expected 4 llm calls, got %d", stub.calls())
	}
}

func TestDispatchPlanStrategyEmptyPlanIsUnroutable(t *testing.T) {
	stub := &scriptedLLM{reply: "this is not json"}
	prompts := DefaultTemplates()
	dispatcher := newTestDispatcher(stub, WithPlanner(NewPlanner(stub, prompts, nil)))

	_, err := dispatcher.Dispatch(context.Background(), TaskRequest{Content: "do something"})
	if err == nil || xerrors.CodeOf(err) != xerrors.CodeUnroutableTask {
		t.Fatalf("expected unroutable error, got %v", err)
	}
}

func TestDispatchTimeout(t *testing.T) {
	stub := &scriptedLLM{wait: 50 * time.Millisecond}
	dispatcher := newTestDispatcher(stub, WithLLMTimeout(10*time.Millisecond))

	_, err := dispatcher.Dispatch(context.Background(), TaskRequest{Type: RoleSummarizer, Content: "slow"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeTimeout && !stdErrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
}
