package agent

import (
	"context"
	"fmt"
	"strings"

	"AgentRelay/internal/llm"
	"AgentRelay/internal/search"
)

// TranslatorAgent 将文本翻译为目标语言。
type TranslatorAgent struct {
	baseAgent
}

// NewTranslator 创建翻译智能体。
func NewTranslator(client llm.Client, prompts *TemplateSet) *TranslatorAgent {
	return &TranslatorAgent{baseAgent{role: RoleTranslator, llmClient: client, prompts: prompts}}
}

// defaultTargetLanguage 在请求未指定目标语言时使用。
const defaultTargetLanguage = "en"

// Run 实现 Agent 接口。
func (a *TranslatorAgent) Run(ctx context.Context, req TaskRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	language := strings.TrimSpace(req.TargetLanguage)
	if language == "" {
		language = defaultTargetLanguage
	}
	prompt := render(a.prompts.Translator,
		placeholderLanguage, language,
		placeholderContent, req.Content,
	)
	output, err := a.complete(ctx, a.prompts.System, prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Role: a.role, Output: output}, nil
}

// SummarizerAgent 生成文本摘要。
type SummarizerAgent struct {
	baseAgent
}

// NewSummarizer 创建摘要智能体。
func NewSummarizer(client llm.Client, prompts *TemplateSet) *SummarizerAgent {
	return &SummarizerAgent{baseAgent{role: RoleSummarizer, llmClient: client, prompts: prompts}}
}

// Run 实现 Agent 接口。
func (a *SummarizerAgent) Run(ctx context.Context, req TaskRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt := render(a.prompts.Summarizer, placeholderContent, req.Content)
	output, err := a.complete(ctx, a.prompts.System, prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Role: a.role, Output: output}, nil
}

// ExtractorAgent 从文本中抽取命名实体。
type ExtractorAgent struct {
	baseAgent
}

// NewExtractor 创建实体抽取智能体。
func NewExtractor(client llm.Client, prompts *TemplateSet) *ExtractorAgent {
	return &ExtractorAgent{baseAgent{role: RoleExtractor, llmClient: client, prompts: prompts}}
}

// Run 实现 Agent 接口。模型按约定返回逗号分隔的实体列表。
func (a *ExtractorAgent) Run(ctx context.Context, req TaskRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt := render(a.prompts.Extractor, placeholderContent, req.Content)
	output, err := a.complete(ctx, a.prompts.System, prompt)
	if err != nil {
		return nil, err
	}
	entities := make([]string, 0, 8)
	for _, entity := range strings.Split(output, ",") {
		if trimmed := strings.TrimSpace(entity); trimmed != "" {
			entities = append(entities, trimmed)
		}
	}
	return &Response{Role: a.role, Output: output, Entities: entities}, nil
}

// SearchAgent 先通过注入的检索能力获取上下文，再交给大模型归纳回答。
type SearchAgent struct {
	baseAgent
	provider   search.Provider
	maxResults int
}

// SearchOption 定义检索智能体的可选配置。
type SearchOption func(*SearchAgent)

// WithMaxResults 限制检索结果条数。
func WithMaxResults(limit int) SearchOption {
	return func(a *SearchAgent) {
		if limit > 0 {
			a.maxResults = limit
		}
	}
}

// NewSearch 创建互联网检索智能体。
func NewSearch(client llm.Client, provider search.Provider, prompts *TemplateSet, opts ...SearchOption) *SearchAgent {
	ag := &SearchAgent{
		baseAgent:  baseAgent{role: RoleSearch, llmClient: client, prompts: prompts},
		provider:   provider,
		maxResults: 5,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Run 实现 Agent 接口。检索失败不会中断任务，失败原因记入 Observations。
func (a *SearchAgent) Run(ctx context.Context, req TaskRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		results     []search.Result
		observation string
	)
	if a.provider == nil {
		observation = "未配置检索能力"
	} else {
		found, err := a.provider.Search(ctx, req.Content, a.maxResults)
		if err != nil {
			observation = fmt.Sprintf("检索失败: %v", err)
		} else {
			results = found
		}
	}

	prompt := render(a.prompts.Search,
		placeholderContent, req.Content,
		placeholderContext, formatSearchContext(results),
	)
	output, err := a.complete(ctx, a.prompts.System, prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Role: a.role, Output: output, Sources: results, Observations: observation}, nil
}

func formatSearchContext(results []search.Result) string {
	if len(results) == 0 {
		return "(no results)"
	}
	var builder strings.Builder
	for idx, result := range results {
		fmt.Fprintf(&builder, "[%d] %s\n%s\n%s\n", idx+1, result.Title, result.URL, result.Snippet)
	}
	return builder.String()
}

// FormatterAgent 将聚合后的结构化结果转换为自然语言。
type FormatterAgent struct {
	baseAgent
}

// NewFormatter 创建格式化智能体。
func NewFormatter(client llm.Client, prompts *TemplateSet) *FormatterAgent {
	return &FormatterAgent{baseAgent{role: RoleFormatter, llmClient: client, prompts: prompts}}
}

// Run 实现 Agent 接口。Content 为聚合结果的 JSON 文本。
func (a *FormatterAgent) Run(ctx context.Context, req TaskRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt := render(a.prompts.Formatter, placeholderContent, req.Content)
	output, err := a.complete(ctx, a.prompts.System, prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Role: a.role, Output: output}, nil
}

var (
	_ Agent = (*TranslatorAgent)(nil)
	_ Agent = (*SummarizerAgent)(nil)
	_ Agent = (*ExtractorAgent)(nil)
	_ Agent = (*SearchAgent)(nil)
	_ Agent = (*FormatterAgent)(nil)
)
