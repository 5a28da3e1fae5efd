package agent

import (
	"context"
	"encoding/json"
	"strings"

	"AgentRelay/internal/llm"
	"AgentRelay/pkg/logger"
)

// PlanStep 描述行动计划中的一个步骤。
type PlanStep struct {
	Action Role       `json:"action"`
	Params PlanParams `json:"params"`
}

// PlanParams 是大模型为单个步骤给出的参数。
type PlanParams struct {
	Text           string `json:"text"`
	Keywords       string `json:"keywords"`
	TargetLanguage string `json:"target_language"`
	MaxResults     int    `json:"max_results"`
}

// Plan 是大模型对自然语言请求的拆解结果。
type Plan struct {
	Steps []PlanStep
}

// Planner 通过一次大模型调用把自然语言请求转换为行动计划。
type Planner struct {
	llmClient llm.Client
	prompts   *TemplateSet
	actions   []Role
}

// NewPlanner 创建计划器。actions 限定计划中允许出现的动作集合。
func NewPlanner(client llm.Client, prompts *TemplateSet, actions []Role) *Planner {
	if len(actions) == 0 {
		actions = []Role{RoleTranslator, RoleSummarizer, RoleExtractor, RoleSearch}
	}
	return &Planner{llmClient: client, prompts: prompts, actions: actions}
}

// Plan 请求大模型输出 JSON 计划并解析。模型输出无法解析时退化为空计划，
// 与路由失败的处理合并在调用方完成。
func (p *Planner) Plan(ctx context.Context, content string) (*Plan, error) {
	names := make([]string, 0, len(p.actions))
	for _, action := range p.actions {
		names = append(names, string(action))
	}
	prompt := render(p.prompts.Planner,
		placeholderActions, "["+strings.Join(names, ", ")+"]",
		placeholderContent, content,
	)

	resp, err := p.llmClient.Complete(ctx, llm.Request{System: p.prompts.System, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Tasks []PlanStep `json:"tasks"`
	}
	raw := stripCodeFence(resp.Content)
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logger.L().Warn("行动计划解析失败，退化为空计划", "error", err)
		return &Plan{}, nil
	}

	allowed := make(map[Role]struct{}, len(p.actions))
	for _, action := range p.actions {
		allowed[action] = struct{}{}
	}

	plan := &Plan{Steps: make([]PlanStep, 0, len(decoded.Tasks))}
	for _, step := range decoded.Tasks {
		if _, ok := allowed[step.Action]; !ok {
			logger.L().Warn("计划包含不支持的动作，已忽略", "action", string(step.Action))
			continue
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// TaskRequest 将计划步骤转换为对应智能体的任务请求。
// 步骤未给出文本时继承原始请求内容。
func (s PlanStep) TaskRequest(fallbackContent string) TaskRequest {
	content := strings.TrimSpace(s.Params.Text)
	if s.Action == RoleSearch && strings.TrimSpace(s.Params.Keywords) != "" {
		content = strings.TrimSpace(s.Params.Keywords)
	}
	if content == "" {
		content = fallbackContent
	}
	return TaskRequest{
		Type:           s.Action,
		Content:        content,
		TargetLanguage: strings.TrimSpace(s.Params.TargetLanguage),
	}
}

// stripCodeFence 去掉模型偶尔包裹在 JSON 外层的 Markdown 代码块。
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
