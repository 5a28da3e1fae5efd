package agent

import (
	"context"
	stdErrors "errors"
	"strings"

	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/llm"
	"AgentRelay/internal/search"
)

// Role 标识一个智能体的职责，同时作为任务路由的类型标签。
type Role string

const (
	RoleTranslator Role = "translate"
	RoleSummarizer Role = "summarize"
	RoleExtractor  Role = "entity_extraction"
	RoleSearch     Role = "search_internet"
	RoleFormatter  Role = "final_format"
)

// KnownRoles 返回系统支持的全部智能体角色。角色集合是封闭的。
func KnownRoles() []Role {
	return []Role{RoleTranslator, RoleSummarizer, RoleExtractor, RoleSearch, RoleFormatter}
}

// IsValidRole 检查给定的角色是否为支持的枚举值。
func IsValidRole(role Role) bool {
	switch role {
	case RoleTranslator, RoleSummarizer, RoleExtractor, RoleSearch, RoleFormatter:
		return true
	default:
		return false
	}
}

// TaskRequest 描述了一次智能体任务。
type TaskRequest struct {
	ID             string         `json:"id,omitempty"`
	Type           Role           `json:"type,omitempty"`
	Content        string         `json:"content"`
	TargetLanguage string         `json:"target_language,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate 校验任务请求的合法性。空内容在调用大模型之前即被拒绝。
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return xerrors.New(xerrors.CodeValidation, "任务内容不能为空")
	}
	if r.Type != "" && !IsValidRole(r.Type) {
		return xerrors.New(xerrors.CodeUnroutableTask, "未知的任务类型: "+string(r.Type))
	}
	return nil
}

// Response 是智能体执行任务后的结果。
type Response struct {
	Role         Role            `json:"role"`
	Output       string          `json:"output"`
	Entities     []string        `json:"entities,omitempty"`
	Sources      []search.Result `json:"sources,omitempty"`
	Observations string          `json:"observations,omitempty"`
}

// Agent 定义了智能体的统一能力：将任务转换成提示词并委托大模型生成回复。
// 实现必须是无状态的，单次调用之间不保留任何内部状态。
type Agent interface {
	Role() Role
	Run(ctx context.Context, req TaskRequest) (*Response, error)
}

// baseAgent 聚合所有角色共享的大模型调用逻辑。
type baseAgent struct {
	role      Role
	llmClient llm.Client
	prompts   *TemplateSet
}

func (b *baseAgent) Role() Role {
	return b.role
}

// complete 调用大模型并对错误做统一归类。超时被映射为 TIMEOUT 错误码，
// 其余失败原样上抛，不做重试。
func (b *baseAgent) complete(ctx context.Context, system, prompt string) (string, error) {
	if b.llmClient == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	resp, err := b.llmClient.Complete(ctx, llm.Request{System: system, Prompt: prompt})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
