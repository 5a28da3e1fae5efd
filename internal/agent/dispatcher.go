package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/search"
)

// RoutingStrategy 决定在任务未携带显式类型时如何选择智能体。
type RoutingStrategy string

const (
	// RoutingStatic 将无类型任务交给配置的默认智能体。
	RoutingStatic RoutingStrategy = "static"
	// RoutingLLM 通过一次大模型调用把请求拆解为行动计划后再执行。
	RoutingLLM RoutingStrategy = "llm"
)

// Dispatcher 负责把任务请求路由到恰好一个智能体并执行。
// 注册表在构造后只读，可安全地被并发调用。
type Dispatcher struct {
	agents      map[Role]Agent
	planner     *Planner
	formatter   Agent
	defaultRole Role
	strategy    RoutingStrategy
	llmTimeout  time.Duration
}

// DispatcherOption 定义可选的 Dispatcher 配置。
type DispatcherOption func(*Dispatcher)

// WithRoutingStrategy 设置无类型任务的路由策略。
func WithRoutingStrategy(strategy RoutingStrategy) DispatcherOption {
	return func(d *Dispatcher) {
		if strategy == RoutingStatic || strategy == RoutingLLM {
			d.strategy = strategy
		}
	}
}

// WithDefaultRole 设置 static 策略下的默认智能体。
func WithDefaultRole(role Role) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultRole = role
	}
}

// WithPlanner 配置 llm 策略使用的计划器。
func WithPlanner(planner *Planner) DispatcherOption {
	return func(d *Dispatcher) {
		d.planner = planner
	}
}

// WithFormatter 配置聚合结果的格式化智能体。
func WithFormatter(formatter Agent) DispatcherOption {
	return func(d *Dispatcher) {
		d.formatter = formatter
	}
}

// WithLLMTimeout 设置单次智能体执行的超时时间。
func WithLLMTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.llmTimeout = timeout
		}
	}
}

// NewDispatcher 构造 Dispatcher。注册表由智能体自身的角色索引。
func NewDispatcher(agents []Agent, opts ...DispatcherOption) *Dispatcher {
	registry := make(map[Role]Agent, len(agents))
	for _, ag := range agents {
		if ag == nil {
			continue
		}
		registry[ag.Role()] = ag
	}
	d := &Dispatcher{
		agents:   registry,
		strategy: RoutingLLM,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Roles 返回已注册的角色列表。
func (d *Dispatcher) Roles() []Role {
	roles := make([]Role, 0, len(d.agents))
	for role := range d.agents {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Dispatch 为一个任务请求选择恰好一个智能体并执行。
// 显式类型直接查表；无类型时按配置策略处理。
func (d *Dispatcher) Dispatch(ctx context.Context, req TaskRequest) (*Response, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "任务内容不能为空")
	}

	if req.Type != "" {
		ag, ok := d.agents[req.Type]
		if !ok {
			return nil, xerrors.New(xerrors.CodeUnroutableTask,
				fmt.Sprintf("没有可处理类型 %q 的智能体", req.Type))
		}
		return d.runAgent(ctx, ag, req)
	}

	switch d.strategy {
	case RoutingStatic:
		if d.defaultRole == "" {
			return nil, xerrors.New(xerrors.CodeUnroutableTask, "任务未指定类型且未配置默认智能体")
		}
		ag, ok := d.agents[d.defaultRole]
		if !ok {
			return nil, xerrors.New(xerrors.CodeUnroutableTask,
				fmt.Sprintf("默认智能体 %q 未注册", d.defaultRole))
		}
		req.Type = d.defaultRole
		return d.runAgent(ctx, ag, req)
	case RoutingLLM:
		return d.dispatchByPlan(ctx, req)
	default:
		return nil, xerrors.New(xerrors.CodeUnroutableTask,
			fmt.Sprintf("未知的路由策略: %s", d.strategy))
	}
}

// runAgent 执行单个智能体，必要时附加超时。
func (d *Dispatcher) runAgent(ctx context.Context, ag Agent, req TaskRequest) (*Response, error) {
	if d.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.llmTimeout)
		defer cancel()
	}
	return ag.Run(ctx, req)
}

// dispatchByPlan 将请求交给计划器拆解，并发执行计划中的各个步骤，
// 按动作聚合结果后交给格式化智能体输出自然语言。
func (d *Dispatcher) dispatchByPlan(ctx context.Context, req TaskRequest) (*Response, error) {
	if d.planner == nil {
		return nil, xerrors.New(xerrors.CodeUnroutableTask, "未配置计划器，无法路由无类型任务")
	}

	plan, err := d.planner.Plan(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	if len(plan.Steps) == 0 {
		return nil, xerrors.New(xerrors.CodeUnroutableTask, "计划器未能给出可执行的行动计划")
	}

	type stepOutcome struct {
		action   Role
		response *Response
		err      error
	}

	outcomes := make([]stepOutcome, len(plan.Steps))
	var wg sync.WaitGroup
	for idx, step := range plan.Steps {
		stepReq := step.TaskRequest(req.Content)
		ag, ok := d.agents[step.Action]
		if !ok {
			outcomes[idx] = stepOutcome{action: step.Action, err: xerrors.New(xerrors.CodeUnroutableTask,
				fmt.Sprintf("没有可处理动作 %q 的智能体", step.Action))}
			continue
		}
		wg.Add(1)
		go func(idx int, ag Agent, stepReq TaskRequest) {
			defer wg.Done()
			resp, err := d.runAgent(ctx, ag, stepReq)
			outcomes[idx] = stepOutcome{action: stepReq.Type, response: resp, err: err}
		}(idx, ag, stepReq)
	}
	wg.Wait()

	aggregated := make(map[string]*Response, len(outcomes))
	var (
		entities     []string
		sources      []search.Result
		observations []string
		firstErr     error
		succeeded    int
	)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			observations = append(observations, fmt.Sprintf("%s 执行失败: %v", outcome.action, outcome.err))
			if firstErr == nil {
				firstErr = outcome.err
			}
			continue
		}
		succeeded++
		aggregated[string(outcome.action)] = outcome.response
		entities = append(entities, outcome.response.Entities...)
		sources = append(sources, outcome.response.Sources...)
	}
	if succeeded == 0 {
		return nil, firstErr
	}

	output, err := d.formatAggregate(ctx, aggregated)
	if err != nil {
		observations = append(observations, fmt.Sprintf("结果格式化失败: %v", err))
		output = plainAggregate(aggregated)
	}

	return &Response{
		Role:         RoleFormatter,
		Output:       output,
		Entities:     entities,
		Sources:      sources,
		Observations: strings.Join(observations, "\n"),
	}, nil
}

// formatAggregate 通过格式化智能体将聚合结果转为自然语言。
// 未配置格式化智能体时退化为拼接输出。
func (d *Dispatcher) formatAggregate(ctx context.Context, aggregated map[string]*Response) (string, error) {
	if d.formatter == nil {
		return plainAggregate(aggregated), nil
	}
	encoded, err := json.MarshalIndent(aggregated, "", "  ")
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeLLMFailure, err, "序列化聚合结果失败")
	}
	resp, err := d.runAgent(ctx, d.formatter, TaskRequest{
		Type:    RoleFormatter,
		Content: string(encoded),
	})
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}

// plainAggregate 将各动作的输出按动作名排序后拼接。
func plainAggregate(aggregated map[string]*Response) string {
	actions := make([]string, 0, len(aggregated))
	for action := range aggregated {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	var builder strings.Builder
	for _, action := range actions {
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		fmt.Fprintf(&builder, "[%s]\n%s", action, aggregated[action].Output)
	}
	return builder.String()
}
