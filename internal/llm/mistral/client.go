package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/llm"
)

const (
	defaultBaseURL   = "https://api.mistral.ai/v1"
	defaultModelName = "open-mistral-nemo"
	defaultMaxTokens = 500
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 Mistral Chat Completions API 所需的信息。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client 通过 HTTP 调用 Mistral 提供的大模型能力。
// 所有智能体共享同一份模型配置。
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient 根据配置创建 Mistral 客户端。缺少 API Key 时立即失败，
// 保证进程在接受任何任务之前暴露凭证问题。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 Mistral API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = 0
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete 调用 Mistral 生成回复。错误按统一错误码分类后原样上抛，
// 客户端内部不做重试。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "构建 Mistral 请求失败")
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "Mistral 请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "请求 Mistral 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := strings.TrimSpace(string(body))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, xerrors.New(xerrors.CodeAuthFailure,
				fmt.Sprintf("Mistral 拒绝了凭证 (状态 %d)", resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, xerrors.New(xerrors.CodeRateLimited,
				fmt.Sprintf("Mistral 返回限流状态 %d: %s", resp.StatusCode, detail))
		default:
			return nil, xerrors.New(xerrors.CodeLLMFailure,
				fmt.Sprintf("Mistral 返回错误状态 %d: %s", resp.StatusCode, detail))
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "解析 Mistral 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeLLMFailure, "Mistral 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, xerrors.New(xerrors.CodeLLMFailure, "Mistral 响应内容为空")
	}

	return &llm.Response{Content: content}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := make([]message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, message{Role: "system", Content: system})
	}
	messages = append(messages, message{Role: "user", Content: req.Prompt})

	body := map[string]any{
		"model":      c.model,
		"messages":   messages,
		"max_tokens": c.maxTokens,
	}
	if c.temperature > 0 {
		body["temperature"] = c.temperature
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "序列化 Mistral 请求失败")
	}
	return encoded, nil
}

var _ llm.Client = (*Client)(nil)
