package llm

import "context"

// Request 描述发送给大模型的一次补全请求。
// 模型名称、温度与最大 token 数由客户端统一配置，所有智能体共享同一组参数。
type Request struct {
	// System 为可选的系统提示词。
	System string
	// Prompt 是智能体渲染后的完整用户提示词。
	Prompt string
}

// Response 是大模型返回的文本结果。
type Response struct {
	Content string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
