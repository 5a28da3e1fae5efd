package search

import "context"

// Result 表示一次检索命中的网页摘要。
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider 定义互联网检索的通用接口。检索能力作为外部协作者注入，
// 核心逻辑不依赖任何特定的搜索服务商。
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
