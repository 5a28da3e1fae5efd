package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Snippet 描述静态知识条目，作为离线演示与测试的检索数据源。
type Snippet struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// StaticProvider 通过加载 JSON 文件提供静态检索能力。
type StaticProvider struct {
	items []Snippet
}

// NewStaticProvider 创建静态检索实例。
func NewStaticProvider(items []Snippet) *StaticProvider {
	return &StaticProvider{items: items}
}

// LoadStaticProvider 从 JSON 文件加载检索条目。
func LoadStaticProvider(path string) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("静态检索文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析静态检索路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取静态检索文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析静态检索文件失败: %w", err)
	}

	return NewStaticProvider(entries), nil
}

// Search 根据关键词进行简单匹配。没有关键词的条目视为通配。
func (p *StaticProvider) Search(_ context.Context, query string, maxResults int) ([]Result, error) {
	if p == nil {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	query = strings.ToLower(strings.TrimSpace(query))

	results := make([]Result, 0, maxResults)
	for _, item := range p.items {
		if !matches(item, query) {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Content,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

func matches(snippet Snippet, query string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
