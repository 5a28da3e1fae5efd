package search

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	xerrors "AgentRelay/internal/errors"
)

const (
	defaultEndpoint   = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 5
	defaultDDGTimeout = 15 * time.Second
)

// DuckDuckGoConfig 描述 HTML 检索端点的访问参数。
type DuckDuckGoConfig struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
}

// DuckDuckGoProvider 通过 DuckDuckGo 的 HTML 端点检索网页。
// 该端点无需 API Key，适合作为默认的检索实现。
type DuckDuckGoProvider struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewDuckDuckGoProvider 创建 DuckDuckGo 检索实例。
func NewDuckDuckGoProvider(cfg DuckDuckGoConfig) *DuckDuckGoProvider {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDDGTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "AgentRelay/1.0"
	}
	return &DuckDuckGoProvider{
		endpoint:   endpoint,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search 抓取检索结果页并解析出标题、链接与摘要。
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "检索关键词不能为空")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	endpoint := fmt.Sprintf("%s?q=%s", p.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSearchFailure, err, "构建检索请求失败")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "检索请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "请求检索端点失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, xerrors.New(xerrors.CodeSearchFailure,
			fmt.Sprintf("检索端点返回错误状态 %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSearchFailure, err, "解析检索结果页失败")
	}

	results := make([]Result, 0, maxResults)
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a")
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" || href == "" {
			return true
		}
		results = append(results, Result{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: snippet,
		})
		return len(results) < maxResults
	})
	return results, nil
}

// resolveRedirect 解开 DuckDuckGo 的跳转链接，取出真实地址。
func resolveRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

var _ Provider = (*DuckDuckGoProvider)(nil)
