package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 模板中可用的占位符。
const (
	placeholderContent  = "{content}"
	placeholderLanguage = "{target_language}"
	placeholderContext  = "{search_context}"
	placeholderActions  = "{actions}"
)

// TemplateSet 保存各角色的提示词模板。进程启动后只读。
type TemplateSet struct {
	Translator string `yaml:"translator"`
	Summarizer string `yaml:"summarizer"`
	Extractor  string `yaml:"extractor"`
	Search     string `yaml:"search"`
	Formatter  string `yaml:"formatter"`
	Planner    string `yaml:"planner"`
	System     string `yaml:"system"`
}

// DefaultTemplates 返回内置的提示词模板。
func DefaultTemplates() *TemplateSet {
	return &TemplateSet{
		Translator: "Translate the following text into {target_language}:\n\n{content}",
		Summarizer: "Provide a concise summary for the following text:\n\n{content}",
		Extractor: "Extract named entities (persons, locations, organizations) from the following text:\n\n{content}\n\n" +
			"Return only the entities separated by commas.",
		Search: "Answer the following request using only the search results provided below.\n\n" +
			"Request:\n{content}\n\nSearch results:\n{search_context}",
		Formatter: "Transform the following aggregated JSON result into a clear, well-structured summary in natural language:\n\n" +
			"{content}\n\nProvide only the final text summary without additional commentary.",
		Planner: "Analyze the following request and propose an action plan as a JSON structure " +
			"using the following strict format:\n\n" +
			"{\n  \"tasks\": [\n    { \"action\": \"<action_name>\", \"params\": { <parameters> } },\n    ...\n  ]\n}\n\n" +
			"Actions: {actions}\n\n" +
			"Only return the JSON without any additional explanatory text.\n\n" +
			"Request to analyze:\n\"{content}\"\n",
		System: "You are AgentRelay, a task execution assistant. Answer precisely and without filler.",
	}
}

// LoadTemplates 从 YAML 文件加载模板，未填写的字段继承内置默认值。
func LoadTemplates(path string) (*TemplateSet, error) {
	templates := DefaultTemplates()
	if strings.TrimSpace(path) == "" {
		return templates, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取提示词模板失败: %w", err)
	}

	var overrides TemplateSet
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("解析提示词模板失败: %w", err)
	}

	templates.merge(overrides)
	return templates, nil
}

func (t *TemplateSet) merge(other TemplateSet) {
	if other.Translator != "" {
		t.Translator = other.Translator
	}
	if other.Summarizer != "" {
		t.Summarizer = other.Summarizer
	}
	if other.Extractor != "" {
		t.Extractor = other.Extractor
	}
	if other.Search != "" {
		t.Search = other.Search
	}
	if other.Formatter != "" {
		t.Formatter = other.Formatter
	}
	if other.Planner != "" {
		t.Planner = other.Planner
	}
	if other.System != "" {
		t.System = other.System
	}
}

// render 将占位符替换为具体内容。
func render(template string, pairs ...string) string {
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
