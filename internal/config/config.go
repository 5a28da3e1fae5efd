package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 AgentRelay 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Queue   QueueConfig   `json:"task_queue"`
	LLM     LLMConfig     `json:"llm"`
	Search  SearchConfig  `json:"search"`
	Agents  AgentsConfig  `json:"agents"`
	Auth    AuthConfig    `json:"auth"`
	Logging LoggingConfig `json:"logging"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述 MySQL 等后端的连接信息。
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store"`
}

// TaskStoreConfig 支持 memory 与 mysql 两种驱动。
type TaskStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述任务队列的驱动选择。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string        `json:"provider"`
	Mistral  MistralConfig `json:"mistral"`
}

// MistralConfig 描述调用 Mistral 托管 API 所需的信息。
// APIKey 为空时会从 APIKeyEnv 指定的环境变量读取。
type MistralConfig struct {
	APIKey         string  `json:"api_key"`
	APIKeyEnv      string  `json:"api_key_env"`
	BaseURL        string  `json:"base_url"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// SearchConfig 控制互联网检索的提供方。
type SearchConfig struct {
	Provider     string `json:"provider"`
	SnippetsPath string `json:"snippets_path"`
	MaxResults   int    `json:"max_results"`
}

// AgentsConfig 控制调度策略与提示词模板。
type AgentsConfig struct {
	Strategy          string `json:"strategy"`
	DefaultRole       string `json:"default_role"`
	PromptsPath       string `json:"prompts_path"`
	LLMTimeoutSeconds int    `json:"llm_timeout_seconds"`
	MaxRetries        int    `json:"max_retries"`
}

// AuthConfig 描述静态访问令牌。
type AuthConfig struct {
	Enabled bool          `json:"enabled"`
	Tokens  []TokenConfig `json:"tokens"`
}

// TokenConfig 将一个 Bearer token 绑定到调用方身份。
type TokenConfig struct {
	Token   string   `json:"token"`
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// LoggingConfig 控制结构化日志与审计日志。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// MistralAPIKey 返回配置或环境变量中的 API key。
func (c *Config) MistralAPIKey() string {
	if c.LLM.Mistral.APIKey != "" {
		return c.LLM.Mistral.APIKey
	}
	return os.Getenv(c.LLM.Mistral.APIKeyEnv)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "mistral"
	}
	if c.LLM.Mistral.APIKeyEnv == "" {
		c.LLM.Mistral.APIKeyEnv = "MISTRAL_API_KEY"
	}

	if c.Search.Provider == "" {
		c.Search.Provider = "duckduckgo"
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.SnippetsPath != "" && !filepath.IsAbs(c.Search.SnippetsPath) {
		c.Search.SnippetsPath = filepath.Join(baseDir, c.Search.SnippetsPath)
	}

	if c.Agents.Strategy == "" {
		c.Agents.Strategy = "llm"
	}
	if c.Agents.MaxRetries <= 0 {
		c.Agents.MaxRetries = 3
	}
	if c.Agents.PromptsPath != "" && !filepath.IsAbs(c.Agents.PromptsPath) {
		c.Agents.PromptsPath = filepath.Join(baseDir, c.Agents.PromptsPath)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
