package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"AgentRelay/internal/agent"
	"AgentRelay/internal/api"
	"AgentRelay/internal/auth"
	"AgentRelay/internal/config"
	"AgentRelay/internal/llm"
	"AgentRelay/internal/llm/mistral"
	"AgentRelay/internal/observability/alerting"
	"AgentRelay/internal/search"
	"AgentRelay/internal/task"
	"AgentRelay/pkg/logger"
)

// main 是 AgentRelay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentrelayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 缺失不算错误，生产环境通常直接注入环境变量。
	_ = godotenv.Load()

	configPath := os.Getenv("AGENTRELAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentrelay.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 初始化大模型客户端。缺少 API Key 时快速失败。
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	searchProvider, err := createSearchProvider(cfg)
	if err != nil {
		return err
	}

	templates, err := agent.LoadTemplates(cfg.Agents.PromptsPath)
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(cfg, llmClient, searchProvider, templates)
	if err != nil {
		return err
	}

	taskStore, err := createTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = taskStore.Close()
	}()

	taskQueue, err := createTaskQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Error("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	taskService := task.NewService(taskStore, taskQueue, cfg.Agents.MaxRetries)
	processor := task.NewProcessor(dispatcher, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.Queue.Workers),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithAlertDispatcher(alerting.NewFanout()),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	authTokens := make([]auth.Token, 0, len(cfg.Auth.Tokens))
	for _, token := range cfg.Auth.Tokens {
		authTokens = append(authTokens, auth.Token{
			Value:   token.Token,
			Subject: token.Subject,
			Roles:   token.Roles,
		})
	}
	authService := auth.NewService(cfg.Auth.Enabled, authTokens)

	server := api.NewServer(cfg.Server.Address, taskService,
		api.WithDispatcher(dispatcher),
		api.WithAuthService(authService),
	)

	logger.L().Info("agentrelayd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Storage.TaskStore.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("strategy", cfg.Agents.Strategy),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "mistral":
		return mistral.NewClient(mistral.Config{
			APIKey:      cfg.MistralAPIKey(),
			BaseURL:     cfg.LLM.Mistral.BaseURL,
			Model:       cfg.LLM.Mistral.Model,
			Temperature: cfg.LLM.Mistral.Temperature,
			MaxTokens:   cfg.LLM.Mistral.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.Mistral.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createSearchProvider(cfg *config.Config) (search.Provider, error) {
	switch cfg.Search.Provider {
	case "", "duckduckgo":
		return search.NewDuckDuckGoProvider(search.DuckDuckGoConfig{}), nil
	case "static":
		return search.LoadStaticProvider(cfg.Search.SnippetsPath)
	default:
		return nil, fmt.Errorf("未知的检索 provider: %s", cfg.Search.Provider)
	}
}

func buildDispatcher(cfg *config.Config, llmClient llm.Client, provider search.Provider, templates *agent.TemplateSet) (*agent.Dispatcher, error) {
	agents := []agent.Agent{
		agent.NewTranslator(llmClient, templates),
		agent.NewSummarizer(llmClient, templates),
		agent.NewExtractor(llmClient, templates),
		agent.NewSearch(llmClient, provider, templates, agent.WithMaxResults(cfg.Search.MaxResults)),
		agent.NewFormatter(llmClient, templates),
	}

	opts := []agent.DispatcherOption{
		agent.WithFormatter(agent.NewFormatter(llmClient, templates)),
		agent.WithPlanner(agent.NewPlanner(llmClient, templates, agent.KnownRoles())),
	}
	switch cfg.Agents.Strategy {
	case "", "llm":
		opts = append(opts, agent.WithRoutingStrategy(agent.RoutingLLM))
	case "static":
		opts = append(opts, agent.WithRoutingStrategy(agent.RoutingStatic))
	default:
		return nil, fmt.Errorf("未知的路由策略: %s", cfg.Agents.Strategy)
	}
	if cfg.Agents.DefaultRole != "" {
		role := agent.Role(cfg.Agents.DefaultRole)
		if !agent.IsValidRole(role) {
			return nil, fmt.Errorf("未知的默认角色: %s", cfg.Agents.DefaultRole)
		}
		opts = append(opts, agent.WithDefaultRole(role))
	}
	if cfg.Agents.LLMTimeoutSeconds > 0 {
		opts = append(opts, agent.WithLLMTimeout(time.Duration(cfg.Agents.LLMTimeoutSeconds)*time.Second))
	}

	return agent.NewDispatcher(agents, opts...), nil
}

func createTaskStore(cfg *config.Config) (task.Store, error) {
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(cfg.Storage.TaskStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}
}

func createTaskQueue(cfg *config.Config) (task.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
