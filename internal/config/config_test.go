package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrelay.json")
	content := `{
		"server": {"address": ":9000"},
		"llm": {"mistral": {"model": "open-mistral-nemo"}},
		"agents": {"prompts_path": "prompts.yaml"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.TaskStore.Driver != "memory" {
		t.Fatalf("默认存储驱动应为 memory: %s", cfg.Storage.TaskStore.Driver)
	}
	if cfg.Queue.Driver != "memory" || cfg.Queue.Workers != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.LLM.Provider != "mistral" || cfg.LLM.Mistral.APIKeyEnv != "MISTRAL_API_KEY" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Search.Provider != "duckduckgo" || cfg.Search.MaxResults != 5 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Agents.Strategy != "llm" || cfg.Agents.MaxRetries != 3 {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agents)
	}
	if cfg.Agents.PromptsPath != filepath.Join(dir, "prompts.yaml") {
		t.Fatalf("相对路径未展开: %s", cfg.Agents.PromptsPath)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应返回错误")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("不存在的文件应返回错误")
	}
}

func TestMistralAPIKeyFallsBackToEnv(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults(t.TempDir())

	t.Setenv("MISTRAL_API_KEY", "env-secret")
	if got := cfg.MistralAPIKey(); got != "env-secret" {
		t.Fatalf("unexpected api key: %q", got)
	}

	cfg.LLM.Mistral.APIKey = "inline-secret"
	if got := cfg.MistralAPIKey(); got != "inline-secret" {
		t.Fatalf("配置中的 key 应优先: %q", got)
	}
}
