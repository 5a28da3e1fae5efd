package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTemplatesMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := "translator: \"Render {content} in {target_language}\"\nsystem: \"Be terse.\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write template file: %v", err)
	}

	templates, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	if templates.Translator != "Render {content} in {target_language}" {
		t.Fatalf("override not applied: %q", templates.Translator)
	}
	if templates.System != "Be terse." {
		t.Fatalf("system override not applied: %q", templates.System)
	}
	// 未覆盖的字段继承默认值。
	if !strings.Contains(templates.Summarizer, "concise summary") {
		t.Fatalf("default summarizer template lost: %q", templates.Summarizer)
	}
}

func TestLoadTemplatesEmptyPathReturnsDefaults(t *testing.T) {
	templates, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	defaults := DefaultTemplates()
	if templates.Planner != defaults.Planner {
		t.Fatalf("expected default planner template")
	}
}

func TestRenderReplacesPlaceholders(t *testing.T) {
	got := render("Translate {content} into {target_language}",
		placeholderContent, "Bonjour",
		placeholderLanguage, "en",
	)
	if got != "Translate Bonjour into en" {
		t.Fatalf("unexpected render result: %q", got)
	}
}
