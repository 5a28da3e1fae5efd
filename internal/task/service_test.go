package task

import (
	"context"
	"testing"

	"AgentRelay/internal/agent"
	xerrors "AgentRelay/internal/errors"
)

func TestServiceSubmitValidatesRequest(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	ctx := context.Background()

	if _, err := service.Submit(ctx, agent.TaskRequest{Content: "   "}); xerrors.CodeOf(err) != xerrors.CodeValidation {
		t.Fatalf("空内容应被拒绝, got %v", err)
	}
	if _, err := service.Submit(ctx, agent.TaskRequest{Type: "mystery", Content: "hi"}); xerrors.CodeOf(err) != xerrors.CodeUnroutableTask {
		t.Fatalf("未知类型应被拒绝, got %v", err)
	}
}

func TestServiceSubmitIsIdempotentPerID(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	ctx := context.Background()

	first, err := service.Submit(ctx, agent.TaskRequest{ID: "fixed-id", Type: agent.RoleTranslator, Content: "Bonjour"})
	if err != nil {
		t.Fatalf("首次提交失败: %v", err)
	}
	second, err := service.Submit(ctx, agent.TaskRequest{ID: "fixed-id", Type: agent.RoleTranslator, Content: "Bonjour"})
	if err != nil {
		t.Fatalf("重复提交失败: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("重复提交应返回同一任务: %s vs %s", first.ID, second.ID)
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("重复提交不应创建新任务: %+v", stats)
	}
}

func TestServiceSubmitGeneratesIDAndQueues(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, 5)
	ctx := context.Background()

	submitted, err := service.Submit(ctx, agent.TaskRequest{Type: agent.RoleSummarizer, Content: "long article"})
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if submitted.ID == "" {
		t.Fatal("未生成任务 ID")
	}
	if submitted.Status != StatusPending || submitted.MaxRetries != 5 {
		t.Fatalf("unexpected task: %+v", submitted)
	}

	stored, err := service.Get(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Content != "long article" || stored.Type != agent.RoleSummarizer {
		t.Fatalf("unexpected stored task: %+v", stored)
	}

	select {
	case queued := <-queue.ch:
		if queued != submitted.ID {
			t.Fatalf("队列中的任务 ID 不匹配: %s", queued)
		}
	default:
		t.Fatal("任务未入队")
	}
}
