package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"AgentRelay/internal/agent"
	xerrors "AgentRelay/internal/errors"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	err       error
}

func (f *fakeExecutor) Dispatch(ctx context.Context, req agent.TaskRequest) (*agent.Response, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.processed.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Response{Role: agent.RoleSummarizer, Output: "ok"}, nil
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		content := fmt.Sprintf("content-%d", i)
		if _, err := service.Submit(ctx, agent.TaskRequest{Content: content}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRecordsExecutionResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(2))

	go func() {
		_ = processor.Start(ctx)
	}()

	submitted, err := service.Submit(ctx, agent.TaskRequest{Type: agent.RoleSummarizer, Content: "long article"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if done.Status != StatusSucceeded {
		t.Fatalf("unexpected status: %s (%s)", done.Status, done.LastError)
	}
	if done.Result == nil || done.Result.Output != "ok" || done.Result.Role != agent.RoleSummarizer {
		t.Fatalf("unexpected result: %+v", done.Result)
	}
}

func TestProcessorMarksNonRetryableFailureTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{err: xerrors.New(xerrors.CodeValidation, "内容为空")}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(1))

	go func() {
		_ = processor.Start(ctx)
	}()

	submitted, err := service.Submit(ctx, agent.TaskRequest{Content: "anything"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("unexpected status: %s", done.Status)
	}
	if done.ErrorCode != string(xerrors.CodeValidation) {
		t.Fatalf("unexpected error code: %s", done.ErrorCode)
	}
	if int(executor.processed.Load()) != 1 {
		t.Fatalf("不可重试错误不应重试，实际执行 %d 次", executor.processed.Load())
	}
}

type fallbackRecovery struct{}

func (fallbackRecovery) Recover(_ context.Context, claimed *Task, cause error) (*ExecutionResult, error) {
	return &ExecutionResult{
		Role:         claimed.Type,
		Output:       "degraded",
		Observations: "fallback after: " + cause.Error(),
	}, nil
}

func TestProcessorAppliesRecoveryFallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{err: xerrors.New(xerrors.CodeUnroutableTask, "无法路由")}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue,
		WithWorkerCount(1),
		WithRecoveryHandler(fallbackRecovery{}),
	)

	go func() {
		_ = processor.Start(ctx)
	}()

	submitted, err := service.Submit(ctx, agent.TaskRequest{Content: "anything"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if done.Status != StatusSucceeded {
		t.Fatalf("降级结果未写入: %+v", done)
	}
	if done.Result == nil || done.Result.Output != "degraded" {
		t.Fatalf("unexpected fallback result: %+v", done.Result)
	}
}
