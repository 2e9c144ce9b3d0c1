package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"AgentFlow/internal/agent"
	xerrors "AgentFlow/internal/errors"
	"AgentFlow/internal/observability/alerting"
	"AgentFlow/pkg/logger"
)

// Executor 定义了处理器所需的 Agent 能力。
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, memory agent.Memory) *agent.Execution
}

// SessionStore 保存执行结果所属的会话记忆。
type SessionStore interface {
	Snapshot(sessionID string) (agent.Memory, bool)
	Append(sessionID string, exec *agent.Execution) (int, error)
}

// Processor 负责从队列消费任务并交给 Agent 执行。
type Processor struct {
	executor    Executor
	store       Store
	sessions    SessionStore
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, sessions SessionStore, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		sessions:    sessions,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("task")
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "task consumer is not configured")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil || p.sessions == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "task processor is not initialised")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("skip task", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("claim task", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, alerting.Event{Code: CodeTaskProcessing, Message: xerrors.MessageOf(err), TaskID: taskID})
		return err
	}

	memory, _ := p.sessions.Snapshot(task.SessionID)
	exec := p.executor.ExecuteQuery(ctx, task.Query, memory)
	if exec == nil {
		return p.fail(ctx, task, CodeTaskProcessing, "executor returned no execution", nil)
	}
	result := ExecutionResult{ExecutionID: exec.ID, FinalResult: exec.FinalResult}

	if _, err := p.sessions.Append(task.SessionID, exec); err != nil {
		p.logger.Error("append execution to session", slog.Any("error", err),
			slog.String("task_id", task.ID), slog.String("execution_id", exec.ID))
		return p.fail(ctx, task, CodeTaskProcessing, xerrors.MessageOf(err), &result)
	}

	if exec.Status == agent.StatusFailed {
		p.emitAlert(ctx, alerting.Event{
			Code:        CodeTaskProcessing,
			Message:     exec.FinalResult,
			TaskID:      task.ID,
			SessionID:   task.SessionID,
			ExecutionID: exec.ID,
			Metadata:    map[string]string{"query": task.Query},
		})
		return p.fail(ctx, task, CodeTaskProcessing, exec.FinalResult, &result)
	}

	if err := p.store.MarkCompleted(ctx, task.ID, result); err != nil {
		p.logger.Error("mark task completed", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Info("task completed",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("execution_id", exec.ID),
		slog.Int("steps", len(exec.Steps)),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, task *Task, code xerrors.Code, message string, result *ExecutionResult) error {
	if err := p.store.MarkFailed(ctx, task.ID, code, message, result); err != nil {
		p.logger.Error("mark task failed", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Warn("task failed",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("error_code", string(code)),
		slog.String("error", message),
	)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, event alerting.Event) {
	if p.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(event.Code)
	if event.Message == "" {
		event.Message = attrs.Message
	}
	event.Severity = attrs.Severity
	event.OccurredAt = time.Now()
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("alert notification failed",
			slog.Any("error", err),
			slog.String("task_id", event.TaskID),
		)
	}
}
