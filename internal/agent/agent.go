package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AgentFlow/internal/errors"
	"AgentFlow/internal/metrics"
	"AgentFlow/internal/planner"
	"AgentFlow/internal/tools"
	"AgentFlow/pkg/logger"
)

// Observer 在步骤加入执行以及步骤结束时收到步骤快照。
type Observer func(executionID string, step Step)

// Agent 按顺序执行查询拆分出的步骤，是系统的业务核心。
type Agent struct {
	registry    tools.Registry
	settleDelay time.Duration
	toolTimeout time.Duration
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithSettleDelay 设置步骤之间的停顿时间。
func WithSettleDelay(delay time.Duration) Option {
	return func(a *Agent) {
		if delay < 0 {
			delay = 0
		}
		a.settleDelay = delay
	}
}

// WithToolTimeout 设置单次工具调用的超时时间，0 表示不限制。
func WithToolTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.toolTimeout = timeout
	}
}

// WithObserver 注册步骤观察者，用于渐进式展示。
func WithObserver(observer Observer) Option {
	return func(a *Agent) {
		a.observer = observer
	}
}

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator 替换执行 ID 生成器。
func WithIDGenerator(next func() string) Option {
	return func(a *Agent) {
		if next != nil {
			a.newID = next
		}
	}
}

// New 创建一个 Agent。
func New(registry tools.Registry, opts ...Option) *Agent {
	ag := &Agent{
		registry: registry,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.logger == nil {
		ag.logger = logger.Named("agent")
	}
	return ag
}

// ExecuteQuery 规划并执行查询，返回终态的执行记录。memory 只读，
// 由调用方负责把结果追加到会话记忆中。
func (a *Agent) ExecuteQuery(ctx context.Context, query string, memory Memory) (exec *Execution) {
	exec = &Execution{
		ID:        a.newID(),
		Query:     query,
		Steps:     []Step{},
		Status:    StatusRunning,
		StartTime: a.now(),
	}
	log := a.logger.With(slog.String("execution_id", exec.ID))
	log.Debug("execution started", slog.Int("history", memory.Len()))

	defer func() {
		if r := recover(); r != nil {
			a.fail(exec, xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("unexpected panic: %v", r)))
		}
		a.report(exec, log)
	}()

	if a.registry == nil {
		a.fail(exec, xerrors.New(xerrors.CodeInitializationFailure, "tool registry is not configured"))
		return exec
	}

	lines, err := a.run(ctx, exec, log)
	if err != nil {
		a.fail(exec, err)
		return exec
	}

	end := a.now()
	exec.Status = StatusCompleted
	exec.EndTime = &end
	exec.FinalResult = strings.Join(lines, "\n\n")
	return exec
}

func (a *Agent) run(ctx context.Context, exec *Execution, log *slog.Logger) ([]string, error) {
	descriptors, err := planner.Plan(exec.Query)
	if err != nil {
		return nil, err
	}
	log.Debug("query planned", slog.Int("steps", len(descriptors)))

	lines := make([]string, 0, len(descriptors))
	for i, descriptor := range descriptors {
		if err := ctx.Err(); err != nil {
			return nil, interrupted(err)
		}

		exec.Steps = append(exec.Steps, Step{
			ID:          fmt.Sprintf("%s-step-%d", exec.ID, i+1),
			Description: descriptor.Describe(),
			ToolCalls:   []ToolCall{},
		})
		step := &exec.Steps[len(exec.Steps)-1]
		a.notify(exec.ID, step)

		lines = append(lines, a.runStep(ctx, step, descriptor, log))
		a.notify(exec.ID, step)

		if err := a.settle(ctx); err != nil {
			return nil, interrupted(err)
		}
	}
	return lines, nil
}

// runStep 执行单个步骤，错误与 panic 都在此处隔离，步骤总会被标记为完成。
func (a *Agent) runStep(ctx context.Context, step *Step, descriptor planner.Descriptor, log *slog.Logger) (summary string) {
	outcome := metrics.OutcomeSucceeded
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomeFailed
			summary = a.stepFailed(step, xerrors.New(xerrors.CodeToolFailure, fmt.Sprintf("step panicked: %v", r)), log)
		}
		step.Completed = true
		metrics.ObserveStep(string(descriptor.Kind()), outcome)
	}()

	result, summary, err := a.dispatch(ctx, step, descriptor)
	if err != nil {
		outcome = metrics.OutcomeFailed
		return a.stepFailed(step, err, log)
	}
	step.Result = result
	if len(step.ToolCalls) > 0 {
		step.ToolCalls[0].Result = result
	}
	return summary
}

func (a *Agent) dispatch(ctx context.Context, step *Step, descriptor planner.Descriptor) (any, string, error) {
	switch descriptor.Kind() {
	case planner.KindTranslation:
		params, _ := descriptor.Translation()
		a.record(step, tools.ToolTranslator, descriptor)
		var out tools.Translation
		err := a.invoke(ctx, tools.ToolTranslator, func(ctx context.Context) (err error) {
			out, err = a.registry.Translate(ctx, params.Text)
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return out, fmt.Sprintf("Translated \"%s\" to \"%s\"", out.Original, out.Translated), nil

	case planner.KindCalculation:
		params, _ := descriptor.Calculation()
		a.record(step, tools.ToolCalculator, descriptor)
		var out tools.Calculation
		err := a.invoke(ctx, tools.ToolCalculator, func(ctx context.Context) (err error) {
			out, err = a.registry.Calculate(ctx, string(params.Operation), params.A, params.B)
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return out, "Calculated: " + out.Expression, nil

	case planner.KindKnowledgeQuery:
		params, _ := descriptor.Knowledge()
		var answer string
		err := a.invoke(ctx, tools.ToolKnowledge, func(ctx context.Context) (err error) {
			answer, err = a.registry.AnswerQuestion(ctx, params.Question)
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return answer, answer, nil

	default:
		return nil, "", xerrors.New(xerrors.CodeUnsupportedOperation, fmt.Sprintf("Unsupported step kind: %s", descriptor.Kind()))
	}
}

// record 在调用工具前登记调用参数与时间。
func (a *Agent) record(step *Step, tool string, descriptor planner.Descriptor) {
	step.ToolCalls = append(step.ToolCalls, ToolCall{
		ID:        fmt.Sprintf("%s-call-%d", step.ID, len(step.ToolCalls)+1),
		Name:      tool,
		Arguments: descriptor.Arguments(),
		Timestamp: a.now(),
	})
}

func (a *Agent) invoke(ctx context.Context, tool string, call func(context.Context) error) error {
	callCtx := ctx
	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	started := time.Now()
	err := call(callCtx)
	metrics.ObserveToolCall(tool, time.Since(started))

	if err != nil && stdErrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("%s timed out after %s", tool, a.toolTimeout),
			xerrors.WithMetadata("tool", tool))
	}
	return err
}

func (a *Agent) stepFailed(step *Step, err error, log *slog.Logger) string {
	message := xerrors.MessageOf(err)
	if len(step.ToolCalls) > 0 {
		step.ToolCalls[0].Error = message
	}
	step.Result = nil
	log.Warn("step failed",
		slog.String("step_id", step.ID),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.String("error", message))
	return "Error: " + message
}

func (a *Agent) settle(ctx context.Context) error {
	if a.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) notify(executionID string, step *Step) {
	if a.observer == nil {
		return
	}
	a.observer(executionID, step.Clone())
}

// fail 把执行切换到失败终态，只生效一次。
func (a *Agent) fail(exec *Execution, err error) {
	if exec.Status.Terminal() {
		return
	}
	end := a.now()
	exec.Status = StatusFailed
	exec.EndTime = &end
	exec.FinalResult = "Execution failed: " + xerrors.MessageOf(err)
}

func (a *Agent) report(exec *Execution, log *slog.Logger) {
	metrics.ObserveExecution(string(exec.Status), exec.Duration())

	attrs := []any{
		slog.String("execution_id", exec.ID),
		slog.String("status", string(exec.Status)),
		slog.Int("steps", len(exec.Steps)),
		slog.Duration("duration", exec.Duration()),
	}
	if exec.Status == StatusFailed {
		log.Error("execution failed", slog.String("final_result", exec.FinalResult))
	}
	logger.Audit().Info("execution finished", attrs...)
}

func interrupted(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "execution interrupted: deadline exceeded")
	}
	return xerrors.Wrap(xerrors.CodeTimeout, err, "execution interrupted: cancelled")
}
