package tools

import (
	"context"
	"time"
)

// Latency 决定每次工具调用前的模拟等待时间。
type Latency interface {
	Wait(ctx context.Context, tool string) error
}

// NoLatency 不做任何等待，用于测试和批处理。
type NoLatency struct{}

// Wait 实现 Latency 接口。
func (NoLatency) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}

// SimulatedLatency 按工具名称等待固定时长。
type SimulatedLatency struct {
	Delays map[string]time.Duration
}

// DefaultSimulatedLatency 返回交互演示使用的延迟配置。
func DefaultSimulatedLatency() SimulatedLatency {
	return SimulatedLatency{Delays: map[string]time.Duration{
		ToolTranslator: 800 * time.Millisecond,
		ToolCalculator: 500 * time.Millisecond,
		ToolKnowledge:  time.Second,
	}}
}

// Wait 实现 Latency 接口。
func (l SimulatedLatency) Wait(ctx context.Context, tool string) error {
	delay := l.Delays[tool]
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
