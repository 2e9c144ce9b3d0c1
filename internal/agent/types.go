package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"AgentFlow/internal/tools"
)

// Status 表示执行的生命周期状态。
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolCall 记录一次工具调用的参数、结果与错误。
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Step 是执行中的一个步骤。
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ToolCalls   []ToolCall `json:"tool_calls"`
	Completed   bool       `json:"completed"`
	Result      any        `json:"result,omitempty"`
}

// Failed 判断步骤是否以错误结束。成功的步骤总带有结果。
func (s Step) Failed() bool {
	if s.Completed && s.Result == nil {
		return true
	}
	for _, call := range s.ToolCalls {
		if call.Error != "" {
			return true
		}
	}
	return false
}

// Clone 返回步骤的副本，工具调用、参数与结果都不与原值共享。
func (s Step) Clone() Step {
	out := s
	out.Result = cloneResult(s.Result)
	out.ToolCalls = make([]ToolCall, len(s.ToolCalls))
	for i, call := range s.ToolCalls {
		call.Arguments = maps.Clone(call.Arguments)
		call.Result = cloneResult(call.Result)
		out.ToolCalls[i] = call
	}
	return out
}

// cloneResult 复制工具结果中的引用类型字段。
func cloneResult(result any) any {
	switch v := result.(type) {
	case tools.Calculation:
		v.Operands = slices.Clone(v.Operands)
		return v
	case *tools.Calculation:
		if v == nil {
			return v
		}
		dup := *v
		dup.Operands = slices.Clone(v.Operands)
		return &dup
	case *tools.Translation:
		if v == nil {
			return v
		}
		dup := *v
		return &dup
	case map[string]any:
		return maps.Clone(v)
	case []any:
		return slices.Clone(v)
	default:
		return result
	}
}

// Execution 是针对一条查询的完整执行轨迹。
type Execution struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Steps       []Step     `json:"steps"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	FinalResult string     `json:"final_result,omitempty"`
}

// Clone 深拷贝执行记录。
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.Steps = make([]Step, len(e.Steps))
	for i, step := range e.Steps {
		out.Steps[i] = step.Clone()
	}
	if e.EndTime != nil {
		end := *e.EndTime
		out.EndTime = &end
	}
	return &out
}

// Duration 返回执行耗时，未结束时返回 0。
func (e *Execution) Duration() time.Duration {
	if e == nil || e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// Memory 保存会话内按顺序追加的执行记录。
type Memory struct {
	Executions []Execution    `json:"executions"`
	Context    map[string]any `json:"context"`
}

// NewMemory 创建空的会话记忆。
func NewMemory() Memory {
	return Memory{Executions: []Execution{}, Context: map[string]any{}}
}

// Append 返回追加了执行副本的新 Memory，原值保持不变。
// 已追加的执行不再修改，因此历史记录只做浅拷贝。
func (m Memory) Append(exec *Execution) Memory {
	out := Memory{
		Executions: make([]Execution, len(m.Executions), len(m.Executions)+1),
		Context:    maps.Clone(m.Context),
	}
	copy(out.Executions, m.Executions)
	if out.Context == nil {
		out.Context = map[string]any{}
	}
	if exec != nil {
		out.Executions = append(out.Executions, *exec.Clone())
	}
	return out
}

// Clone 复制 Memory，切片与上下文不与原值共享。
func (m Memory) Clone() Memory {
	out := Memory{
		Executions: make([]Execution, len(m.Executions), len(m.Executions)+1),
		Context:    maps.Clone(m.Context),
	}
	for i := range m.Executions {
		out.Executions[i] = *m.Executions[i].Clone()
	}
	if out.Context == nil {
		out.Context = map[string]any{}
	}
	return out
}

// Len 返回执行记录数量。
func (m Memory) Len() int {
	return len(m.Executions)
}

// Export 以带缩进的 JSON 文档写出 Memory。
func (m Memory) Export(w io.Writer) error {
	doc := m
	if doc.Executions == nil {
		doc.Executions = []Execution{}
	}
	if doc.Context == nil {
		doc.Context = map[string]any{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("export memory: %w", err)
	}
	return nil
}
