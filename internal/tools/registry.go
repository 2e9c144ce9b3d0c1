package tools

import "context"

// 工具名称，写入工具调用记录。
const (
	ToolTranslator = "translator"
	ToolCalculator = "calculator"
	ToolKnowledge  = "knowledge"
)

// Translation 是翻译能力的返回值。
type Translation struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Language   string `json:"language"`
	Note       string `json:"note,omitempty"`
}

// Calculation 是计算能力的返回值。
type Calculation struct {
	Operation  string  `json:"operation"`
	Operands   []int64 `json:"operands"`
	Result     int64   `json:"result"`
	Expression string  `json:"expression"`
}

// Registry 定义编排器按步骤类型调用的三种能力。
// 每个调用都可能阻塞（模拟延迟），应当响应 ctx 的取消。
type Registry interface {
	Translate(ctx context.Context, text string) (Translation, error)
	Calculate(ctx context.Context, operation string, a, b int64) (Calculation, error)
	AnswerQuestion(ctx context.Context, question string) (string, error)
}
