package planner

import (
	"fmt"
	"strings"

	xerrors "AgentFlow/internal/errors"
)

// Kind 表示步骤的类型。
type Kind string

const (
	KindTranslation    Kind = "translation"
	KindCalculation    Kind = "calculation"
	KindKnowledgeQuery Kind = "knowledge_query"
)

// Operation 是计算步骤支持的运算。
type Operation string

const (
	OperationAdd      Operation = "add"
	OperationMultiply Operation = "multiply"
)

// TranslationParams 是翻译步骤的参数。
type TranslationParams struct {
	Text string `json:"text"`
}

// CalculationParams 是计算步骤的参数。
type CalculationParams struct {
	Operation Operation `json:"operation"`
	A         int64     `json:"a"`
	B         int64     `json:"b"`
}

// KnowledgeParams 是知识问答步骤的参数。
type KnowledgeParams struct {
	Question string `json:"question"`
}

// Descriptor 描述从查询片段中分类得到的一个步骤。
// 三种参数中只有与 Kind 对应的一种有效，构造后不可修改。
type Descriptor struct {
	kind        Kind
	translation TranslationParams
	calculation CalculationParams
	knowledge   KnowledgeParams
}

// NewTranslation 构造翻译步骤。
func NewTranslation(text string) (Descriptor, error) {
	if strings.TrimSpace(text) == "" {
		return Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, "translation text must not be empty")
	}
	return Descriptor{kind: KindTranslation, translation: TranslationParams{Text: text}}, nil
}

// NewCalculation 构造计算步骤，仅接受 add 与 multiply。
func NewCalculation(op Operation, a, b int64) (Descriptor, error) {
	switch op {
	case OperationAdd, OperationMultiply:
	default:
		return Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown calculation operation %q", op))
	}
	return Descriptor{kind: KindCalculation, calculation: CalculationParams{Operation: op, A: a, B: b}}, nil
}

// NewKnowledgeQuery 构造知识问答步骤。
func NewKnowledgeQuery(question string) (Descriptor, error) {
	if strings.TrimSpace(question) == "" {
		return Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, "question must not be empty")
	}
	return Descriptor{kind: KindKnowledgeQuery, knowledge: KnowledgeParams{Question: question}}, nil
}

// Kind 返回步骤类型。
func (d Descriptor) Kind() Kind { return d.kind }

// Translation 返回翻译参数，类型不符时 ok 为 false。
func (d Descriptor) Translation() (TranslationParams, bool) {
	return d.translation, d.kind == KindTranslation
}

// Calculation 返回计算参数，类型不符时 ok 为 false。
func (d Descriptor) Calculation() (CalculationParams, bool) {
	return d.calculation, d.kind == KindCalculation
}

// Knowledge 返回问答参数，类型不符时 ok 为 false。
func (d Descriptor) Knowledge() (KnowledgeParams, bool) {
	return d.knowledge, d.kind == KindKnowledgeQuery
}

// Arguments 以参数表的形式导出，用于记录工具调用。
func (d Descriptor) Arguments() map[string]any {
	switch d.kind {
	case KindTranslation:
		return map[string]any{"text": d.translation.Text}
	case KindCalculation:
		return map[string]any{
			"operation": string(d.calculation.Operation),
			"a":         d.calculation.A,
			"b":         d.calculation.B,
		}
	case KindKnowledgeQuery:
		return map[string]any{"question": d.knowledge.Question}
	default:
		return map[string]any{}
	}
}

// Describe 生成步骤的可读描述。
func (d Descriptor) Describe() string {
	switch d.kind {
	case KindTranslation:
		return fmt.Sprintf("Translate \"%s\" to German", d.translation.Text)
	case KindCalculation:
		switch d.calculation.Operation {
		case OperationAdd:
			return fmt.Sprintf("Add %d and %d", d.calculation.A, d.calculation.B)
		case OperationMultiply:
			return fmt.Sprintf("Multiply %d and %d", d.calculation.A, d.calculation.B)
		}
		return "Perform calculation"
	case KindKnowledgeQuery:
		return "Answer: " + d.knowledge.Question
	default:
		return "Unknown step"
	}
}

// String 便于日志输出。
func (d Descriptor) String() string {
	return fmt.Sprintf("%s%v", d.kind, d.Arguments())
}
