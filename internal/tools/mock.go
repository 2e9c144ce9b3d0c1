package tools

import (
	"context"
	"fmt"

	"AgentFlow/internal/knowledge"
)

const fallbackAnswer = "I understand you're asking about: \"%s\". This is a simulated response from the AI agent. In a real implementation, this would connect to a language model API like OpenAI GPT or similar to provide comprehensive answers."

// MockRegistry 使用演示词典、计算器和静态知识库实现 Registry。
type MockRegistry struct {
	dictionary *Dictionary
	knowledge  knowledge.Provider
	latency    Latency
}

// Option 定义可选的 MockRegistry 配置。
type Option func(*MockRegistry)

// WithDictionary 替换默认词典。
func WithDictionary(dictionary *Dictionary) Option {
	return func(r *MockRegistry) {
		if dictionary != nil {
			r.dictionary = dictionary
		}
	}
}

// WithKnowledgeProvider 替换默认知识库。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(r *MockRegistry) {
		if provider != nil {
			r.knowledge = provider
		}
	}
}

// WithLatency 设置模拟延迟策略。
func WithLatency(latency Latency) Option {
	return func(r *MockRegistry) {
		if latency != nil {
			r.latency = latency
		}
	}
}

// NewMockRegistry 创建默认不带延迟的 MockRegistry。
func NewMockRegistry(opts ...Option) *MockRegistry {
	r := &MockRegistry{
		dictionary: DefaultDictionary(),
		knowledge:  knowledge.NewDefaultProvider(),
		latency:    NoLatency{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Translate 实现 Registry 接口。
func (r *MockRegistry) Translate(ctx context.Context, text string) (Translation, error) {
	if err := r.latency.Wait(ctx, ToolTranslator); err != nil {
		return Translation{}, err
	}
	return r.dictionary.Translate(text), nil
}

// Calculate 实现 Registry 接口。
func (r *MockRegistry) Calculate(ctx context.Context, operation string, a, b int64) (Calculation, error) {
	if err := r.latency.Wait(ctx, ToolCalculator); err != nil {
		return Calculation{}, err
	}
	return Calculate(operation, a, b)
}

// AnswerQuestion 实现 Registry 接口，未命中知识库时返回通用说明。
func (r *MockRegistry) AnswerQuestion(ctx context.Context, question string) (string, error) {
	if err := r.latency.Wait(ctx, ToolKnowledge); err != nil {
		return "", err
	}
	if r.knowledge != nil {
		if snippets := r.knowledge.Query(question); len(snippets) > 0 {
			return snippets[0].Content, nil
		}
	}
	return fmt.Sprintf(fallbackAnswer, question), nil
}

var _ Registry = (*MockRegistry)(nil)
