package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(question string) []Snippet
}

// Snippet 描述一条可直接作为回答的知识。
type Snippet struct {
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content" yaml:"content"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// StaticProvider 按顺序匹配内置或从文件加载的知识条目。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// DefaultSnippets 返回演示用的内置知识条目。
func DefaultSnippets() []Snippet {
	return []Snippet{
		{
			Title:    "capital of italy",
			Content:  "The capital of Italy is Rome (Roma in Italian). It is located in the central-western portion of the Italian Peninsula and has been the capital since 1871.",
			Keywords: []string{"capital of italy"},
		},
		{
			Title:    "distance between earth and mars",
			Content:  "The distance between Earth and Mars varies significantly due to their elliptical orbits. At their closest approach (opposition), they are about 35 million miles (56 million kilometers) apart. At their farthest, they can be as far as 250 million miles (401 million kilometers) apart. On average, the distance is approximately 140 million miles (225 million kilometers).",
			Keywords: []string{"distance between earth and mars"},
		},
		{
			Title:    "what is ai",
			Content:  "Artificial Intelligence (AI) refers to the simulation of human intelligence in machines that are programmed to think and learn like humans. It includes machine learning, natural language processing, computer vision, and robotics.",
			Keywords: []string{"what is ai"},
		},
		{
			Title:    "how does machine learning work",
			Content:  "Machine learning is a subset of AI that enables computers to learn and improve from experience without being explicitly programmed. It uses algorithms to identify patterns in data and make predictions or decisions.",
			Keywords: []string{"how does machine learning work"},
		},
	}
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// NewDefaultProvider 使用内置条目创建知识库。
func NewDefaultProvider() *StaticProvider {
	return NewStaticProvider(DefaultSnippets(), 0)
}

// LoadStaticProvider 从 JSON 或 YAML 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}

	var entries []Snippet
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &entries)
	default:
		err = json.Unmarshal(content, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 返回关键词出现在问题中的条目，保持条目原有顺序。
func (p *StaticProvider) Query(question string) []Snippet {
	if p == nil {
		return nil
	}

	question = strings.ToLower(strings.TrimSpace(question))
	if question == "" {
		return nil
	}

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, question) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(snippet Snippet, question string) bool {
	keywords := snippet.Keywords
	if len(keywords) == 0 && snippet.Title != "" {
		keywords = []string{snippet.Title}
	}
	for _, keyword := range keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(question, normalized) {
			return true
		}
	}
	return false
}

// Ensure StaticProvider 实现 Provider 接口。
var _ Provider = (*StaticProvider)(nil)
