package tools

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	targetLanguage  = "German"
	missingNote     = "Translation not available in demo dictionary"
	fallbackPattern = "[German translation of: %s]"
)

// DictionaryEntry 是一条英德对照。
type DictionaryEntry struct {
	English string `yaml:"english"`
	German  string `yaml:"german"`
}

// Dictionary 是有序的演示词典，部分匹配时按条目顺序取第一个命中项。
type Dictionary struct {
	entries []DictionaryEntry
	exact   map[string]string
}

// NewDictionary 根据条目构造词典，英文键不区分大小写。
func NewDictionary(entries []DictionaryEntry) *Dictionary {
	d := &Dictionary{
		entries: make([]DictionaryEntry, 0, len(entries)),
		exact:   make(map[string]string, len(entries)),
	}
	for _, entry := range entries {
		key := strings.ToLower(strings.TrimSpace(entry.English))
		if key == "" {
			continue
		}
		if _, dup := d.exact[key]; dup {
			continue
		}
		d.exact[key] = entry.German
		d.entries = append(d.entries, DictionaryEntry{English: key, German: entry.German})
	}
	return d
}

// DefaultDictionary 返回内置的演示词典。
func DefaultDictionary() *Dictionary {
	return NewDictionary([]DictionaryEntry{
		{English: "good morning", German: "Guten Morgen"},
		{English: "have a nice day", German: "Hab einen schönen Tag"},
		{English: "sunshine", German: "Sonnenschein"},
		{English: "hello", German: "Hallo"},
		{English: "goodbye", German: "Auf Wiedersehen"},
		{English: "thank you", German: "Danke"},
		{English: "please", German: "Bitte"},
		{English: "yes", German: "Ja"},
		{English: "no", German: "Nein"},
		{English: "water", German: "Wasser"},
		{English: "food", German: "Essen"},
		{English: "house", German: "Haus"},
		{English: "car", German: "Auto"},
		{English: "book", German: "Buch"},
		{English: "computer", German: "Computer"},
		{English: "phone", German: "Telefon"},
		{English: "music", German: "Musik"},
		{English: "love", German: "Liebe"},
		{English: "friend", German: "Freund"},
	})
}

// LoadDictionary 从 YAML 文件读取词典条目。
func LoadDictionary(path string) (*Dictionary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取词典文件失败: %w", err)
	}
	var entries []DictionaryEntry
	if err := yaml.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("解析词典文件失败: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("词典文件 %s 没有任何条目", path)
	}
	return NewDictionary(entries), nil
}

// Len 返回条目数量。
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Translate 先整句匹配，再替换第一个出现的短语，最后回退到占位译文。
func (d *Dictionary) Translate(text string) Translation {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if d != nil {
		if german, ok := d.exact[normalized]; ok {
			return Translation{Original: text, Translated: german, Language: targetLanguage}
		}
		for _, entry := range d.entries {
			if strings.Contains(normalized, entry.English) {
				return Translation{
					Original:   text,
					Translated: strings.Replace(normalized, entry.English, entry.German, 1),
					Language:   targetLanguage,
				}
			}
		}
	}

	return Translation{
		Original:   text,
		Translated: fmt.Sprintf(fallbackPattern, text),
		Language:   targetLanguage,
		Note:       missingNote,
	}
}
