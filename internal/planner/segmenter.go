package planner

import (
	"regexp"
	"strings"
)

// delimiterPattern 匹配连接词分隔符。逗号后可以紧跟一个连接词，二者视为同一个分隔符。
var delimiterPattern = regexp.MustCompile(`(?i)\s*,\s*(?:(?:and\s+then|then|and)\s+)?|\s+(?:and\s+then|then|and)\s+`)

// Segment 按连接词把查询拆分为有序的非空片段。
func Segment(query string) []string {
	fragments := make([]string, 0, 4)
	last := 0
	for _, loc := range delimiterPattern.FindAllStringIndex(query, -1) {
		if joinsOperands(query, loc[0], loc[1]) {
			continue
		}
		fragments = appendFragment(fragments, query[last:loc[0]])
		last = loc[1]
	}
	return appendFragment(fragments, query[last:])
}

// joinsOperands 判断分隔符是否只是连接两个数字操作数的 "and"，例如 "multiply 5 and 6"。
func joinsOperands(query string, start, end int) bool {
	if !strings.EqualFold(strings.TrimSpace(query[start:end]), "and") {
		return false
	}
	if start == 0 || end >= len(query) {
		return false
	}
	return isDigit(query[start-1]) && isDigit(query[end])
}

func appendFragment(fragments []string, raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fragments
	}
	return append(fragments, trimmed)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
