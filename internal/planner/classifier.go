package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	xerrors "AgentFlow/internal/errors"
)

var (
	quotedPattern  = regexp.MustCompile("['\"`]([^'\"`]+)['\"`]")
	integerPattern = regexp.MustCompile(`\d+`)
)

// calculationRules 按优先级排列。
var calculationRules = []struct {
	keyword   string
	operation Operation
}{
	{keyword: "add", operation: OperationAdd},
	{keyword: "multiply", operation: OperationMultiply},
}

// fallbackMinLength 以上长度的未识别片段仍会作为知识问答保留。
const fallbackMinLength = 10

// Plan 将查询拆分并分类为有序的步骤序列。
func Plan(query string) ([]Descriptor, error) {
	steps := make([]Descriptor, 0, 4)
	for _, fragment := range Segment(query) {
		descriptor, ok, err := Classify(fragment, len(steps) > 0)
		if err != nil {
			return nil, err
		}
		if ok {
			steps = append(steps, descriptor)
		}
	}

	// 所有片段都被丢弃时（包括空查询），整条查询原样作为一个知识问答。
	if len(steps) == 0 {
		steps = append(steps, wholeQuery(query))
	}
	return steps, nil
}

// Classify 按规则顺序对单个片段分类，首个命中的规则生效。
// produced 表示此前的片段是否已经产生过步骤。
func Classify(fragment string, produced bool) (Descriptor, bool, error) {
	fragment = strings.TrimSpace(fragment)
	lower := strings.ToLower(fragment)

	if strings.Contains(lower, "translate") && strings.Contains(lower, "german") {
		if match := quotedPattern.FindStringSubmatch(fragment); match != nil && strings.TrimSpace(match[1]) != "" {
			d, err := NewTranslation(match[1])
			return d, err == nil, err
		}
	}

	for _, rule := range calculationRules {
		if !strings.Contains(lower, rule.keyword) {
			continue
		}
		a, b, ok, err := firstTwoIntegers(fragment)
		if err != nil {
			return Descriptor{}, false, err
		}
		if ok {
			d, err := NewCalculation(rule.operation, a, b)
			return d, err == nil, err
		}
	}

	// capital 与 distance 类问题、首个片段以及足够长的片段都交给知识问答。
	if strings.Contains(lower, "capital") || strings.Contains(lower, "distance") ||
		!produced || utf8.RuneCountInString(fragment) > fallbackMinLength {
		d, err := NewKnowledgeQuery(fragment)
		return d, err == nil, err
	}

	return Descriptor{}, false, nil
}

// firstTwoIntegers 提取从左到右的前两个十进制整数。
func firstTwoIntegers(fragment string) (int64, int64, bool, error) {
	numbers := integerPattern.FindAllString(fragment, 2)
	if len(numbers) < 2 {
		return 0, 0, false, nil
	}
	a, err := parseInteger(numbers[0])
	if err != nil {
		return 0, 0, false, err
	}
	b, err := parseInteger(numbers[1])
	if err != nil {
		return 0, 0, false, err
	}
	return a, b, true, nil
}

func parseInteger(raw string) (int64, error) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodePlanningFailure, err, fmt.Sprintf("cannot parse integer %s", raw))
	}
	return value, nil
}

// wholeQuery 构造整条查询的兜底问答，问题可以为空。
func wholeQuery(query string) Descriptor {
	return Descriptor{kind: KindKnowledgeQuery, knowledge: KnowledgeParams{Question: query}}
}
