package planner

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "AgentFlow/internal/errors"
)

var descriptorCmp = cmp.AllowUnexported(Descriptor{})

func mustTranslation(t *testing.T, text string) Descriptor {
	t.Helper()
	d, err := NewTranslation(text)
	if err != nil {
		t.Fatalf("new translation: %v", err)
	}
	return d
}

func mustCalculation(t *testing.T, op Operation, a, b int64) Descriptor {
	t.Helper()
	d, err := NewCalculation(op, a, b)
	if err != nil {
		t.Fatalf("new calculation: %v", err)
	}
	return d
}

func mustKnowledge(t *testing.T, question string) Descriptor {
	t.Helper()
	d, err := NewKnowledgeQuery(question)
	if err != nil {
		t.Fatalf("new knowledge query: %v", err)
	}
	return d
}

func TestSegment(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "and then with operand conjunction",
			query: "Translate 'Good Morning' into German and then multiply 5 and 6.",
			want:  []string{"Translate 'Good Morning' into German", "multiply 5 and 6."},
		},
		{
			name:  "comma followed by then",
			query: "Add 10 and 20, then translate 'Have a nice day' into German.",
			want:  []string{"Add 10 and 20", "translate 'Have a nice day' into German."},
		},
		{
			name:  "no delimiter",
			query: "  What is the capital of Italy?  ",
			want:  []string{"What is the capital of Italy?"},
		},
		{
			name:  "case insensitive word delimiters",
			query: "hello AND goodbye THEN water",
			want:  []string{"hello", "goodbye", "water"},
		},
		{
			name:  "words containing delimiters are kept",
			query: "the band authentic strand",
			want:  []string{"the band authentic strand"},
		},
		{
			name:  "plain commas and empty pieces",
			query: "one, two,, three ,",
			want:  []string{"one", "two", "three"},
		},
		{
			name:  "blank query",
			query: "   ",
			want:  []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Segment(tc.query)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("unexpected fragments (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSegmentIsDeterministic(t *testing.T) {
	query := "add 1 and 2 and then multiply 3 and 4, then what is the distance to Mars"
	first := Segment(query)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Segment(query)); diff != "" {
			t.Fatalf("segmentation changed between runs:\n%s", diff)
		}
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 fragments, got %d: %q", len(first), first)
	}
}

func TestPlanDocumentedExamples(t *testing.T) {
	cases := []struct {
		query string
		want  []Descriptor
	}{
		{
			query: "Translate 'Good Morning' into German and then multiply 5 and 6.",
			want: []Descriptor{
				mustTranslation(t, "Good Morning"),
				mustCalculation(t, OperationMultiply, 5, 6),
			},
		},
		{
			query: "Add 10 and 20, then translate 'Have a nice day' into German.",
			want: []Descriptor{
				mustCalculation(t, OperationAdd, 10, 20),
				mustTranslation(t, "Have a nice day"),
			},
		},
		{
			query: `Translate "Sunshine" to german, then what is the capital of Italy and the distance between Earth and Mars`,
			want: []Descriptor{
				mustTranslation(t, "Sunshine"),
				mustKnowledge(t, "what is the capital of Italy"),
				mustKnowledge(t, "the distance between Earth"),
			},
		},
	}

	for _, tc := range cases {
		got, err := Plan(tc.query)
		if err != nil {
			t.Fatalf("plan %q: %v", tc.query, err)
		}
		if diff := cmp.Diff(tc.want, got, descriptorCmp); diff != "" {
			t.Fatalf("unexpected plan for %q (-want +got):\n%s", tc.query, diff)
		}
	}
}

func TestClassifyShortFragment(t *testing.T) {
	if _, ok, err := Classify("ok", true); err != nil || ok {
		t.Fatalf("expected short fragment after a produced step to be dropped, ok=%v err=%v", ok, err)
	}

	d, ok, err := Classify("ok", false)
	if err != nil || !ok {
		t.Fatalf("expected fallback step, ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(mustKnowledge(t, "ok"), d, descriptorCmp); diff != "" {
		t.Fatalf("unexpected descriptor:\n%s", diff)
	}

	steps, err := Plan("Translate 'hello' to German and ok")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(steps) != 1 || steps[0].Kind() != KindTranslation {
		t.Fatalf("expected only the translation step, got %v", steps)
	}

	steps, err = Plan("ok")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if diff := cmp.Diff([]Descriptor{mustKnowledge(t, "ok")}, steps, descriptorCmp); diff != "" {
		t.Fatalf("unexpected plan:\n%s", diff)
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	cases := []struct {
		fragment string
		produced bool
		want     Descriptor
		ok       bool
	}{
		{fragment: "translate `Water` into German and add 1 2", want: mustTranslation(t, "Water"), ok: true},
		{fragment: "translate to German please add 3 4", want: mustCalculation(t, OperationAdd, 3, 4), ok: true},
		{fragment: "add 7 then multiply 8 9", want: mustCalculation(t, OperationAdd, 7, 8), ok: true},
		{fragment: "add 7 to multiply", produced: true, want: mustKnowledge(t, "add 7 to multiply"), ok: true},
		{fragment: "Multiply 12 by 3", want: mustCalculation(t, OperationMultiply, 12, 3), ok: true},
		{fragment: "capital?", produced: true, want: mustKnowledge(t, "capital?"), ok: true},
		{fragment: "distance", produced: true, want: mustKnowledge(t, "distance"), ok: true},
		{fragment: "tell me more", produced: true, want: mustKnowledge(t, "tell me more"), ok: true},
		{fragment: "thanks", produced: true, ok: false},
		{fragment: "translate ' ' to german", produced: true, want: mustKnowledge(t, "translate ' ' to german"), ok: true},
	}

	for _, tc := range cases {
		got, ok, err := Classify(tc.fragment, tc.produced)
		if err != nil {
			t.Fatalf("classify %q: %v", tc.fragment, err)
		}
		if ok != tc.ok {
			t.Fatalf("classify %q: ok=%v want %v", tc.fragment, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if diff := cmp.Diff(tc.want, got, descriptorCmp); diff != "" {
			t.Fatalf("classify %q (-want +got):\n%s", tc.fragment, diff)
		}
	}
}

func TestPlanBlankQueryFallsBackToWholeQuery(t *testing.T) {
	for _, query := range []string{"", "   ", " , and "} {
		steps, err := Plan(query)
		if err != nil {
			t.Fatalf("plan %q: %v", query, err)
		}
		if len(steps) != 1 || steps[0].Kind() != KindKnowledgeQuery {
			t.Fatalf("plan %q: expected one knowledge query, got %v", query, steps)
		}
		params, _ := steps[0].Knowledge()
		if params.Question != query {
			t.Fatalf("plan %q: fallback question %q is not the original query", query, params.Question)
		}
	}
}

func TestPlanErrors(t *testing.T) {
	_, err := Plan("add 99999999999999999999 and 1")
	if xerrors.CodeOf(err) != xerrors.CodePlanningFailure {
		t.Fatalf("expected planning failure for overflowing integer, got %v", err)
	}
	var coded *xerrors.Error
	if !errors.As(err, &coded) {
		t.Fatalf("expected coded error")
	}
}

func TestDescriptorConstructors(t *testing.T) {
	if _, err := NewTranslation(" "); err == nil {
		t.Fatalf("expected empty translation text to be rejected")
	}
	if _, err := NewKnowledgeQuery(""); err == nil {
		t.Fatalf("expected empty question to be rejected")
	}
	if _, err := NewCalculation("divide", 1, 2); err == nil {
		t.Fatalf("expected unknown operation to be rejected")
	}

	calc := mustCalculation(t, OperationAdd, 10, 20)
	if calc.Describe() != "Add 10 and 20" {
		t.Fatalf("unexpected description: %q", calc.Describe())
	}
	if _, ok := calc.Translation(); ok {
		t.Fatalf("calculation must not expose translation params")
	}
	want := map[string]any{"operation": "add", "a": int64(10), "b": int64(20)}
	if diff := cmp.Diff(want, calc.Arguments()); diff != "" {
		t.Fatalf("unexpected arguments:\n%s", diff)
	}

	if got := mustCalculation(t, OperationMultiply, 5, 6).Describe(); got != "Multiply 5 and 6" {
		t.Fatalf("unexpected description: %q", got)
	}
	if got := mustTranslation(t, "Good Morning").Describe(); got != `Translate "Good Morning" to German` {
		t.Fatalf("unexpected description: %q", got)
	}
	if got := mustKnowledge(t, "what is ai").Describe(); got != "Answer: what is ai" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestPlanWholeQueryFallback(t *testing.T) {
	query := " , , "
	steps, err := Plan(query)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if diff := cmp.Diff([]Descriptor{mustKnowledge(t, query)}, steps, descriptorCmp); diff != "" {
		t.Fatalf("expected a single knowledge query over the unsplit query:\n%s", diff)
	}
}
