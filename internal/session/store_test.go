package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"AgentFlow/internal/agent"
	xerrors "AgentFlow/internal/errors"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func finished(id, query string, status agent.Status, offset time.Duration, steps ...agent.Step) *agent.Execution {
	start := baseTime.Add(offset)
	end := start.Add(time.Second)
	if steps == nil {
		steps = []agent.Step{}
	}
	return &agent.Execution{
		ID:          id,
		Query:       query,
		Steps:       steps,
		Status:      status,
		StartTime:   start,
		EndTime:     &end,
		FinalResult: "result of " + query,
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	store := NewStore()

	if _, ok := store.Snapshot("s1"); ok {
		t.Fatalf("unknown session should not exist")
	}

	exec := finished("e1", "add 1 and 2", agent.StatusCompleted, 0)
	n, err := store.Append("s1", exec)
	if err != nil || n != 1 {
		t.Fatalf("append: n=%d err=%v", n, err)
	}

	exec.FinalResult = "mutated"
	snapshot, ok := store.Snapshot("s1")
	if !ok || snapshot.Len() != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Executions[0].FinalResult != "result of add 1 and 2" {
		t.Fatalf("stored execution shares state with caller")
	}

	snapshot.Executions[0].Query = "changed"
	again, _ := store.Snapshot("s1")
	if again.Executions[0].Query != "add 1 and 2" {
		t.Fatalf("snapshot shares state with store")
	}
}

func TestAppendValidation(t *testing.T) {
	store := NewStore()

	if _, err := store.Append(" ", finished("e1", "q", agent.StatusCompleted, 0)); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := store.Append("s1", nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	running := finished("e2", "q", agent.StatusRunning, 0)
	if _, err := store.Append("s1", running); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("expected conflict for running execution, got %v", err)
	}

	if _, err := store.Append("s1", finished("e3", "q", agent.StatusCompleted, 0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append("s1", finished("e3", "q", agent.StatusCompleted, 0)); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("expected conflict for duplicate execution, got %v", err)
	}
}

func TestConcurrentAppendsAreSerialised(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Append("shared", finished(fmt.Sprintf("e%d", i), "q", agent.StatusCompleted, time.Duration(i)*time.Second)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	snapshot, _ := store.Snapshot("shared")
	if snapshot.Len() != 50 {
		t.Fatalf("expected 50 executions, got %d", snapshot.Len())
	}
}

func TestListFilters(t *testing.T) {
	store := NewStore()
	fixtures := []*agent.Execution{
		finished("e1", "add 1 and 2", agent.StatusCompleted, 0),
		finished("e2", "translate 'car' into German", agent.StatusCompleted, time.Minute),
		finished("e3", "", agent.StatusFailed, 2*time.Minute),
		finished("e4", "multiply 3 and 4", agent.StatusCompleted, 3*time.Minute),
	}
	for _, exec := range fixtures {
		if _, err := store.Append("s1", exec); err != nil {
			t.Fatalf("append %s: %v", exec.ID, err)
		}
	}

	cases := []struct {
		name string
		opts []ListOption
		want []string
	}{
		{name: "default newest first", want: []string{"e4", "e3", "e2", "e1"}},
		{name: "ascending", opts: []ListOption{WithSortOrder(SortByStartAsc)}, want: []string{"e1", "e2", "e3", "e4"}},
		{name: "failed only", opts: []ListOption{WithStatuses(agent.StatusFailed)}, want: []string{"e3"}},
		{name: "running ignored", opts: []ListOption{WithStatuses(agent.StatusRunning)}, want: []string{"e4", "e3", "e2", "e1"}},
		{name: "query", opts: []ListOption{WithQuery("  GERMAN ")}, want: []string{"e2"}},
		{name: "final result query", opts: []ListOption{WithQuery("result of multiply")}, want: []string{"e4"}},
		{name: "window", opts: []ListOption{WithStartedSince(baseTime.Add(time.Minute)), WithStartedUntil(baseTime.Add(2 * time.Minute))}, want: []string{"e3", "e2"}},
		{name: "paging", opts: []ListOption{WithLimit(2), WithOffset(1)}, want: []string{"e3", "e2"}},
		{name: "offset past end", opts: []ListOption{WithOffset(10)}, want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.List("s1", tc.opts...)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, exec := range got {
				ids = append(ids, exec.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tc.want) {
				t.Fatalf("got %v, want %v", ids, tc.want)
			}
		})
	}

	if _, err := store.List("missing"); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListLimitBounds(t *testing.T) {
	opts := buildListOptions([]ListOption{WithLimit(1000), WithOffset(-5)})
	if opts.Limit != maxListLimit || opts.Offset != 0 {
		t.Fatalf("unexpected bounds: %+v", opts)
	}
	if buildListOptions(nil).Limit != defaultListLimit {
		t.Fatalf("unexpected default limit")
	}
}

func TestGetAndStats(t *testing.T) {
	store := NewStore()
	okStep := agent.Step{ID: "e1-step-1", Completed: true, Result: "answer"}
	badStep := agent.Step{ID: "e1-step-2", Completed: true, ToolCalls: []agent.ToolCall{{ID: "e1-step-2-call-1", Error: "boom"}}}
	if _, err := store.Append("s1", finished("e1", "q1", agent.StatusCompleted, 0, okStep, badStep)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append("s1", finished("e2", "q2", agent.StatusFailed, time.Hour)); err != nil {
		t.Fatalf("append: %v", err)
	}

	exec, err := store.Get("s1", "e1")
	if err != nil || exec.Query != "q1" || len(exec.Steps) != 2 {
		t.Fatalf("unexpected get: %+v %v", exec, err)
	}
	if _, err := store.Get("s1", "nope"); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	stats, err := store.Stats("s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{
		Total:         2,
		Completed:     1,
		Failed:        1,
		Steps:         2,
		FailedSteps:   1,
		OldestStarted: baseTime.Unix(),
		NewestStarted: baseTime.Add(time.Hour).Unix(),
	}
	if stats != want {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if _, err := store.Stats("missing"); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if ids := store.Sessions(); len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("unexpected sessions: %v", ids)
	}
}

func TestSessionIDIsTrimmedOnEveryLookup(t *testing.T) {
	store := NewStore()
	if _, err := store.Append(" s1 ", finished("e1", "q1", agent.StatusCompleted, 0)); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, id := range []string{"s1", "  s1", "s1\t"} {
		if _, ok := store.Snapshot(id); !ok {
			t.Fatalf("snapshot %q: session not found", id)
		}
		if exec, err := store.Get(id, "e1"); err != nil || exec.Query != "q1" {
			t.Fatalf("get %q: %+v %v", id, exec, err)
		}
		if execs, err := store.List(id); err != nil || len(execs) != 1 {
			t.Fatalf("list %q: %d %v", id, len(execs), err)
		}
		if stats, err := store.Stats(id); err != nil || stats.Total != 1 {
			t.Fatalf("stats %q: %+v %v", id, stats, err)
		}
	}
	if ids := store.Sessions(); len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("unexpected sessions: %v", ids)
	}
}

func TestAppendKeepsEarlierSnapshotsStable(t *testing.T) {
	store := NewStore()
	const total = 200
	var early agent.Memory
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("e%d", i)
		n, err := store.Append("s1", finished(id, "q", agent.StatusCompleted, time.Duration(i)*time.Second))
		if err != nil || n != i+1 {
			t.Fatalf("append %s: n=%d err=%v", id, n, err)
		}
		if i == 0 {
			early, _ = store.Snapshot("s1")
		}
	}

	if early.Len() != 1 || early.Executions[0].ID != "e0" {
		t.Fatalf("earlier snapshot changed: %+v", early.Executions)
	}
	snapshot, _ := store.Snapshot("s1")
	if snapshot.Len() != total || snapshot.Executions[total-1].ID != fmt.Sprintf("e%d", total-1) {
		t.Fatalf("unexpected memory length %d", snapshot.Len())
	}
	if _, err := store.Append("s1", finished("e7", "q", agent.StatusCompleted, 0)); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
}
