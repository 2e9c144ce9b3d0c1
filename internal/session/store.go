package session

import (
	"sort"
	"strings"
	"sync"

	"AgentFlow/internal/agent"
	xerrors "AgentFlow/internal/errors"
)

// DefaultID 是未指定会话时使用的会话 ID。
const DefaultID = "default"

// Stats 汇总一个会话内的执行情况。
type Stats struct {
	Total         int   `json:"total"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	Steps         int   `json:"steps"`
	FailedSteps   int   `json:"failed_steps"`
	OldestStarted int64 `json:"oldest_started_at,omitempty"`
	NewestStarted int64 `json:"newest_started_at,omitempty"`
}

// Store 在内存中按会话保存执行记忆，追加操作串行化。
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState 持有会话记忆及其执行 ID 索引，追加时原地扩展。
type sessionState struct {
	memory agent.Memory
	ids    map[string]struct{}
}

// NewStore 创建空的会话存储。
func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionState)}
}

// normalizeID 统一会话 ID 的比较形式。
func normalizeID(sessionID string) string {
	return strings.TrimSpace(sessionID)
}

// lookup 在持有读锁时按规范化 ID 查找会话。
func (s *Store) lookup(sessionID string) (*sessionState, bool) {
	state, ok := s.sessions[normalizeID(sessionID)]
	return state, ok
}

// Append 把终态执行追加到会话记忆，返回追加后的记录数。
func (s *Store) Append(sessionID string, exec *agent.Execution) (int, error) {
	sessionID = normalizeID(sessionID)
	if sessionID == "" {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "session id must not be empty")
	}
	if exec == nil {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "execution must not be nil")
	}
	if !exec.Status.Terminal() {
		return 0, xerrors.New(xerrors.CodeConflict, "only finished executions can be stored",
			xerrors.WithMetadata("execution_id", exec.ID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		state = &sessionState{memory: agent.NewMemory(), ids: make(map[string]struct{})}
		s.sessions[sessionID] = state
	}
	if _, dup := state.ids[exec.ID]; dup {
		return 0, xerrors.New(xerrors.CodeConflict, "execution already stored",
			xerrors.WithMetadata("execution_id", exec.ID))
	}
	state.memory.Executions = append(state.memory.Executions, *exec.Clone())
	state.ids[exec.ID] = struct{}{}
	return state.memory.Len(), nil
}

// Snapshot 返回会话记忆的副本，未知会话返回空记忆。
func (s *Store) Snapshot(sessionID string) (agent.Memory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.lookup(sessionID)
	if !ok {
		return agent.NewMemory(), false
	}
	return state.memory.Clone(), true
}

// Get 返回会话内的单条执行。
func (s *Store) Get(sessionID, executionID string) (*agent.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.lookup(sessionID)
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}
	memory := state.memory
	for i := range memory.Executions {
		if memory.Executions[i].ID == executionID {
			return memory.Executions[i].Clone(), nil
		}
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "execution not found",
		xerrors.WithMetadata("session_id", sessionID),
		xerrors.WithMetadata("execution_id", executionID))
}

// List 按过滤条件返回会话内的执行。
func (s *Store) List(sessionID string, opts ...ListOption) ([]agent.Execution, error) {
	options := buildListOptions(opts)

	s.mu.RLock()
	state, ok := s.lookup(sessionID)
	if !ok {
		s.mu.RUnlock()
		return nil, errSessionNotFound(sessionID)
	}
	memory := state.memory
	matched := make([]agent.Execution, 0, len(memory.Executions))
	for i := range memory.Executions {
		if options.matches(&memory.Executions[i]) {
			matched = append(matched, *memory.Executions[i].Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if options.Order == SortByStartAsc {
			return matched[i].StartTime.Before(matched[j].StartTime)
		}
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	if options.Offset >= len(matched) {
		return []agent.Execution{}, nil
	}
	matched = matched[options.Offset:]
	if len(matched) > options.Limit {
		matched = matched[:options.Limit]
	}
	return matched, nil
}

// Stats 统计会话内的执行与步骤。
func (s *Store) Stats(sessionID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.lookup(sessionID)
	if !ok {
		return Stats{}, errSessionNotFound(sessionID)
	}
	memory := state.memory

	stats := Stats{Total: memory.Len()}
	for i := range memory.Executions {
		exec := &memory.Executions[i]
		switch exec.Status {
		case agent.StatusCompleted:
			stats.Completed++
		case agent.StatusFailed:
			stats.Failed++
		}
		stats.Steps += len(exec.Steps)
		for _, step := range exec.Steps {
			if step.Failed() {
				stats.FailedSteps++
			}
		}
		started := exec.StartTime.Unix()
		if stats.OldestStarted == 0 || started < stats.OldestStarted {
			stats.OldestStarted = started
		}
		if started > stats.NewestStarted {
			stats.NewestStarted = started
		}
	}
	return stats, nil
}

// Sessions 返回已知会话 ID，按字典序排列。
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func errSessionNotFound(sessionID string) error {
	return xerrors.New(xerrors.CodeNotFound, "session not found", xerrors.WithMetadata("session_id", sessionID))
}
