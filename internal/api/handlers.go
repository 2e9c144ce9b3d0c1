package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"AgentFlow/internal/agent"
	xerrors "AgentFlow/internal/errors"
	"AgentFlow/internal/session"
	"AgentFlow/internal/task"
)

const maxBodyBytes = 1 << 20

type executeRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// handleExecute 同步执行查询并把结果追加到会话记忆。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "agent is not initialised"))
		return
	}
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "query must not be empty"))
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = session.DefaultID
	}

	memory, _ := s.sessions.Snapshot(sessionID)
	exec := s.executor.ExecuteQuery(r.Context(), req.Query, memory)
	if _, err := s.sessions.Append(sessionID, exec); err != nil {
		s.logger.Error("append execution", slog.Any("error", err), slog.String("execution_id", exec.ID))
		writeError(w, err)
		return
	}
	w.Header().Set("X-Session-ID", sessionID)
	writeJSON(w, http.StatusOK, exec)
}

// handleMemory 导出会话记忆，download=1 时以附件形式返回。
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	memory, ok := s.sessions.Snapshot(sessionID)
	if !ok {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "session not found", xerrors.WithMetadata("session_id", sessionID)))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "agent-memory-"+sessionID+".json"))
	}
	if err := memory.Export(w); err != nil {
		s.logger.Error("export memory", slog.Any("error", err), slog.String("session_id", sessionID))
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts, err := pagingOptions(query)
	if err != nil {
		writeError(w, err)
		return
	}
	listOpts := []session.ListOption{
		session.WithLimit(opts.limit),
		session.WithOffset(opts.offset),
		session.WithQuery(query.Get("q")),
	}
	if statuses := splitList(query.Get("status")); len(statuses) > 0 {
		converted := make([]agent.Status, 0, len(statuses))
		for _, status := range statuses {
			converted = append(converted, agent.Status(status))
		}
		listOpts = append(listOpts, session.WithStatuses(converted...))
	}
	if strings.EqualFold(query.Get("order"), "asc") {
		listOpts = append(listOpts, session.WithSortOrder(session.SortByStartAsc))
	}

	executions, err := s.sessions.List(r.PathValue("id"), listOpts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleExecutionDetail(w http.ResponseWriter, r *http.Request) {
	exec, err := s.sessions.Get(r.PathValue("id"), r.PathValue("execution"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSubmitTask 创建异步任务并立即返回 202。
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "task service is not enabled"))
		return
	}
	var req task.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+url.PathEscape(created.ID))
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "task service is not enabled"))
		return
	}
	found, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "task service is not enabled"))
		return
	}
	opts, err := taskListOptions(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "task service is not enabled"))
		return
	}
	opts, err := taskListOptions(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.Sessions()),
		"tasks":    s.tasks != nil,
	})
}

type paging struct {
	limit  int
	offset int
}

func pagingOptions(query url.Values) (paging, error) {
	var p paging
	var err error
	if p.limit, err = intParam(query, "limit"); err != nil {
		return p, err
	}
	if p.offset, err = intParam(query, "offset"); err != nil {
		return p, err
	}
	return p, nil
}

func taskListOptions(query url.Values) ([]task.ListOption, error) {
	p, err := pagingOptions(query)
	if err != nil {
		return nil, err
	}
	opts := []task.ListOption{
		task.WithLimit(p.limit),
		task.WithOffset(p.offset),
		task.WithSession(query.Get("session_id")),
		task.WithQuery(query.Get("q")),
	}
	if statuses := splitList(query.Get("status")); len(statuses) > 0 {
		converted := make([]task.Status, 0, len(statuses))
		for _, status := range statuses {
			converted = append(converted, task.Status(status))
		}
		opts = append(opts, task.WithStatuses(converted...))
	}
	if strings.EqualFold(query.Get("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

func intParam(query url.Values, name string) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return value, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}
