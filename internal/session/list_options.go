package session

import (
	"strings"
	"time"

	"AgentFlow/internal/agent"
)

// SortOrder defines how executions are ordered when listing a session.
type SortOrder int

const (
	// SortByStartDesc orders executions by StartTime descending (most recent first).
	SortByStartDesc SortOrder = iota
	// SortByStartAsc orders executions in the order they were run.
	SortByStartAsc
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions controls which executions are returned from a session.
type ListOptions struct {
	Limit        int
	Offset       int
	Statuses     []agent.Status
	StartedSince time.Time
	StartedUntil time.Time
	Order        SortOrder
	Query        string
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Statuses = normalizeStatuses(opts.Statuses)
	if opts.Order != SortByStartAsc {
		opts.Order = SortByStartDesc
	}
	opts.Query = strings.ToLower(strings.TrimSpace(opts.Query))
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of executions returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching executions.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithStatuses filters executions by terminal status.
func WithStatuses(statuses ...agent.Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithStartedSince keeps executions started at or after ts.
func WithStartedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.StartedSince = ts
	}
}

// WithStartedUntil keeps executions started at or before ts.
func WithStartedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.StartedUntil = ts
	}
}

// WithSortOrder changes the returned order.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// WithQuery filters executions whose query or final result contains the text, case-insensitively.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func (opts ListOptions) matches(exec *agent.Execution) bool {
	if len(opts.Statuses) > 0 {
		found := false
		for _, status := range opts.Statuses {
			if exec.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !opts.StartedSince.IsZero() && exec.StartTime.Before(opts.StartedSince) {
		return false
	}
	if !opts.StartedUntil.IsZero() && exec.StartTime.After(opts.StartedUntil) {
		return false
	}
	if opts.Query != "" {
		if !strings.Contains(strings.ToLower(exec.Query), opts.Query) &&
			!strings.Contains(strings.ToLower(exec.FinalResult), opts.Query) {
			return false
		}
	}
	return true
}

func normalizeStatuses(input []agent.Status) []agent.Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[agent.Status]struct{}, len(input))
	result := make([]agent.Status, 0, len(input))
	for _, status := range input {
		if !status.Terminal() {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
