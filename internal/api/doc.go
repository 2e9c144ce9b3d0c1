// Package api exposes the HTTP interface of AgentFlow: synchronous query
// execution, per-session memory export and browsing, asynchronous task
// submission, health and Prometheus metrics.
package api
