// Package agent contains the execution orchestrator. It turns a free-text
// query into an ordered plan of typed steps, runs each step against the tool
// registry strictly in sequence, isolates per-step failures and assembles the
// execution trace together with its final narrative.
package agent
