// Package config loads the AgentFlow runtime configuration from YAML or JSON
// files, fills in defaults relative to the file location and validates the
// result before any component is constructed.
package config
