package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the authentication subsystem.
var (
	ErrMissingToken     = errors.New("missing api key")
	ErrInvalidToken     = errors.New("invalid api key")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSubjectRevoked   = errors.New("api key is disabled")
)

// Permissions checked by the API.
const (
	PermissionRead       = "read"
	PermissionExecute    = "executions:write"
	PermissionSubmitTask = "tasks:write"
	PermissionAll        = "*"
)

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeAPIKey   Mode = "api_key"
)

// Config configures the authentication service.
type Config struct {
	Mode Mode  `json:"mode" yaml:"mode" validate:"omitempty,oneof=disabled api_key"`
	Keys []Key `json:"keys" yaml:"keys" validate:"required_if=Mode api_key,dive"`
}

// Key is a static credential and the permissions it grants.
type Key struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Secret      string   `json:"secret" yaml:"secret" validate:"required,min=16"`
	Permissions []string `json:"permissions" yaml:"permissions"`
	Disabled    bool     `json:"disabled" yaml:"disabled"`
}

// Subject is the authenticated caller passed to handlers via context.
type Subject struct {
	Name        string
	Permissions []string
	Disabled    bool

	permissionsSet map[string]struct{}
}

func (s *Subject) normalise() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
}

// HasPermission reports whether the subject has the specified permission.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	if _, ok := s.permissionsSet[PermissionAll]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize ensures the subject has all required permissions.
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	if s.Disabled {
		return ErrSubjectRevoked
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}
