package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"AgentFlow/pkg/logger"
)

type credential struct {
	digest  [sha256.Size]byte
	subject Subject
}

// Service 校验静态 API Key。
type Service struct {
	mode        Mode
	credentials []credential
	audit       *slog.Logger
}

// NewService 根据配置构造认证服务，禁用模式下返回放行所有请求的实例。
func NewService(cfg Config) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode}
	if mode == ModeDisabled {
		return svc, nil
	}
	if mode != ModeAPIKey {
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("auth mode %s requires at least one key", mode)
	}
	seen := make(map[string]struct{}, len(cfg.Keys))
	for _, key := range cfg.Keys {
		if _, dup := seen[key.Name]; dup {
			return nil, fmt.Errorf("duplicate api key name %q", key.Name)
		}
		seen[key.Name] = struct{}{}
		svc.credentials = append(svc.credentials, credential{
			digest: sha256.Sum256([]byte(key.Secret)),
			subject: Subject{
				Name:        key.Name,
				Permissions: append([]string(nil), key.Permissions...),
				Disabled:    key.Disabled,
			},
		})
	}
	return svc, nil
}

// WithAuditLogger 替换审计日志实例。
func (s *Service) WithAuditLogger(l *slog.Logger) *Service {
	s.audit = l
	return s
}

func (s *Service) auditLogger() *slog.Logger {
	if s.audit != nil {
		return s.audit
	}
	return logger.Audit()
}

// Enabled 报告是否需要认证。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// Authenticate 解析 Authorization 头或 X-API-Key 头并返回对应的调用方。
func (s *Service) Authenticate(authorization, apiKey string) (*Subject, error) {
	secret := strings.TrimSpace(apiKey)
	if secret == "" {
		scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			secret = strings.TrimSpace(token)
		}
	}
	if secret == "" {
		return nil, ErrMissingToken
	}

	digest := sha256.Sum256([]byte(secret))
	var match *credential
	for i := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], s.credentials[i].digest[:]) == 1 {
			match = &s.credentials[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	subject := match.subject
	subject.permissionsSet = nil
	if subject.Disabled {
		return nil, ErrSubjectRevoked
	}
	return &subject, nil
}
