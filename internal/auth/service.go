package auth

import (
	"context"
	"log/slog"
	"strings"
)

// Service resolves static bearer tokens to subjects. Tokens are loaded once
// at startup; the lookup map is read-only afterwards and safe for concurrent
// use.
type Service struct {
	enabled  bool
	subjects map[string]*Subject
	audit    *slog.Logger
}

// ServiceOption customises the service.
type ServiceOption func(*Service)

// WithAuditLogger overrides the audit logger used by the middleware.
func WithAuditLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = logger
	}
}

// NewService builds a token service from the configured static tokens.
// A disabled service accepts every request.
func NewService(enabled bool, tokens []Token, opts ...ServiceOption) *Service {
	s := &Service{
		enabled:  enabled,
		subjects: make(map[string]*Subject, len(tokens)),
	}
	for _, token := range tokens {
		value := strings.TrimSpace(token.Value)
		if value == "" {
			continue
		}
		subject := &Subject{
			Name:        token.Subject,
			Roles:       append([]string(nil), token.Roles...),
			Permissions: permissionsForRoles(token.Roles),
		}
		subject.normalise()
		s.subjects[value] = subject
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Enabled reports whether authentication is enforced.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// AuthenticateRequest validates the Authorization header and returns the
// matching subject.
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	raw := strings.TrimSpace(authorization)
	if raw == "" {
		return nil, ErrMissingToken
	}
	const prefix = "bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return nil, ErrInvalidToken
	}
	value := strings.TrimSpace(raw[len(prefix):])
	subject, ok := s.subjects[value]
	if !ok {
		return nil, ErrInvalidToken
	}
	if subject.Disabled {
		return nil, ErrSubjectRevoked
	}
	return subject.Clone(), nil
}
