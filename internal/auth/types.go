package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the authentication subsystem.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSubjectRevoked   = errors.New("subject is disabled")
)

// Well-known permissions enforced by the API middleware.
const (
	PermTasksRead  = "tasks:read"
	PermTasksWrite = "tasks:write"
)

// rolePermissions maps the coarse roles exposed in configuration to the
// fine-grained permissions checked per request.
var rolePermissions = map[string][]string{
	"admin":  {PermTasksRead, PermTasksWrite},
	"reader": {PermTasksRead},
	"writer": {PermTasksWrite},
}

// Token binds a static bearer token to a caller identity.
type Token struct {
	Value   string
	Subject string
	Roles   []string
}

// Subject captures the identity attached to an authenticated request and is
// passed to handlers via context.
type Subject struct {
	Name        string
	Roles       []string
	Permissions []string
	Disabled    bool

	permissionsSet map[string]struct{}
}

// normalise prepares the lookup set for permission checks.
func (s *Subject) normalise() {
	if s == nil {
		return
	}
	if s.permissionsSet == nil {
		s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
		for _, perm := range s.Permissions {
			s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
		}
	}
}

// HasPermission reports whether the subject has the specified permission.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
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

// Clone creates a copy of the subject safe to share across requests.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := &Subject{
		Name:        s.Name,
		Roles:       append([]string(nil), s.Roles...),
		Permissions: append([]string(nil), s.Permissions...),
		Disabled:    s.Disabled,
	}
	clone.normalise()
	return clone
}

// permissionsForRoles expands configured roles into concrete permissions.
// Unknown role names are treated as literal permissions so deployments can
// grant custom scopes without code changes.
func permissionsForRoles(roles []string) []string {
	seen := make(map[string]struct{})
	perms := make([]string, 0, len(roles))
	for _, role := range roles {
		expanded, ok := rolePermissions[strings.ToLower(strings.TrimSpace(role))]
		if !ok {
			expanded = []string{role}
		}
		for _, perm := range expanded {
			key := strings.ToLower(strings.TrimSpace(perm))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			perms = append(perms, key)
		}
	}
	return perms
}
