// Package catcommon provides shared types and context management for the
// planner service: closed enumerations for status, domain and layer, the
// view naming pattern, and request context helpers.
package catcommon

import (
	"context"
)

// ctxKeyType is the type for all context keys in this package.
type ctxKeyType string

const (
	ctxSessionIDKey ctxKeyType = "PlanSessionID"
	ctxRoleKey      ctxKeyType = "PlanRole"
)

// WithSessionID sets the orchestration session ID in the context.
func WithSessionID(ctx context.Context, id SessionID) context.Context {
	return context.WithValue(ctx, ctxSessionIDKey, id)
}

// GetSessionID retrieves the session ID from the context, or "" if unset.
func GetSessionID(ctx context.Context) SessionID {
	if id, ok := ctx.Value(ctxSessionIDKey).(SessionID); ok {
		return id
	}
	return ""
}

// WithRole sets the caller's role in the context.
func WithRole(ctx context.Context, role RoleName) context.Context {
	return context.WithValue(ctx, ctxRoleKey, role)
}

// GetRole retrieves the caller's role from the context, or "" if unset.
func GetRole(ctx context.Context) RoleName {
	if role, ok := ctx.Value(ctxRoleKey).(RoleName); ok {
		return role
	}
	return ""
}
