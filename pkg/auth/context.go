package auth

import (
	"context"
	"errors"
	"time"
)

type contextKey int

const (
	userContextKey contextKey = iota
	serviceRoleKey
)

// ErrNoUserInContext is returned when a request carries no authenticated
// user.
var ErrNoUserInContext = errors.New("no user in context")

// UserContext is the authenticated caller attached to a request.
type UserContext struct {
	UserID      string
	Email       string
	Username    string
	Role        string
	AccessToken string
	ExpiresAt   time.Time
}

// SetUserInContext attaches the caller to ctx.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the caller attached to ctx.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}

// WithServiceRole marks ctx as acting with the backend's service role, which
// bypasses row-level security. Only trusted server paths use it.
func WithServiceRole(ctx context.Context) context.Context {
	return context.WithValue(ctx, serviceRoleKey, true)
}

// IsServiceRole reports whether ctx acts with the service role.
func IsServiceRole(ctx context.Context) bool {
	v, _ := ctx.Value(serviceRoleKey).(bool)
	return v
}
