package ports

import (
	"context"
	"time"

	"graphboard/domain/events"
)

// AuthUser is an account as reported by the identity backend.
type AuthUser struct {
	ID       string
	Email    string
	Username string
	Role     string
}

// AuthSession is the result of a successful sign-in. AccessToken is empty
// when the backend requires email confirmation before issuing a session.
type AuthSession struct {
	User         AuthUser
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticator delegates identity operations to the hosted auth service.
// Failures are AuthErrors carrying the backend's reason verbatim.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*AuthSession, error)
	GetUser(ctx context.Context, accessToken string) (*AuthUser, error)

	// AdminCreateUser creates a confirmed account with service-role rights.
	AdminCreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (*AuthUser, error)
}

// EventPublisher ships domain events to an external bus.
type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.DomainEvent) error
}
