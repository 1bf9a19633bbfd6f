// Package identity implements ports.Authenticator, either against the hosted
// auth service or in process for local runs.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"graphboard/application/ports"
	pkgerrors "graphboard/pkg/errors"
)

// SupabaseConfig points the authenticator at a hosted project.
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
}

// Supabase delegates every identity operation to the hosted auth service.
type Supabase struct {
	auth   gotrue.Client
	admin  gotrue.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ ports.Authenticator = (*Supabase)(nil)

// NewSupabase builds an authenticator. Without a service role key the admin
// operations fail with an Unavailable error.
func NewSupabase(cfg SupabaseConfig, logger *zap.Logger) (*Supabase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := supa.NewClient(cfg.URL, cfg.AnonKey, nil)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to create auth client").WithCause(err)
	}
	s := &Supabase{auth: client.Auth, logger: logger.Named("identity"), now: time.Now}

	if cfg.ServiceRoleKey != "" {
		adminClient, err := supa.NewClient(cfg.URL, cfg.ServiceRoleKey, nil)
		if err != nil {
			return nil, pkgerrors.NewInternalError("failed to create admin auth client").WithCause(err)
		}
		s.admin = adminClient.Auth.WithToken(cfg.ServiceRoleKey)
	}
	return s, nil
}

func (s *Supabase) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*ports.AuthSession, error) {
	resp, err := call(ctx, func() (*types.SignupResponse, error) {
		return s.auth.Signup(types.SignupRequest{Email: email, Password: password, Data: metadata})
	})
	if err != nil {
		return nil, s.fail("sign up", err)
	}
	out := &ports.AuthSession{User: toAuthUser(resp.User)}
	if resp.Session.AccessToken != "" {
		out = s.toAuthSession(resp.Session)
		if out.User.ID == "" {
			out.User = toAuthUser(resp.User)
		}
	}
	return out, nil
}

func (s *Supabase) SignIn(ctx context.Context, email, password string) (*ports.AuthSession, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return s.auth.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, s.fail("sign in", err)
	}
	return s.toAuthSession(resp.Session), nil
}

func (s *Supabase) SignOut(ctx context.Context, accessToken string) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, s.auth.WithToken(accessToken).Logout()
	})
	if err != nil {
		return s.fail("sign out", err)
	}
	return nil
}

func (s *Supabase) Refresh(ctx context.Context, refreshToken string) (*ports.AuthSession, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return s.auth.RefreshToken(refreshToken)
	})
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	return s.toAuthSession(resp.Session), nil
}

func (s *Supabase) GetUser(ctx context.Context, accessToken string) (*ports.AuthUser, error) {
	resp, err := call(ctx, func() (*types.UserResponse, error) {
		return s.auth.WithToken(accessToken).GetUser()
	})
	if err != nil {
		return nil, s.fail("get user", err)
	}
	user := toAuthUser(resp.User)
	return &user, nil
}

func (s *Supabase) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (*ports.AuthUser, error) {
	if s.admin == nil {
		return nil, pkgerrors.NewUnavailableError("auth admin api")
	}
	resp, err := call(ctx, func() (*types.AdminCreateUserResponse, error) {
		return s.admin.AdminCreateUser(types.AdminCreateUserRequest{
			Email:        email,
			Password:     &password,
			EmailConfirm: true,
			UserMetadata: metadata,
		})
	})
	if err != nil {
		return nil, s.fail("admin create user", err)
	}
	user := toAuthUser(resp.User)
	return &user, nil
}

func (s *Supabase) toAuthSession(session types.Session) *ports.AuthSession {
	expiresAt := time.Unix(session.ExpiresAt, 0)
	if session.ExpiresAt == 0 {
		expiresAt = s.now().Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	return &ports.AuthSession{
		User:         toAuthUser(session.User),
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

func toAuthUser(u types.User) ports.AuthUser {
	out := ports.AuthUser{Email: u.Email, Role: u.Role}
	if u.ID != uuid.Nil {
		out.ID = u.ID.String()
	}
	if name, ok := u.UserMetadata["username"].(string); ok {
		out.Username = name
	}
	return out
}

// fail turns a client error into an AuthError carrying the service's reason.
// Transport failures and cancellations keep their own type.
func (s *Supabase) fail(op string, err error) error {
	if pkgerrors.IsAppError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	reason, status, ok := parseResponseError(err)
	if !ok {
		s.logger.Warn("Auth service unreachable", zap.String("operation", op), zap.Error(err))
		return pkgerrors.NewExternalError("auth", err)
	}
	s.logger.Debug("Auth service rejected request",
		zap.String("operation", op),
		zap.Int("status", status),
		zap.String("reason", reason))
	return pkgerrors.NewAuthError(reason).WithCause(err).WithDetail("status", status)
}

var responseError = regexp.MustCompile(`(?s)^response status code (\d+): (.*)$`)

// parseResponseError extracts the reason from an error reported by the auth
// service. Depending on the endpoint the reason sits in msg,
// error_description, message or error.
func parseResponseError(err error) (reason string, status int, ok bool) {
	m := responseError.FindStringSubmatch(err.Error())
	if m == nil {
		return "", 0, false
	}
	status, _ = strconv.Atoi(m[1])

	var body map[string]interface{}
	if json.Unmarshal([]byte(m[2]), &body) == nil {
		for _, key := range []string{"msg", "error_description", "message", "error"} {
			if v, ok := body[key].(string); ok && v != "" {
				return v, status, true
			}
		}
	}
	reason = strings.TrimSpace(m[2])
	if reason == "" {
		reason = "authentication failed"
	}
	return reason, status, true
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn and gives up when ctx ends first. The auth client has no
// context support, so an abandoned request finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
