// Package session holds the identity of the user an editor or request acts
// for. A Session is passed explicitly to whoever needs the identity; there is
// no process-wide current user.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// Identity is an authenticated user.
type Identity struct {
	UserID       string
	Email        string
	Username     string
	Role         string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is when AccessToken stops being accepted. Zero means no
	// known expiry.
	ExpiresAt time.Time
}

// Expired reports whether the identity's token has expired at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Context attaches the identity to ctx so store adapters act on its behalf.
func (i Identity) Context(ctx context.Context) context.Context {
	return auth.SetUserInContext(ctx, &auth.UserContext{
		UserID:      i.UserID,
		Email:       i.Email,
		Username:    i.Username,
		Role:        i.Role,
		AccessToken: i.AccessToken,
		ExpiresAt:   i.ExpiresAt,
	})
}

// FromUserContext converts a request's authenticated caller.
func FromUserContext(u *auth.UserContext) Identity {
	return Identity{
		UserID:      u.UserID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        u.Role,
		AccessToken: u.AccessToken,
		ExpiresAt:   u.ExpiresAt,
	}
}

// Listener is told about every identity change. A nil identity means the
// user signed out or the session expired.
type Listener func(identity *Identity)

// Session tracks the current identity and delegates sign-up, sign-in and
// sign-out to the identity backend.
type Session struct {
	authn  ports.Authenticator
	logger *zap.Logger
	clock  utils.Clock

	mu           sync.Mutex
	identity     *Identity
	expiry       utils.Timer
	listeners    map[int]Listener
	nextListener int
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c utils.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// New creates a signed-out session.
func New(authn ports.Authenticator, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		authn:     authn,
		logger:    logger,
		clock:     utils.RealClock{},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the identity if one is established and not expired.
func (s *Session) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.identity.Expired(s.clock.Now()) {
		return Identity{}, false
	}
	return *s.identity, true
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SignUp registers an account. The returned identity is nil when the
// backend wants the email confirmed before it issues a session.
func (s *Session) SignUp(ctx context.Context, email, password, username string) (*Identity, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || password == "" || username == "" {
		return nil, pkgerrors.NewValidationError("email, password and username are required")
	}

	result, err := s.authn.SignUp(ctx, email, password, map[string]interface{}{"username": username})
	if err != nil {
		s.logger.Info("Sign-up failed", zap.String("email", email), zap.Error(err))
		return nil, asAuthError(err)
	}
	if result.AccessToken == "" {
		s.logger.Info("Sign-up awaiting confirmation", zap.String("userID", result.User.ID))
		return nil, nil
	}

	id := identityFrom(result)
	if id.Username == "" {
		id.Username = username
	}
	s.Establish(id)
	return &id, nil
}

// SignIn authenticates with email and password and establishes the
// identity.
func (s *Session) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Identity{}, pkgerrors.NewValidationError("email and password are required")
	}

	result, err := s.authn.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Info("Sign-in failed", zap.String("email", email), zap.Error(err))
		return Identity{}, asAuthError(err)
	}

	id := identityFrom(result)
	s.Establish(id)
	return id, nil
}

// SignOut revokes the backend session and drops the identity. The identity
// is dropped even when revocation fails; the failure is still reported.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	var token string
	if s.identity != nil {
		token = s.identity.AccessToken
	}
	s.mu.Unlock()

	var err error
	if token != "" {
		if err = s.authn.SignOut(ctx, token); err != nil {
			s.logger.Warn("Sign-out failed at backend", zap.Error(err))
			err = asAuthError(err)
		}
	}
	s.clear()
	return err
}

// Refresh exchanges the refresh token for a new access token.
func (s *Session) Refresh(ctx context.Context) (Identity, error) {
	s.mu.Lock()
	var refresh string
	if s.identity != nil {
		refresh = s.identity.RefreshToken
	}
	s.mu.Unlock()
	if refresh == "" {
		return Identity{}, pkgerrors.NewAuthError("no session to refresh")
	}

	result, err := s.authn.Refresh(ctx, refresh)
	if err != nil {
		return Identity{}, asAuthError(err)
	}
	id := identityFrom(result)
	s.Establish(id)
	return id, nil
}

// Establish makes id the current identity, for instance after a request
// carrying a verified token. Listeners are notified.
func (s *Session) Establish(id Identity) {
	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	copied := id
	s.identity = &copied
	if !id.ExpiresAt.IsZero() {
		wait := id.ExpiresAt.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		token := id.AccessToken
		s.expiry = s.clock.AfterFunc(wait, func() { s.expireToken(token) })
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(&copied)
	}
}

// Expire drops the identity as if its token had expired.
func (s *Session) Expire() {
	s.logger.Info("Session expired")
	s.clear()
}

// Release stops the expiry timer of a session that is no longer used.
// Listeners are not notified.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// expireToken expires the session only if token is still the current one.
func (s *Session) expireToken(token string) {
	s.mu.Lock()
	current := s.identity != nil && s.identity.AccessToken == token
	s.mu.Unlock()
	if current {
		s.Expire()
	}
}

func (s *Session) clear() {
	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	had := s.identity != nil
	s.identity = nil
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if !had {
		return
	}
	for _, l := range listeners {
		l(nil)
	}
}

func (s *Session) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func identityFrom(result *ports.AuthSession) Identity {
	return Identity{
		UserID:       result.User.ID,
		Email:        result.User.Email,
		Username:     result.User.Username,
		Role:         result.User.Role,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	}
}

func asAuthError(err error) error {
	if pkgerrors.IsAuth(err) || pkgerrors.IsValidation(err) {
		return err
	}
	return pkgerrors.NewAuthError(err.Error()).WithCause(err)
}
