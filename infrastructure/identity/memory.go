package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// Messages match the hosted auth service so clients see the same reasons in
// both modes.
const (
	msgInvalidCredentials = "Invalid login credentials"
	msgAlreadyRegistered  = "User already registered"
	msgEmailTaken         = "A user with this email address has already been registered"
	msgInvalidRefresh     = "Invalid Refresh Token: Refresh Token Not Found"
	msgInvalidJWT         = "invalid JWT: unable to parse or verify signature"
	msgMissingCredentials = "missing email or password"
	msgWeakPassword       = "Password should be at least 6 characters."
)

const (
	minPasswordLength = 6
	defaultTokenTTL   = time.Hour
)

type memoryUser struct {
	id       string
	email    string
	hash     []byte
	role     string
	metadata map[string]interface{}
}

func (u *memoryUser) authUser() ports.AuthUser {
	out := ports.AuthUser{ID: u.id, Email: u.email, Role: u.role}
	out.Username, _ = u.metadata["username"].(string)
	return out
}

// Memory is an in-process identity backend for local runs and tests. It
// issues HS256 tokens that the request middleware validates like hosted
// ones, and creates a profile for every new account the way the hosted
// database's signup trigger does.
type Memory struct {
	mu       sync.Mutex
	byEmail  map[string]*memoryUser
	byID     map[string]*memoryUser
	refresh  map[string]string
	sessions map[string]string
	tokens   *auth.JWTValidator
	profiles ports.ProfileStore
	clock    utils.Clock
	tokenTTL time.Duration
	logger   *zap.Logger
}

var _ ports.Authenticator = (*Memory)(nil)

// MemoryOption configures a Memory authenticator.
type MemoryOption func(*Memory)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.tokenTTL = ttl }
}

// WithMemoryClock sets the clock used for token timestamps.
func WithMemoryClock(clock utils.Clock) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// NewMemory returns an authenticator signing tokens with tokens. profiles may
// be nil, in which case no profile rows are created.
func NewMemory(tokens *auth.JWTValidator, profiles ports.ProfileStore, logger *zap.Logger, opts ...MemoryOption) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memory{
		byEmail:  make(map[string]*memoryUser),
		byID:     make(map[string]*memoryUser),
		refresh:  make(map[string]string),
		sessions: make(map[string]string),
		tokens:   tokens,
		profiles: profiles,
		clock:    utils.RealClock{},
		tokenTTL: defaultTokenTTL,
		logger:   logger.Named("identity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*ports.AuthSession, error) {
	user, err := m.register(ctx, email, password, metadata, msgAlreadyRegistered)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issueLocked(user)
}

func (m *Memory) SignIn(_ context.Context, email, password string) (*ports.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byEmail[normalizeEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword(user.hash, []byte(password)) != nil {
		return nil, pkgerrors.NewAuthError(msgInvalidCredentials).WithDetail("status", 400)
	}
	return m.issueLocked(user)
}

// SignOut ends every session of the token's user, as the hosted service's
// global sign-out does.
func (m *Memory) SignOut(_ context.Context, accessToken string) error {
	claims, err := m.tokens.ValidateToken(accessToken)
	if err != nil {
		return pkgerrors.NewAuthError(msgInvalidJWT).WithCause(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, uid := range m.sessions {
		if uid == claims.UserID {
			delete(m.sessions, sid)
		}
	}
	for rt, sid := range m.refresh {
		if _, live := m.sessions[sid]; !live {
			delete(m.refresh, rt)
		}
	}
	return nil
}

// Refresh rotates refreshToken: the old token stops working.
func (m *Memory) Refresh(_ context.Context, refreshToken string) (*ports.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok := m.refresh[refreshToken]
	if !ok {
		return nil, pkgerrors.NewAuthError(msgInvalidRefresh).WithDetail("status", 400)
	}
	delete(m.refresh, refreshToken)
	uid, live := m.sessions[sid]
	user := m.byID[uid]
	if !live || user == nil {
		return nil, pkgerrors.NewAuthError(msgInvalidRefresh).WithDetail("status", 400)
	}
	delete(m.sessions, sid)
	return m.issueLocked(user)
}

func (m *Memory) GetUser(_ context.Context, accessToken string) (*ports.AuthUser, error) {
	claims, err := m.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, pkgerrors.NewAuthError(msgInvalidJWT).WithCause(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.sessions[claims.SessionID]; !live {
		return nil, pkgerrors.NewAuthError("Session not found")
	}
	user, ok := m.byID[claims.UserID]
	if !ok {
		return nil, pkgerrors.NewAuthError("User not found")
	}
	out := user.authUser()
	return &out, nil
}

func (m *Memory) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (*ports.AuthUser, error) {
	user, err := m.register(ctx, email, password, metadata, msgEmailTaken)
	if err != nil {
		return nil, err
	}
	out := user.authUser()
	return &out, nil
}

func (m *Memory) register(ctx context.Context, email, password string, metadata map[string]interface{}, takenMsg string) (*memoryUser, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, pkgerrors.NewAuthError(msgMissingCredentials).WithDetail("status", 400)
	}
	if len(password) < minPasswordLength {
		return nil, pkgerrors.NewAuthError(msgWeakPassword).WithDetail("status", 422)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to hash password").WithCause(err)
	}

	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	user := &memoryUser{id: uuid.NewString(), email: email, hash: hash, role: "authenticated", metadata: meta}

	m.mu.Lock()
	if _, taken := m.byEmail[email]; taken {
		m.mu.Unlock()
		return nil, pkgerrors.NewAuthError(takenMsg).WithDetail("status", 422)
	}
	m.byEmail[email] = user
	m.byID[user.id] = user
	m.mu.Unlock()

	m.createProfile(ctx, user)
	return user, nil
}

// createProfile inserts the profile row for a new account. The username
// defaults to the local part of the email.
func (m *Memory) createProfile(ctx context.Context, user *memoryUser) {
	if m.profiles == nil {
		return
	}
	username, _ := user.metadata["username"].(string)
	if username == "" {
		username, _, _ = strings.Cut(user.email, "@")
	}
	_, err := m.profiles.Create(auth.WithServiceRole(ctx), &entities.ProfileInsert{ID: user.id, Username: username})
	if err != nil {
		m.logger.Warn("Failed to create profile for new user", zap.String("user_id", user.id), zap.Error(err))
	}
}

func (m *Memory) issueLocked(user *memoryUser) (*ports.AuthSession, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.tokenTTL)
	sid := uuid.NewString()

	token, err := m.tokens.SignToken(&auth.Claims{
		UserID:       user.id,
		Email:        user.email,
		Role:         user.role,
		SessionID:    sid,
		UserMetadata: user.metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to sign access token").WithCause(err)
	}

	refreshToken := uuid.NewString()
	m.sessions[sid] = user.id
	m.refresh[refreshToken] = sid

	return &ports.AuthSession{
		User:         user.authUser(),
		AccessToken:  token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.Truncate(time.Second),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
