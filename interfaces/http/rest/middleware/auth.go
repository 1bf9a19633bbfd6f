package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
)

// Authenticator verifies bearer tokens and attaches the caller to the
// request. With a validator, tokens are checked locally against the
// project's JWT secret; without one, every token is confirmed with the
// identity backend.
type Authenticator struct {
	validator *auth.JWTValidator
	authn     ports.Authenticator
	registry  *editor.Registry
	limiter   *auth.KeyedLimiter
	errors    *pkgerrors.ErrorHandler
	logger    *zap.Logger
}

// NewAuthenticator creates the middleware. validator and limiter may be nil.
func NewAuthenticator(
	validator *auth.JWTValidator,
	authn ports.Authenticator,
	registry *editor.Registry,
	limiter *auth.KeyedLimiter,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *Authenticator {
	return &Authenticator{
		validator: validator,
		authn:     authn,
		registry:  registry,
		limiter:   limiter,
		errors:    errs,
		logger:    logger,
	}
}

// Authenticate rejects requests without a valid bearer token. The caller's
// identity is refreshed in the editor registry so auto-save of the user's
// open sessions runs with the newest token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			a.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authorization header"))
			return
		}

		user, err := a.verify(r.Context(), token)
		if err != nil {
			a.logger.Debug("Rejected token",
				zap.String("path", r.URL.Path),
				zap.String("ip", getClientIP(r)),
				zap.Error(err))
			a.errors.Handle(w, r, err)
			return
		}

		if a.limiter != nil {
			if allowed, _ := a.limiter.Allow(r.Context(), user.UserID); !allowed {
				a.errors.Handle(w, r, pkgerrors.NewRateLimitError(a.limiter.Burst(), "burst"))
				return
			}
		}

		if holder := callerHolderFrom(r.Context()); holder != nil {
			holder.userID = user.UserID
		}
		if a.registry != nil {
			a.registry.Identity(session.FromUserContext(user))
		}

		ctx := auth.SetUserInContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(ctx context.Context, token string) (*auth.UserContext, error) {
	if a.validator != nil {
		claims, err := a.validator.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				return nil, pkgerrors.NewUnauthorizedError("Token has expired")
			case errors.Is(err, auth.ErrInvalidSignature):
				return nil, pkgerrors.NewUnauthorizedError("Invalid token signature")
			default:
				return nil, pkgerrors.NewUnauthorizedError("Invalid token")
			}
		}
		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		return &auth.UserContext{
			UserID:      claims.UserID,
			Email:       claims.Email,
			Username:    claims.Username(),
			Role:        claims.Role,
			AccessToken: token,
			ExpiresAt:   expiresAt,
		}, nil
	}

	u, err := a.authn.GetUser(ctx, token)
	if err != nil {
		if pkgerrors.IsAuth(err) {
			return nil, pkgerrors.NewUnauthorizedError("Invalid token").WithCause(err)
		}
		return nil, err
	}
	return &auth.UserContext{
		UserID:      u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        u.Role,
		AccessToken: token,
		ExpiresAt:   auth.TokenExpiry(token),
	}, nil
}

// LimitByIP throttles unauthenticated endpoints per client address.
func LimitByIP(limiter *auth.KeyedLimiter, errs *pkgerrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed, _ := limiter.Allow(r.Context(), "ip:"+getClientIP(r)); !allowed {
				errs.Handle(w, r, pkgerrors.NewRateLimitError(limiter.Burst(), "burst"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// getClientIP extracts the client IP address. chi's RealIP middleware has
// already folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
