// Package supabase stores records in the hosted Postgres database through
// its PostgREST API. Requests carry the caller's access token, so the
// database's row-level security policies decide what each caller sees.
package supabase

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
)

// Config holds the hosted project's coordinates.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Schema         string

	// ClientTTL bounds how long a per-token client is reused.
	ClientTTL time.Duration
	// MaxClients caps the number of cached per-token clients.
	MaxClients int
}

// clients hands out backend clients acting for the caller in a context.
type clients struct {
	cfg     Config
	anon    *supa.Client
	service *supa.Client
	cache   *clientCache
	logger  *zap.Logger
}

func newClients(cfg Config, logger *zap.Logger) (*clients, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, pkgerrors.NewValidationError("supabase url and anon key are required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = 10 * time.Minute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 1024
	}

	c := &clients{cfg: cfg, cache: newClientCache(cfg.ClientTTL, cfg.MaxClients), logger: logger}

	var err error
	if c.anon, err = c.build(cfg.AnonKey, ""); err != nil {
		return nil, err
	}
	if cfg.ServiceRoleKey != "" {
		if c.service, err = c.build(cfg.ServiceRoleKey, ""); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *clients) build(key, token string) (*supa.Client, error) {
	opts := &supa.ClientOptions{Schema: c.cfg.Schema}
	if token != "" {
		opts.Headers = map[string]string{"Authorization": "Bearer " + token}
	}
	client, err := supa.NewClient(c.cfg.URL, key, opts)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to create supabase client").WithCause(err)
	}
	return client, nil
}

// forContext returns the client acting for ctx's caller: the service role
// when ctx is marked with it, the caller's token when there is one, and the
// anonymous role otherwise.
func (c *clients) forContext(ctx context.Context) (*supa.Client, error) {
	if auth.IsServiceRole(ctx) {
		if c.service == nil {
			return nil, pkgerrors.NewUnavailableError("supabase service role")
		}
		return c.service, nil
	}

	user, err := auth.GetUserFromContext(ctx)
	if err != nil || user.AccessToken == "" {
		return c.anon, nil
	}
	if client, ok := c.cache.get(user.AccessToken); ok {
		return client, nil
	}
	client, err := c.build(c.cfg.AnonKey, user.AccessToken)
	if err != nil {
		return nil, err
	}
	c.cache.set(user.AccessToken, client, user.ExpiresAt)
	c.logger.Debug("Created supabase client for caller", zap.String("userID", user.UserID))
	return client, nil
}

// PostgREST reports failures as "(CODE) message".
var postgrestError = regexp.MustCompile(`(?s)^\(([^)]*)\)\s*(.*)$`)

// codeNoRows is returned for a single-object request that matched no row.
const codeNoRows = "PGRST116"

// translate maps a backend failure onto the store's error types.
func translate(resource, op string, err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.IsAppError(err) {
		return err
	}

	code, message := "", err.Error()
	if m := postgrestError.FindStringSubmatch(message); m != nil {
		code, message = m[1], m[2]
	}
	if code == codeNoRows {
		return pkgerrors.NewNotFoundError(resource)
	}

	appErr := pkgerrors.NewPersistenceError(op+" "+resource, err)
	if code != "" {
		appErr = appErr.WithCode(code)
	}
	return appErr.WithDetail("message", strings.TrimSpace(message))
}

// call runs fn, giving up when ctx is done. The PostgREST client takes no
// context, so an abandoned request still completes in the background.
func call[T any](ctx context.Context, resource, op string, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, translate(resource, op, r.err)
	case <-ctx.Done():
		var zero T
		return zero, pkgerrors.NewPersistenceError(op+" "+resource, ctx.Err())
	}
}

// countRows reports how many rows a representation response holds.
func countRows(body []byte) (int, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
