package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/application/services"
	"graphboard/domain/config"
	"graphboard/domain/core/entities"
	"graphboard/infrastructure/identity"
	"graphboard/infrastructure/persistence/memory"
	"graphboard/interfaces/http/rest/handlers"
	"graphboard/interfaces/http/rest/middleware"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

type testServer struct {
	handler  http.Handler
	store    *memory.Store
	registry *editor.Registry
	metrics  *observability.Collector
}

type serverOption func(*serverConfig)

type serverConfig struct {
	userLimiter *auth.KeyedLimiter
}

func withUserLimiter(l *auth.KeyedLimiter) serverOption {
	return func(c *serverConfig) { c.userLimiter = l }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	var cfg serverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	rules := config.DefaultDomainConfig()
	store := memory.New()
	metrics := observability.NewCollector("test")

	tokens, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: "test-secret"})
	require.NoError(t, err)
	authn := identity.NewMemory(tokens, store.Profiles(), logger)

	// The manual clock keeps debounce timers from firing; saves are
	// requested explicitly.
	clock := utils.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	registry := editor.NewRegistry(store, authn, rules, logger, editor.WithClock(clock))
	t.Cleanup(func() { _ = registry.Shutdown(context.Background()) })

	graphs := services.NewGraphService(store, nil, rules, logger)
	sharing := services.NewSharingService(store, nil, registry, rules, logger)
	contacts := services.NewContactService(store, nil, logger)
	profiles := services.NewProfileService(store, rules, logger)
	admin := services.NewAdminService(store, authn, nil, logger)

	errs := pkgerrors.NewErrorHandler(logger, false)
	authenticator := middleware.NewAuthenticator(nil, authn, registry, cfg.userLimiter, errs, logger)

	router := NewRouter(Handlers{
		Auth:     handlers.NewAuthHandler(authn, registry, errs, logger),
		Graphs:   handlers.NewGraphHandler(graphs, sharing, errs),
		Sharing:  handlers.NewSharingHandler(sharing, errs),
		Contacts: handlers.NewContactHandler(contacts, errs),
		Profiles: handlers.NewProfileHandler(profiles, errs),
		Admin:    handlers.NewAdminHandler(admin, errs),
		Editor:   handlers.NewEditorHandler(registry, errs, logger),
	}, authenticator, nil, store, metrics, errs, []string{"http://localhost:5173"}, logger)

	return &testServer{handler: router.Setup(), store: store, registry: registry, metrics: metrics}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Type    string                 `json:"type"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
	Meta *struct {
		RequestID string `json:"request_id"`
		Count     *int   `json:"count"`
	} `json:"meta"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

type signedUp struct {
	ID    string
	Token string
}

func (s *testServer) signUp(t *testing.T, email, username string) signedUp {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "username": username,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp handlers.SessionResponse
	decodeData(t, env, &resp)
	return signedUp{ID: resp.User.ID, Token: resp.AccessToken}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "garbage token", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodGet, "/api/v1/graphs", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(pkgerrors.ErrorTypeUnauthorized), env.Error.Type)
			require.NotNil(t, env.Meta)
			assert.NotEmpty(t, env.Meta.RequestID)
		})
	}
}

func TestSignUpValidation(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.ErrorTypeValidation), env.Error.Type)
	assert.Contains(t, env.Error.Details, "password")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "a@example.com", "password": "x", "username": "a", "extra": "field",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestSignInAndSignOut(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Invalid login credentials", env.Error.Message)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var sess handlers.SessionResponse
	decodeData(t, env, &sess)
	assert.Equal(t, alice.ID, sess.User.ID)
	assert.NotEmpty(t, sess.RefreshToken)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", sess.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/signout", sess.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", sess.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "signed-out tokens are rejected")
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice@example.com", "alice")

	_, env := s.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	})
	var first handlers.SessionResponse
	decodeData(t, env, &first)

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second handlers.SessionResponse
	decodeData(t, env, &second)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are single use")
}

func TestGraphLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")

	rec, env := s.do(t, http.MethodPost, "/api/v1/graphs", alice.Token, map[string]interface{}{
		"title": "Plan",
		"data":  map[string]interface{}{"nodes": []interface{}{}, "edges": []interface{}{}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	decodeData(t, env, &created)
	assert.Equal(t, "Plan", created.Title)

	rec, env = s.do(t, http.MethodPatch, "/api/v1/graphs/"+created.ID, alice.Token, map[string]string{"title": "Roadmap"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/v1/graphs", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	require.NotNil(t, env.Meta.Count)
	assert.Equal(t, 1, *env.Meta.Count)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/graphs/"+created.ID, alice.Token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/graphs", alice.Token, map[string]interface{}{
		"title": "Broken", "data": map[string]interface{}{"nodes": "nope"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/graphs/"+created.ID, alice.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/v1/graphs/"+created.ID, alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), env.Error.Type)
}

func TestGraphsAreScopedToOwner(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")
	bob := s.signUp(t, "bob@example.com", "bob")

	_, env := s.do(t, http.MethodPost, "/api/v1/graphs", alice.Token, map[string]string{"title": "Private"})
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &created)

	rec, _ := s.do(t, http.MethodGet, "/api/v1/graphs/"+created.ID, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/graphs", bob.Token, nil)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 0, *env.Meta.Count)
}

func TestSharingFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")
	bob := s.signUp(t, "bob@example.com", "bob")

	_, env := s.do(t, http.MethodPost, "/api/v1/graphs", alice.Token, map[string]interface{}{
		"title": "Pipeline",
		"data": map[string]interface{}{
			"nodes": []interface{}{map[string]interface{}{
				"id": "n1", "position": map[string]float64{"x": 1, "y": 2}, "data": map[string]string{"label": "A"},
			}},
			"edges": []interface{}{},
		},
	})
	var graph struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &graph)

	rec, env := s.do(t, http.MethodPost, "/api/v1/graphs/"+graph.ID+"/share", alice.Token, map[string]string{"recipient_id": bob.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "recipient must be a contact")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/contacts", alice.Token, map[string]string{"contact_id": bob.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodPost, "/api/v1/contacts", alice.Token, map[string]string{"contact_id": bob.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/graphs/"+graph.ID+"/share", alice.Token, map[string]string{"recipient_id": bob.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var share struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &share)

	_, env = s.do(t, http.MethodGet, "/api/v1/shared/received", bob.Token, nil)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, *env.Meta.Count)

	_, env = s.do(t, http.MethodGet, "/api/v1/shared/sent", alice.Token, nil)
	assert.Equal(t, 1, *env.Meta.Count)

	rec, env = s.do(t, http.MethodPost, "/api/v1/shared/"+share.ID+"/open", bob.Token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view editor.View
	decodeData(t, env, &view)
	assert.True(t, view.ReadOnly)
	assert.Equal(t, entities.DefaultSharedTitle, view.Title, "the origin graph is not visible to the recipient")
	require.Len(t, view.Nodes, 1)

	rec, env = s.do(t, http.MethodPost, "/api/v1/editor/sessions/"+view.ID+"/clear", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "editor session is read-only", env.Error.Message)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/shared/"+share.ID, bob.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEditorSession(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")
	bob := s.signUp(t, "bob@example.com", "bob")

	rec, env := s.do(t, http.MethodPost, "/api/v1/editor/sessions", alice.Token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view editor.View
	decodeData(t, env, &view)
	assert.Equal(t, editor.SourceNew, view.Source)
	base := "/api/v1/editor/sessions/" + view.ID

	rec, _ = s.do(t, http.MethodGet, base, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "sessions belong to their user")

	rec, env = s.do(t, http.MethodPost, base+"/nodes", alice.Token, map[string]string{"type": "input"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added handlers.AddNodeResponse
	decodeData(t, env, &added)
	assert.Equal(t, "Input 1", added.Node.Label())

	rec, _ = s.do(t, http.MethodPost, base+"/nodes", alice.Token, map[string]string{"type": "diamond"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(t, http.MethodPost, base+"/sample", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, env, &view)
	require.NotEmpty(t, view.Nodes)
	assert.Equal(t, "dirty", view.Status.State.String())

	rec, env = s.do(t, http.MethodPost, base+"/connect", alice.Token, map[string]string{"source": "ghost", "target": view.Nodes[0].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	var connected handlers.ConnectResponse
	decodeData(t, env, &connected)
	assert.False(t, connected.Connected, "connections to missing nodes are dropped")

	rec, _ = s.do(t, http.MethodPost, base+"/title", alice.Token, map[string]string{"title": "Sample"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, base+"/viewport", alice.Token, map[string]float64{"x": 10, "y": 20, "zoom": 1.5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, base+"/save", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, env, &view)
	assert.Equal(t, "clean", view.Status.State.String())
	require.NotEmpty(t, view.GraphID)

	_, env = s.do(t, http.MethodGet, "/api/v1/graphs/"+view.GraphID, alice.Token, nil)
	var stored struct {
		Title string          `json:"title"`
		Data  json.RawMessage `json:"data"`
	}
	decodeData(t, env, &stored)
	assert.Equal(t, "Sample", stored.Title)
	assert.Contains(t, string(stored.Data), `"zoom":1.5`)

	rec, _ = s.do(t, http.MethodDelete, base, alice.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.registry.Len())
}

func TestEditorNodeChanges(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")

	_, env := s.do(t, http.MethodPost, "/api/v1/editor/sessions", alice.Token, nil)
	var view editor.View
	decodeData(t, env, &view)
	base := "/api/v1/editor/sessions/" + view.ID

	_, env = s.do(t, http.MethodPost, base+"/nodes", alice.Token, nil)
	var added handlers.AddNodeResponse
	decodeData(t, env, &added)

	rec, env := s.do(t, http.MethodPost, base+"/nodes/changes", alice.Token, map[string]interface{}{
		"changes": []map[string]interface{}{
			{"type": "position", "id": added.Node.ID, "position": map[string]float64{"x": 5, "y": 6}, "positionAbsolute": map[string]float64{"x": 5, "y": 6}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, env, &view)
	require.Len(t, view.Nodes, 1)
	assert.Equal(t, 5.0, view.Nodes[0].Position.X)

	rec, _ = s.do(t, http.MethodPost, base+"/nodes/changes", alice.Token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "changes are required")
}

func TestAdminCreateUser(t *testing.T) {
	s := newTestServer(t)
	admin := s.signUp(t, "admin@example.com", "admin")
	user := s.signUp(t, "user@example.com", "user")
	s.store.SetAdmin(admin.ID, true)

	body := map[string]string{"email": "new@example.com", "password": "secret123", "username": "newbie"}

	rec, _ := s.do(t, http.MethodPost, "/api/v1/admin/users", user.Token, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/v1/admin/status", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_admin":true}`, string(env.Data))

	rec, env = s.do(t, http.MethodPost, "/api/v1/admin/users", admin.Token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created services.CreatedUser
	decodeData(t, env, &created)
	assert.Equal(t, "newbie", created.Username)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "new@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, rec.Code, "created accounts can sign in at once")
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")
	s.signUp(t, "bob@example.com", "bobby")

	rec, env := s.do(t, http.MethodPatch, "/api/v1/profile", alice.Token, map[string]string{"username": "alice2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, env = s.do(t, http.MethodGet, "/api/v1/profile", alice.Token, nil)
	var profile struct {
		Username string `json:"username"`
	}
	decodeData(t, env, &profile)
	assert.Equal(t, "alice2", profile.Username)

	_, env = s.do(t, http.MethodGet, "/api/v1/profiles/search?q=BOB", alice.Token, nil)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, *env.Meta.Count)

	_, env = s.do(t, http.MethodGet, "/api/v1/profiles/search?q=", alice.Token, nil)
	assert.Equal(t, 0, *env.Meta.Count)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestUserRateLimit(t *testing.T) {
	s := newTestServer(t, withUserLimiter(auth.NewKeyedLimiter(0.001, 2)))
	alice := s.signUp(t, "alice@example.com", "alice")

	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodGet, "/api/v1/graphs", alice.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := s.do(t, http.MethodGet, "/api/v1/graphs", alice.Token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.ErrorTypeRateLimit), env.Error.Type)
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "alice")

	s.do(t, http.MethodGet, "/api/v1/graphs/one", alice.Token, nil)
	s.do(t, http.MethodGet, "/api/v1/graphs/two", alice.Token, nil)

	count := testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET", "/api/v1/graphs/{graphID}", "404"))
	assert.Equal(t, 2.0, count)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec, env := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), env.Error.Type)
}
