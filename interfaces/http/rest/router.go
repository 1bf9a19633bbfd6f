package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/interfaces/http/rest/handlers"
	"graphboard/interfaces/http/rest/middleware"
	"graphboard/pkg/auth"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
)

// readyTimeout bounds the store ping behind /ready.
const readyTimeout = 3 * time.Second

// Handlers groups the endpoint handlers the router mounts.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Graphs   *handlers.GraphHandler
	Sharing  *handlers.SharingHandler
	Contacts *handlers.ContactHandler
	Profiles *handlers.ProfileHandler
	Admin    *handlers.AdminHandler
	Editor   *handlers.EditorHandler
}

// Router creates and configures the HTTP router
type Router struct {
	handlers       Handlers
	authenticator  *middleware.Authenticator
	publicLimiter  *auth.KeyedLimiter
	store          ports.Store
	metrics        *observability.Collector
	errors         *pkgerrors.ErrorHandler
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRouter creates a new router instance. metrics and publicLimiter may be
// nil.
func NewRouter(
	h Handlers,
	authenticator *middleware.Authenticator,
	publicLimiter *auth.KeyedLimiter,
	store ports.Store,
	metrics *observability.Collector,
	errs *pkgerrors.ErrorHandler,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		handlers:       h,
		authenticator:  authenticator,
		publicLimiter:  publicLimiter,
		store:          store,
		metrics:        metrics,
		errors:         errs,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.Handle(w, r, pkgerrors.NewNotFoundError("route"))
	})

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	h := rt.handlers
	authenticate := rt.authenticator.Authenticate

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if rt.publicLimiter != nil {
				r.Use(middleware.LimitByIP(rt.publicLimiter, rt.errors))
			}
			r.Post("/signup", h.Auth.SignUp)
			r.Post("/signin", h.Auth.SignIn)
			r.Post("/refresh", h.Auth.Refresh)
			r.With(authenticate).Post("/signout", h.Auth.SignOut)
			r.With(authenticate).Get("/me", h.Auth.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/graphs", func(r chi.Router) {
				r.Get("/", h.Graphs.ListGraphs)
				r.Post("/", h.Graphs.CreateGraph)
				r.Get("/{graphID}", h.Graphs.GetGraph)
				r.Patch("/{graphID}", h.Graphs.RenameGraph)
				r.Delete("/{graphID}", h.Graphs.DeleteGraph)
				r.Post("/{graphID}/share", h.Graphs.ShareGraph)
			})

			r.Route("/shared", func(r chi.Router) {
				r.Get("/received", h.Sharing.ListReceived)
				r.Get("/sent", h.Sharing.ListSent)
				r.Delete("/{sharedID}", h.Sharing.RemoveShare)
				r.Post("/{sharedID}/open", h.Sharing.OpenShared)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", h.Contacts.ListContacts)
				r.Post("/", h.Contacts.AddContact)
				r.Delete("/{contactID}", h.Contacts.RemoveContact)
			})

			r.Get("/profile", h.Profiles.GetProfile)
			r.Patch("/profile", h.Profiles.UpdateProfile)
			r.Get("/profiles/search", h.Profiles.SearchProfiles)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/status", h.Admin.Status)
				r.Post("/users", h.Admin.CreateUser)
			})

			r.Route("/editor/sessions", func(r chi.Router) {
				r.Post("/", h.Editor.Open)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", h.Editor.Get)
					r.Delete("/", h.Editor.Close)
					r.Post("/nodes", h.Editor.AddNode)
					r.Post("/nodes/changes", h.Editor.NodeChanges)
					r.Post("/edges/changes", h.Editor.EdgeChanges)
					r.Post("/connect", h.Editor.Connect)
					r.Post("/title", h.Editor.SetTitle)
					r.Post("/viewport", h.Editor.SetViewport)
					r.Post("/delete-selected", h.Editor.DeleteSelected)
					r.Post("/clear", h.Editor.Clear)
					r.Post("/sample", h.Editor.Sample)
					r.Post("/save", h.Editor.Save)
				})
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports ready once the store answers.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := rt.store.Ping(ctx); err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		rt.errors.Handle(w, r, pkgerrors.NewUnavailableError("store").WithCause(err))
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
