package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"graphboard/application/autosave"
	"graphboard/application/editor"
	"graphboard/application/ports"
	"graphboard/application/services"
	domainconfig "graphboard/domain/config"
	"graphboard/infrastructure/config"
	"graphboard/infrastructure/identity"
	"graphboard/infrastructure/messaging"
	"graphboard/infrastructure/persistence/decorators"
	"graphboard/infrastructure/persistence/memory"
	"graphboard/infrastructure/persistence/supabase"
	"graphboard/interfaces/http/rest"
	"graphboard/interfaces/http/rest/middleware"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
)

const (
	metricsNamespace  = "graphboard"
	publisherQueue    = 1000
	flushTimeout      = 10 * time.Second
	bootstrapTimeout  = 10 * time.Second
	devTokenTTL       = time.Hour
	tokenLeeway       = 5 * time.Second
	shutdownSaveGrace = 20 * time.Second
)

// Backend is the store and identity service pair selected by the store
// driver. Validator is set when access tokens can be verified locally.
type Backend struct {
	Store     ports.Store
	Authn     ports.Authenticator
	Validator *auth.JWTValidator

	run func(context.Context)
}

// Limiters are the per-user limiter behind authentication and the per-IP
// limiter in front of the public auth endpoints.
type Limiters struct {
	User   *auth.KeyedLimiter
	Public *auth.KeyedLimiter
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideMetrics returns the Prometheus collector, or nil when metrics are
// disabled.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector(metricsNamespace)
}

// ProvideTracing installs the OTLP tracer provider when tracing is enabled.
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: metricsNamespace,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    !cfg.IsProduction(),
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideErrorHandler creates the HTTP error handler. Development responses
// carry stack traces and causes.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideDomainConfig returns the domain rules with the configured editor
// tuning.
func ProvideDomainConfig(cfg *config.Config) (*domainconfig.DomainConfig, error) {
	rules := cfg.DomainConfig()
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// ProvideBackend connects the store and the identity service for the
// configured driver.
func ProvideBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return provideMemoryBackend(ctx, cfg, logger)
	default:
		return provideSupabaseBackend(cfg, logger)
	}
}

func provideSupabaseBackend(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	store, err := supabase.NewStore(supabase.Config{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
		Schema:         cfg.Supabase.Schema,
	}, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	authn, err := identity.NewSupabase(identity.SupabaseConfig{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
	}, logger)
	if err != nil {
		return nil, err
	}

	b := &Backend{Store: store, Authn: authn, run: store.Run}
	if cfg.Supabase.JWTSecret != "" {
		b.Validator, err = auth.NewJWTValidator(auth.JWTConfig{
			SecretKey: cfg.Supabase.JWTSecret,
			Audience:  "authenticated",
			Leeway:    tokenLeeway,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info("SUPABASE_JWT_SECRET not set, access tokens are verified by the auth service")
	}
	return b, nil
}

// provideMemoryBackend keeps everything in process. Tokens are signed with
// the configured JWT secret, or a random one per run. The middleware still
// asks the authenticator about every token so signed-out tokens are
// rejected.
func provideMemoryBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	secret := cfg.Supabase.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
	}
	tokens, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: secret, Leeway: tokenLeeway})
	if err != nil {
		return nil, err
	}

	store := memory.New()
	authn := identity.NewMemory(tokens, store.Profiles(), logger, identity.WithTokenTTL(devTokenTTL))
	logger.Warn("Using the in-memory store, data is lost on exit")

	if cfg.LocalAdmin.Email != "" {
		if err := bootstrapAdmin(ctx, cfg.LocalAdmin, store, authn, logger); err != nil {
			return nil, err
		}
	}
	return &Backend{Store: store, Authn: authn}, nil
}

func bootstrapAdmin(ctx context.Context, admin config.LocalAdmin, store *memory.Store, authn ports.Authenticator, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	metadata := map[string]interface{}{}
	if admin.Username != "" {
		metadata["username"] = admin.Username
	}
	user, err := authn.AdminCreateUser(ctx, admin.Email, admin.Password, metadata)
	if err != nil {
		return fmt.Errorf("failed to create local admin: %w", err)
	}
	store.SetAdmin(user.ID, true)
	logger.Info("Local admin created", zap.String("userID", user.ID), zap.String("email", user.Email))
	return nil
}

// ProvideStore wraps the backend store with the circuit breaker and
// instrumentation.
func ProvideStore(b *Backend, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) ports.Store {
	breaker := decorators.BreakerConfig{
		Name:             "store",
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		MinRequests:      cfg.CircuitBreaker.MinRequests,
	}
	return decorators.Wrap(b.Store,
		decorators.Instrument(metrics, logger),
		decorators.CircuitBreaker(breaker, logger),
	)
}

// ProvideAuthenticator exposes the backend's identity service.
func ProvideAuthenticator(b *Backend) ports.Authenticator {
	return b.Authn
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvidePublisher publishes domain events to EventBridge when an event bus
// is configured and to the log otherwise. Events are handed over in the
// background; the cleanup flushes the queue.
func ProvidePublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, func(), error) {
	var next ports.EventPublisher
	if cfg.EventBusName != "" {
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		next = messaging.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.EventSource, logger)
	} else {
		next = messaging.NewLogPublisher(logger)
	}

	async := messaging.NewAsyncPublisher(next, publisherQueue, logger)
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := async.Close(ctx); err != nil {
			logger.Warn("Failed to flush domain events", zap.Error(err))
		}
	}
	return async, cleanup, nil
}

// ProvideRegistry creates the editor session registry. The cleanup closes
// every open session.
func ProvideRegistry(store ports.Store, authn ports.Authenticator, rules *domainconfig.DomainConfig, metrics *observability.Collector, logger *zap.Logger) (*editor.Registry, func()) {
	var opts []editor.RegistryOption
	if metrics != nil {
		opts = append(opts, editor.WithMetrics(metrics))
	}
	registry := editor.NewRegistry(store, authn, rules, logger.Named("editor"), opts...)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveGrace)
		defer cancel()
		if err := registry.Shutdown(ctx); err != nil {
			logger.Warn("Editor sessions closed with errors", zap.Error(err))
		}
	}
	return registry, cleanup
}

// ProvideConfigWatcher reloads the configuration file in development and
// applies new auto-save tuning to sessions opened afterwards. It returns nil
// when there is nothing to watch.
func ProvideConfigWatcher(cfg *config.Config, registry *editor.Registry, logger *zap.Logger) (*config.Watcher, func(), error) {
	if cfg.File == "" || !cfg.IsDevelopment() {
		return nil, func() {}, nil
	}
	watcher, err := config.NewWatcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	watcher.Subscribe(func(next *config.Config) {
		registry.SetAutosaveConfig(autosave.Config{
			Debounce:     next.Autosave.Debounce,
			SaveTimeout:  next.Autosave.SaveTimeout,
			FlushOnClose: next.Autosave.FlushOnClose,
		})
	})
	return watcher, watcher.Stop, nil
}

func serviceOptions(metrics *observability.Collector) []services.Option {
	if metrics == nil {
		return nil
	}
	return []services.Option{services.WithMetrics(metrics)}
}

// ProvideGraphService creates the graph service
func ProvideGraphService(store ports.Store, publisher ports.EventPublisher, rules *domainconfig.DomainConfig, metrics *observability.Collector, logger *zap.Logger) *services.GraphService {
	return services.NewGraphService(store, publisher, rules, logger, serviceOptions(metrics)...)
}

// ProvideSharingService creates the sharing service
func ProvideSharingService(store ports.Store, publisher ports.EventPublisher, registry *editor.Registry, rules *domainconfig.DomainConfig, metrics *observability.Collector, logger *zap.Logger) *services.SharingService {
	return services.NewSharingService(store, publisher, registry, rules, logger, serviceOptions(metrics)...)
}

// ProvideContactService creates the contact service
func ProvideContactService(store ports.Store, publisher ports.EventPublisher, metrics *observability.Collector, logger *zap.Logger) *services.ContactService {
	return services.NewContactService(store, publisher, logger, serviceOptions(metrics)...)
}

// ProvideProfileService creates the profile service
func ProvideProfileService(store ports.Store, rules *domainconfig.DomainConfig, metrics *observability.Collector, logger *zap.Logger) *services.ProfileService {
	return services.NewProfileService(store, rules, logger, serviceOptions(metrics)...)
}

// ProvideAdminService creates the admin service
func ProvideAdminService(store ports.Store, authn ports.Authenticator, publisher ports.EventPublisher, metrics *observability.Collector, logger *zap.Logger) *services.AdminService {
	return services.NewAdminService(store, authn, publisher, logger, serviceOptions(metrics)...)
}

// ProvideLimiters creates the request rate limiters. Unauthenticated
// callers share the per-user budget, keyed by client IP.
func ProvideLimiters(cfg *config.Config) *Limiters {
	return &Limiters{
		User:   auth.NewKeyedLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Public: auth.NewKeyedLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

// ProvideAuthMiddleware creates the authentication middleware.
func ProvideAuthMiddleware(b *Backend, registry *editor.Registry, limiters *Limiters, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *middleware.Authenticator {
	return middleware.NewAuthenticator(b.Validator, b.Authn, registry, limiters.User, errs, logger)
}

// ProvideRouter creates the HTTP router.
func ProvideRouter(
	h rest.Handlers,
	authenticator *middleware.Authenticator,
	limiters *Limiters,
	store ports.Store,
	metrics *observability.Collector,
	errs *pkgerrors.ErrorHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(h, authenticator, limiters.Public, store, metrics, errs, cfg.CORSAllowedOrigins, logger)
}
