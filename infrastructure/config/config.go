// Package config loads the application configuration from defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "graphboard/domain/config"
)

// Store drivers.
const (
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`

	StoreDriver string   `yaml:"store_driver"`
	Supabase    Supabase `yaml:"supabase"`

	Autosave Autosave `yaml:"autosave"`
	Editor   Editor   `yaml:"editor"`

	// Events are published to EventBridge when EventBusName is set.
	EventBusName string `yaml:"event_bus_name"`
	EventSource  string `yaml:"event_source"`
	AWSRegion    string `yaml:"aws_region"`

	CORSAllowedOrigins []string       `yaml:"cors_allowed_origins"`
	RateLimit          RateLimit      `yaml:"rate_limit"`
	CircuitBreaker     CircuitBreaker `yaml:"circuit_breaker"`

	// Observability
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`

	// Lambda configuration
	IsLambda           bool   `yaml:"-"`
	LambdaFunctionName string `yaml:"-"`

	// LocalAdmin is created at startup with the memory driver.
	LocalAdmin LocalAdmin `yaml:"local_admin"`

	// File is the YAML file the configuration was read from, if any.
	File string `yaml:"-"`
}

// Supabase points at the hosted backend.
type Supabase struct {
	URL            string `yaml:"url"`
	AnonKey        string `yaml:"anon_key"`
	ServiceRoleKey string `yaml:"service_role_key"`
	// JWTSecret enables local verification of access tokens. Without it
	// every request asks the auth service who the caller is.
	JWTSecret string `yaml:"jwt_secret"`
	Schema    string `yaml:"schema"`
}

// Autosave tunes the editor's auto-save controller.
type Autosave struct {
	Debounce     time.Duration `yaml:"debounce"`
	SaveTimeout  time.Duration `yaml:"save_timeout"`
	FlushOnClose bool          `yaml:"flush_on_close"`
}

type Editor struct {
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
}

// RateLimit is the per-user request budget.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CircuitBreaker struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

type LocalAdmin struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Username string `yaml:"username"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	rules := domainconfig.DefaultDomainConfig()
	return &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		LogLevel:      "info",
		StoreDriver:   DriverSupabase,
		Supabase:      Supabase{Schema: "public"},
		Autosave: Autosave{
			Debounce:     rules.AutosaveDelay,
			SaveTimeout:  rules.SaveTimeout,
			FlushOnClose: rules.FlushOnClose,
		},
		Editor: Editor{
			SessionIdleTTL: rules.SessionIdleTTL,
			ReapInterval:   time.Minute,
		},
		EventSource:        "graphboard",
		AWSRegion:          "us-west-2",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		RateLimit:          RateLimit{RPS: 10, Burst: 20},
		CircuitBreaker: CircuitBreaker{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// LoadConfig loads configuration from defaults, the YAML file named by
// CONFIG_FILE and environment variables, then validates it.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load is LoadConfig with an explicit file path; an empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)

	c.Supabase.URL = getEnv("SUPABASE_URL", c.Supabase.URL)
	c.Supabase.AnonKey = getEnv("SUPABASE_ANON_KEY", c.Supabase.AnonKey)
	c.Supabase.ServiceRoleKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", c.Supabase.ServiceRoleKey)
	c.Supabase.JWTSecret = getEnv("SUPABASE_JWT_SECRET", c.Supabase.JWTSecret)
	c.Supabase.Schema = getEnv("SUPABASE_SCHEMA", c.Supabase.Schema)

	c.Autosave.Debounce = getEnvDuration("AUTOSAVE_DEBOUNCE", c.Autosave.Debounce)
	c.Autosave.SaveTimeout = getEnvDuration("AUTOSAVE_SAVE_TIMEOUT", c.Autosave.SaveTimeout)
	c.Autosave.FlushOnClose = getEnvBool("AUTOSAVE_FLUSH_ON_CLOSE", c.Autosave.FlushOnClose)
	c.Editor.SessionIdleTTL = getEnvDuration("EDITOR_SESSION_IDLE_TTL", c.Editor.SessionIdleTTL)
	c.Editor.ReapInterval = getEnvDuration("EDITOR_REAP_INTERVAL", c.Editor.ReapInterval)

	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.EventSource = getEnv("EVENT_SOURCE", c.EventSource)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORSAllowedOrigins = splitList(origins)
	}
	c.RateLimit.RPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.CircuitBreaker.MaxRequests = uint32(getEnvInt("CIRCUIT_BREAKER_MAX_REQUESTS", int(c.CircuitBreaker.MaxRequests)))
	c.CircuitBreaker.Interval = getEnvDuration("CIRCUIT_BREAKER_INTERVAL", c.CircuitBreaker.Interval)
	c.CircuitBreaker.Timeout = getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", c.CircuitBreaker.Timeout)
	c.CircuitBreaker.FailureThreshold = getEnvFloat("CIRCUIT_BREAKER_FAILURE_THRESHOLD", c.CircuitBreaker.FailureThreshold)
	c.CircuitBreaker.MinRequests = uint32(getEnvInt("CIRCUIT_BREAKER_MIN_REQUESTS", int(c.CircuitBreaker.MinRequests)))

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)

	c.LambdaFunctionName = getEnv("AWS_LAMBDA_FUNCTION_NAME", c.LambdaFunctionName)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.LambdaFunctionName != "")

	c.LocalAdmin.Email = getEnv("LOCAL_ADMIN_EMAIL", c.LocalAdmin.Email)
	c.LocalAdmin.Password = getEnv("LOCAL_ADMIN_PASSWORD", c.LocalAdmin.Password)
	c.LocalAdmin.Username = getEnv("LOCAL_ADMIN_USERNAME", c.LocalAdmin.Username)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSupabase:
		if c.Supabase.URL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the %s store driver", DriverSupabase)
		}
		if c.Supabase.AnonKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required for the %s store driver", DriverSupabase)
		}
	case DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("the %s store driver cannot be used in production", DriverMemory)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.Autosave.Debounce <= 0 {
		return fmt.Errorf("autosave debounce must be positive")
	}
	if c.Autosave.SaveTimeout <= 0 {
		return fmt.Errorf("autosave save timeout must be positive")
	}
	if c.Editor.SessionIdleTTL <= 0 || c.Editor.ReapInterval <= 0 {
		return fmt.Errorf("editor session idle ttl and reap interval must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.EnableTracing && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when tracing is enabled")
	}
	if (c.LocalAdmin.Email == "") != (c.LocalAdmin.Password == "") {
		return fmt.Errorf("local admin needs both an email and a password")
	}
	return nil
}

// DomainConfig returns the domain rules with the configured editor tuning
// applied.
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	rules := domainconfig.DefaultDomainConfig()
	rules.AutosaveDelay = c.Autosave.Debounce
	rules.SaveTimeout = c.Autosave.SaveTimeout
	rules.FlushOnClose = c.Autosave.FlushOnClose
	rules.SessionIdleTTL = c.Editor.SessionIdleTTL
	return rules
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
