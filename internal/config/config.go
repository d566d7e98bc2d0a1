// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting,
// notification pacing, plan quotas, background jobs, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. The storefront
// widget calls the public API from merchant domains, so origins are
// configured rather than hardcoded.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-restock-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// NotifyConfig defines notification delivery and fan-out pacing.
type NotifyConfig struct {
	RecoveryBaseURL string        // public origin recovery links are minted under
	RecoveryLinkTTL time.Duration // recovery link validity window
	BatchSize       int           // waitlist fan-out wave size
	BatchDelay      time.Duration // pause between fan-out waves
	EmailEnabled    bool          // real email delivery vs logged stub
	SMSEnabled      bool          // real SMS delivery vs logged stub
}

// PlanConfig defines monthly notification quotas per tier.
type PlanConfig struct {
	FreeMonthlyLimit int
	ProMonthlyLimit  int
}

// JobsConfig defines the background job queue. When disabled, work that would
// be enqueued runs inline instead.
type JobsConfig struct {
	Enabled          bool          // JOBS_ENABLED
	RedisAddr        string        // JOBS_REDIS_ADDR
	RedisPassword    string        // JOBS_REDIS_PASSWORD
	QueuePollTimeout time.Duration // BRPOP block timeout per poll
	ExpireSweepEvery time.Duration // cadence of the expired-link sweep
	ExpireRetention  time.Duration // how long past expiry links are retained
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath        string // SQLite path
	WebhookSecret string // shared secret for webhook signatures; empty disables the check

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	Notify NotifyConfig
	Plan   PlanConfig
	Jobs   JobsConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "restock.db"),
		WebhookSecret: getenv("WEBHOOK_SHARED_SECRET", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Notifications
		Notify: NotifyConfig{
			RecoveryBaseURL: getenv("RECOVERY_BASE_URL", "http://localhost:8080"),
			RecoveryLinkTTL: getdur("RECOVERY_LINK_TTL", 168*time.Hour),
			BatchSize:       getint("NOTIFY_BATCH_SIZE", 10),
			BatchDelay:      getdur("NOTIFY_BATCH_DELAY", 100*time.Millisecond),
			EmailEnabled:    getbool("EMAIL_ENABLED", false),
			SMSEnabled:      getbool("SMS_ENABLED", false),
		},

		// Plans
		Plan: PlanConfig{
			FreeMonthlyLimit: getint("FREE_MONTHLY_LIMIT", 50),
			ProMonthlyLimit:  getint("PRO_MONTHLY_LIMIT", 10000),
		},

		// Background jobs
		Jobs: JobsConfig{
			Enabled:          getbool("JOBS_ENABLED", false),
			RedisAddr:        getenv("JOBS_REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getenv("JOBS_REDIS_PASSWORD", ""),
			QueuePollTimeout: getdur("JOBS_QUEUE_POLL_TIMEOUT", 5*time.Second),
			ExpireSweepEvery: getdur("JOBS_EXPIRE_SWEEP_EVERY", time.Hour),
			ExpireRetention:  getdur("JOBS_EXPIRE_RETENTION", 720*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-restock-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Notify.RecoveryBaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.Notify.RecoveryBaseURL), "/")

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Notify.RecoveryBaseURL == "" {
		return cfg, errors.New("RECOVERY_BASE_URL must not be empty")
	}
	if cfg.Notify.RecoveryLinkTTL <= 0 {
		return cfg, errors.New("RECOVERY_LINK_TTL must be > 0")
	}
	if cfg.Notify.BatchSize < 1 {
		return cfg, errors.New("NOTIFY_BATCH_SIZE must be >= 1")
	}
	if cfg.Notify.BatchDelay < 0 {
		return cfg, errors.New("NOTIFY_BATCH_DELAY must be >= 0")
	}
	if cfg.Plan.FreeMonthlyLimit < 1 || cfg.Plan.ProMonthlyLimit < 1 {
		return cfg, errors.New("plan monthly limits must be >= 1")
	}
	if cfg.Jobs.Enabled && strings.TrimSpace(cfg.Jobs.RedisAddr) == "" {
		return cfg, errors.New("JOBS_REDIS_ADDR must not be empty when JOBS_ENABLED")
	}
	if cfg.Jobs.QueuePollTimeout <= 0 || cfg.Jobs.ExpireSweepEvery <= 0 || cfg.Jobs.ExpireRetention < 0 {
		return cfg, errors.New("jobs durations must be positive")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
