package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Site        SiteConfig
	Database    DatabaseConfig
	OAuth       OAuthConfig
	MercadoPago MercadoPagoConfig
	JWT         JWTConfig
	Encryption  EncryptionConfig
	Storage     StorageConfig
	Scheduler   SchedulerConfig
	TLS         TLSConfig
	Firebase    FirebaseConfig
	Telemetry   TelemetryConfig
	Messages    MessagesConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

// SiteConfig holds the public base URL used to build callback and return URLs.
type SiteConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type OAuthConfig struct {
	Google GoogleOAuthConfig
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

type MercadoPagoConfig struct {
	ClientID      string
	ClientSecret  string
	CallbackURL   string
	ReturnURL     string
	RefreshWindow time.Duration
}

// Enabled reports whether processor credentials were provided.
func (c MercadoPagoConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type StorageConfig struct {
	Bucket string
	Dir    string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

// MessagesConfig points at an optional JSON file overriding the embedded
// notification texts.
type MessagesConfig struct {
	File string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
	SampleRatio  float64
}

// Load reads the configuration from the environment. Every malformed or
// missing value is reported, not just the first one.
func Load() (*Config, error) {
	env := &envReader{}

	// Callback URLs are derived from SITE_URL unless explicitly overridden
	siteURL := strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/")
	if u, err := url.Parse(siteURL); err != nil || u.Scheme == "" || u.Host == "" {
		env.fail("SITE_URL must be an absolute URL, got %q", siteURL)
	}
	callback := func(path, overrideEnv string) string {
		return getEnv(overrideEnv, siteURL+path)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: env.list("ALLOWED_HOSTS", ""),
		},
		Site: SiteConfig{
			URL: siteURL,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     env.integer("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "splitpay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OAuth: OAuthConfig{
			Google: GoogleOAuthConfig{
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				CallbackURL:  callback("/api/auth/oauth/callback", "GOOGLE_CALLBACK_URL"),
			},
		},
		MercadoPago: MercadoPagoConfig{
			ClientID:      getEnv("MP_CLIENT_ID", ""),
			ClientSecret:  getEnv("MP_CLIENT_SECRET", ""),
			CallbackURL:   callback("/api/mp/callback", "MP_CALLBACK_URL"),
			ReturnURL:     callback("/api/mp/return", "MP_RETURN_URL"),
			RefreshWindow: env.duration("MP_REFRESH_WINDOW", 168*time.Hour),
		},
		JWT: JWTConfig{
			Secret: env.required("JWT_SECRET"),
		},
		Encryption: EncryptionConfig{
			Key: env.required("ENCRYPTION_KEY"),
		},
		Storage: StorageConfig{
			Bucket: getEnv("STORAGE_BUCKET", ""),
			Dir:    getEnv("STORAGE_DIR", "./data/objects"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: env.list("SCHEDULER_TIMES", "04:00"),
			WorkerCount:   env.integer("SCHEDULER_WORKERS", 2),
			JobDelay:      env.duration("SCHEDULER_JOB_DELAY", time.Second),
			QueueSize:     env.integer("SCHEDULER_QUEUE_SIZE", 100),
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "splitpay-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
			SampleRatio:  env.float("OTEL_SAMPLE_RATIO", 1),
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", ""),
		},
	}

	if k := cfg.Encryption.Key; k != "" && len(k) != 32 {
		env.fail("ENCRYPTION_KEY must be exactly 32 bytes for AES-256, got %d", len(k))
	}
	if (cfg.MercadoPago.ClientID == "") != (cfg.MercadoPago.ClientSecret == "") {
		env.fail("MP_CLIENT_ID and MP_CLIENT_SECRET must be set together")
	}
	if (cfg.OAuth.Google.ClientID == "") != (cfg.OAuth.Google.ClientSecret == "") {
		env.fail("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if cfg.MercadoPago.RefreshWindow <= 0 {
		env.fail("MP_REFRESH_WINDOW must be positive")
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		env.fail("OTEL_SAMPLE_RATIO must be between 0 and 1, got %g", r)
	}
	if cfg.Scheduler.Enabled {
		for _, at := range cfg.Scheduler.ScheduleTimes {
			if _, err := time.Parse("15:04", at); err != nil {
				env.fail("SCHEDULER_TIMES entry %q is not HH:MM", at)
			}
		}
		if cfg.Scheduler.WorkerCount < 1 {
			env.fail("SCHEDULER_WORKERS must be at least 1")
		}
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			env.fail("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			env.fail("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnectionString returns DATABASE_URL when set, otherwise a key/value DSN.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// envReader parses typed values and collects the failures.
type envReader struct {
	errs []error
}

func (e *envReader) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(e.errs...))
}

func (e *envReader) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.fail("%s is required", key)
	}
	return v
}

func (e *envReader) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail("invalid %s: %w", key, err)
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail("invalid %s: %w", key, err)
		return def
	}
	return d
}

func (e *envReader) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail("invalid %s: %w", key, err)
		return def
	}
	return f
}

// list splits a comma-separated variable, dropping blanks.
func (e *envReader) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
