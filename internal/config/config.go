package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	Backend    BackendConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Session    SessionConfig
	Permission PermissionConfig
	Email      EmailConfig
	AI         AIConfig
	Telemetry  TelemetryConfig
}

type AppConfig struct {
	Env     string
	Port    int
	BaseURL string
}

// BackendConfig carries the two connection parameters of the hosted backend.
// Missing values do not fail Load; they degrade every service to "not configured".
type BackendConfig struct {
	// URL is the Postgres connection URL of the backend project.
	URL string
	// ServiceKey signs and verifies session tokens.
	ServiceKey string
}

func (b BackendConfig) Configured() bool {
	return b.URL != "" && b.ServiceKey != ""
}

type RedisConfig struct {
	Host string
	Port int
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MaxLoginAttempts  int
	LoginLockDuration time.Duration
}

type SessionConfig struct {
	// Timeout bounds every remote step of a session operation.
	Timeout time.Duration
}

type PermissionConfig struct {
	// Policy is "granted" or "allowlist".
	Policy          string
	MemberAllowList []string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	FromName     string
	RatePerSec   float64
}

func (e EmailConfig) SMTPConfigured() bool {
	return e.SMTPHost != "" && e.SMTPPort > 0 && e.From != ""
}

type AIConfig struct {
	OpenAIKey   string
	OpenAIModel string
}

type TelemetryConfig struct {
	// TracesExporter is "stdout" or "none".
	TracesExporter string
}

const (
	PolicyGranted   = "granted"
	PolicyAllowList = "allowlist"
)

var defaultMemberAllowList = []string{"dashboard.view", "boards.view", "clients.view", "apps.view"}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_BASE_URL")), "/")

	c.Backend.URL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	c.Backend.ServiceKey = os.Getenv("SUPABASE_SERVICE_KEY")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")

	c.Auth.JWTSecret = c.Backend.ServiceKey
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")
	c.Auth.MaxLoginAttempts, parseErrs = optionalInt(parseErrs, "LOGIN_MAX_ATTEMPTS")
	c.Auth.LoginLockDuration, parseErrs = optionalDuration(parseErrs, "LOGIN_LOCK_DURATION")

	c.Session.Timeout, parseErrs = optionalDuration(parseErrs, "SESSION_TIMEOUT")

	c.Permission.Policy = strings.ToLower(strings.TrimSpace(os.Getenv("PERMISSION_POLICY")))
	c.Permission.MemberAllowList = splitList(os.Getenv("MEMBER_ALLOWLIST"))

	c.Email.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	c.Email.SMTPPort, parseErrs = optionalInt(parseErrs, "SMTP_PORT")
	c.Email.SMTPUsername = strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	c.Email.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	c.Email.From = strings.TrimSpace(os.Getenv("EMAIL_FROM"))
	c.Email.FromName = strings.TrimSpace(os.Getenv("EMAIL_FROM_NAME"))
	if v := strings.TrimSpace(os.Getenv("EMAIL_RATE_PER_SEC")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("EMAIL_RATE_PER_SEC must be a number, got %q", v))
		}
		c.Email.RatePerSec = f
	}

	c.AI.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.AI.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))

	c.Telemetry.TracesExporter = strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and applies defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
	}

	if c.Backend.URL != "" && !strings.HasPrefix(c.Backend.URL, "postgres://") && !strings.HasPrefix(c.Backend.URL, "postgresql://") {
		errs = append(errs, errors.New("SUPABASE_URL must be a postgres:// connection URL"))
	}
	if c.IsProduction() && !c.Backend.Configured() {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required in production"))
	}

	if c.Redis.Enabled() {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = c.Backend.ServiceKey
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.MaxLoginAttempts <= 0 {
		c.Auth.MaxLoginAttempts = 5
	}
	if c.Auth.LoginLockDuration <= 0 {
		c.Auth.LoginLockDuration = 15 * time.Minute
	}

	// Watchdog window is 5s..15s.
	switch {
	case c.Session.Timeout <= 0:
		c.Session.Timeout = 10 * time.Second
	case c.Session.Timeout < 5*time.Second:
		c.Session.Timeout = 5 * time.Second
	case c.Session.Timeout > 15*time.Second:
		c.Session.Timeout = 15 * time.Second
	}

	switch c.Permission.Policy {
	case "":
		c.Permission.Policy = PolicyGranted
	case PolicyGranted, PolicyAllowList:
	default:
		errs = append(errs, fmt.Errorf("PERMISSION_POLICY must be one of granted, allowlist, got %q", c.Permission.Policy))
	}
	if len(c.Permission.MemberAllowList) == 0 {
		c.Permission.MemberAllowList = append([]string(nil), defaultMemberAllowList...)
	}

	if c.Email.SMTPHost != "" && c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.From == "" {
		c.Email.From = "no-reply@localhost"
	}
	if c.Email.RatePerSec <= 0 {
		c.Email.RatePerSec = 5
	}

	if c.AI.OpenAIKey != "" && c.AI.OpenAIModel == "" {
		c.AI.OpenAIModel = "gpt-4o-mini"
	}

	switch c.Telemetry.TracesExporter {
	case "":
		c.Telemetry.TracesExporter = "none"
	case "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER must be one of stdout, none, got %q", c.Telemetry.TracesExporter))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	if !c.Redis.Enabled() {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
