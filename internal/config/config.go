package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/marenbeck/gatehouse/internal/models"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	OAuth    OAuthConfig
	WebAuthn WebAuthnConfig
	Panels   []models.Panel
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	BaseURL  string
}

type AuthConfig struct {
	ChallengeSecret    string        // signs the short-lived 2FA challenge token
	SecretKey          string        // 32-byte AES-256 key for TOTP secret encryption, hex
	ChallengeTTL       time.Duration // pending second-factor window
	SessionTTL         time.Duration
	RememberTTL        time.Duration
	OTPExpiry          time.Duration // registration/login OTP lifetime
	TwoFactorOTPExpiry time.Duration // emailed 2FA code lifetime
	MagicLinkExpiry    time.Duration
	PasswordResetTTL   time.Duration
	CleanupInterval    time.Duration
	RecoveryCodeCount  int
	TOTPIssuer         string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

// OAuthProvider holds one provider's client configuration. Endpoint URLs
// are configured rather than hardcoded so providers can be added without a
// code change.
type OAuthProvider struct {
	Name         string   `json:"name"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	TokenURL     string   `json:"token_url"`
	UserInfoURL  string   `json:"userinfo_url"`
	Scopes       []string `json:"scopes"`
	RedirectURL  string   `json:"redirect_url"`
}

type OAuthConfig struct {
	Providers []OAuthProvider
}

type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	challengeSecret := getEnv("CHALLENGE_SECRET", "")
	if challengeSecret == "" {
		return nil, fmt.Errorf("CHALLENGE_SECRET is required")
	}

	secretKey := getEnv("SECRET_KEY", "")
	if len(secretKey) != 64 {
		return nil, fmt.Errorf("SECRET_KEY must be 64 hex characters (32 bytes)")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
			BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		},
		Auth: AuthConfig{
			ChallengeSecret:    challengeSecret,
			SecretKey:          secretKey,
			ChallengeTTL:       getEnvAsDuration("CHALLENGE_TTL", 5*time.Minute),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 2*time.Hour),
			RememberTTL:        getEnvAsDuration("REMEMBER_TTL", 30*24*time.Hour),
			OTPExpiry:          getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			TwoFactorOTPExpiry: getEnvAsDuration("TWO_FACTOR_OTP_EXPIRY", 10*time.Minute),
			MagicLinkExpiry:    getEnvAsDuration("MAGIC_LINK_EXPIRY", 15*time.Minute),
			PasswordResetTTL:   getEnvAsDuration("PASSWORD_RESET_TTL", 1*time.Hour),
			CleanupInterval:    getEnvAsDuration("CODE_CLEANUP_INTERVAL", 1*time.Hour),
			RecoveryCodeCount:  getEnvAsInt("RECOVERY_CODE_COUNT", 8),
			TOTPIssuer:         getEnv("TOTP_ISSUER", "gatehouse"),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@localhost"),
		},
		WebAuthn: WebAuthnConfig{
			RPID:          getEnv("WEBAUTHN_RP_ID", "localhost"),
			RPDisplayName: getEnv("WEBAUTHN_RP_NAME", "gatehouse"),
			RPOrigins:     splitAndTrim(getEnv("WEBAUTHN_ORIGINS", "http://localhost:8080")),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateChallengeSecret(challengeSecret, env); err != nil {
		return nil, err
	}

	panels, err := loadPanels(getEnv("PANELS_JSON", ""))
	if err != nil {
		return nil, err
	}
	cfg.Panels = panels

	providers, err := loadOAuthProviders(getEnv("OAUTH_PROVIDERS_JSON", ""))
	if err != nil {
		return nil, err
	}
	cfg.OAuth.Providers = providers

	return cfg, nil
}

// Panel returns the panel with the given name, falling back to the first
// configured panel when name is empty.
func (c *Config) Panel(name string) (models.Panel, bool) {
	if name == "" && len(c.Panels) > 0 {
		return c.Panels[0], true
	}
	for _, p := range c.Panels {
		if p.Name == name {
			return p, true
		}
	}
	return models.Panel{}, false
}

// loadPanels parses the panel registry from JSON. With no configuration a
// single default panel is used.
func loadPanels(raw string) ([]models.Panel, error) {
	if raw == "" {
		return []models.Panel{{
			Name:             "app",
			TwoFactorEnabled: true,
			LoginField:       "email",
		}}, nil
	}

	var panels []models.Panel
	if err := json.Unmarshal([]byte(raw), &panels); err != nil {
		return nil, fmt.Errorf("invalid PANELS_JSON: %w", err)
	}
	if len(panels) == 0 {
		return nil, fmt.Errorf("PANELS_JSON must define at least one panel")
	}
	for i := range panels {
		if panels[i].Name == "" {
			return nil, fmt.Errorf("panel %d is missing a name", i)
		}
		if panels[i].LoginField == "" {
			panels[i].LoginField = "email"
		}
	}
	return panels, nil
}

func loadOAuthProviders(raw string) ([]OAuthProvider, error) {
	if raw == "" {
		return nil, nil
	}

	var providers []OAuthProvider
	if err := json.Unmarshal([]byte(raw), &providers); err != nil {
		return nil, fmt.Errorf("invalid OAUTH_PROVIDERS_JSON: %w", err)
	}
	for _, p := range providers {
		if p.Name == "" || p.ClientID == "" || p.ClientSecret == "" {
			return nil, fmt.Errorf("oauth provider %q is missing required fields", p.Name)
		}
	}
	return providers, nil
}

// validateChallengeSecret enforces minimum strength for the challenge token
// signing secret.
func validateChallengeSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("CHALLENGE_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("CHALLENGE_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
