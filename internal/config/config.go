// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Entitlement delivery strategies.
const (
	ModePoll   = "poll"
	ModeStream = "stream"
)

// Config holds the CLI configuration.
// Environment variables are parsed with the AQUA_ prefix, e.g. AQUA_API_URL.
type Config struct {
	APIURL    string `envconfig:"API_URL" default:"http://localhost:8000"`
	ChatTopic string `envconfig:"CHAT_TOPIC" default:"general"`

	// Token overrides TokenFile when set.
	Token     string `envconfig:"TOKEN"`
	TokenFile string `envconfig:"TOKEN_FILE" default:"~/.aqua/token"`

	EntitlementMode string        `envconfig:"ENTITLEMENT_MODE" default:"poll"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"0s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	CheckoutSuccessURL string `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:8000/success"`
	CheckoutCancelURL  string `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:8000/pricing"`
	PortalReturnURL    string `envconfig:"PORTAL_RETURN_URL" default:"http://localhost:8000/dashboard"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := envconfig.Process("AQUA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults validates the mode and expands the token file path.
func (c *Config) ResolveDefaults() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return errors.New("AQUA_API_URL is empty")
	}
	switch c.EntitlementMode {
	case ModePoll, ModeStream:
	default:
		return fmt.Errorf("unsupported AQUA_ENTITLEMENT_MODE: %s", c.EntitlementMode)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("AQUA_POLL_INTERVAL must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("AQUA_REQUEST_TIMEOUT must be positive")
	}
	path, err := expandHome(c.TokenFile)
	if err != nil {
		return err
	}
	c.TokenFile = path
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() zerolog.Level {
	return ParseLevel(c.LogLevel)
}

// DevServer holds the development backend configuration.
// Environment variables are parsed with the AQUA_DEV_ prefix.
type DevServer struct {
	HTTPPort   int    `envconfig:"HTTP_PORT" default:"8000"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/devserver.db"`
	JWTSecret  string `envconfig:"JWT_SECRET" default:"aqua-dev-secret"`
	JWTIssuer  string `envconfig:"JWT_ISSUER" default:"aqua-devserver"`
	// TokenTTL bounds tokens minted by the dev-token command and endpoint.
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadDevServer reads an optional .env file and then the environment.
func LoadDevServer() (*DevServer, error) {
	loadDotEnv()

	var cfg DevServer
	if err := envconfig.Process("AQUA_DEV", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("AQUA_DEV_JWT_SECRET is empty")
	}
	return &cfg, nil
}

// HTTPAddr returns the listen address.
func (c *DevServer) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// loadDotEnv populates unset variables from ./.env when present. Existing
// environment variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
