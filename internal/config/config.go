package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	BackendURL string `yaml:"backend_url" env:"BACKEND_URL" env-required:"true"`

	// Identity provider
	IdentityAPIKey    string `yaml:"identity_api_key"    env:"IDENTITY_API_KEY"    env-required:"true"`
	IdentityProjectID string `yaml:"identity_project_id" env:"IDENTITY_PROJECT_ID" env-required:"true"`
	IdentityBaseURL   string `yaml:"identity_base_url"   env:"IDENTITY_BASE_URL"   env-default:"https://identitytoolkit.googleapis.com/v1"`
	IdentityTokenURL  string `yaml:"identity_token_url"  env:"IDENTITY_TOKEN_URL"  env-default:"https://securetoken.googleapis.com/v1/token"`
	IdentityJWKSURL   string `yaml:"identity_jwks_url"   env:"IDENTITY_JWKS_URL"   env-default:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`
	IdentityIssuer    string `yaml:"identity_issuer"     env:"IDENTITY_ISSUER"`
	IdentityDevSecret string `yaml:"identity_dev_secret" env:"IDENTITY_DEV_SECRET"`

	// Database (未設定の場合セッションはメモリに保持する)
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	// Session
	SessionMaxAge int           `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"86400"`
	GateWait      time.Duration `yaml:"gate_wait"       env:"GATE_WAIT"       env-default:"1500ms"`

	// Rate Limit
	RateLimitGeneral int `yaml:"rate_limit_general" env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitAuth    int `yaml:"rate_limit_auth"    env:"RATE_LIMIT_AUTH"    env-default:"10"`

	// Cleanup
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" env-default:"1h"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Server
	ServerPort string `yaml:"server_port" env:"SERVER_PORT" env-default:"8080"`
	BaseURL    string `yaml:"base_url"    env:"BASE_URL"    env-default:"http://localhost:8080"`

	// Cookie
	CookieSecure bool   `yaml:"-" env:"-"`
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
}

// Load は設定を読み込む。
// CONFIG_PATH が指定されていればそのファイル(YAML / .env)を読み、環境変数で上書きする。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if cfg.IdentityIssuer == "" {
		cfg.IdentityIssuer = "https://securetoken.google.com/" + cfg.IdentityProjectID
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate は値の範囲を検証する。
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		errs = append(errs, fmt.Errorf("BACKEND_URL must be an http(s) URL: %q", c.BackendURL))
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", c.SessionMaxAge))
	}
	if c.GateWait <= 0 {
		errs = append(errs, fmt.Errorf("GATE_WAIT must be positive: %s", c.GateWait))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GENERAL and RATE_LIMIT_AUTH must be positive"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("CLEANUP_INTERVAL must be positive: %s", c.CleanupInterval))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// UsesDatabase はセッションをPostgreSQLに保存するかどうかを返す。
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}
