package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		Driver string
		DSN    string
	}
	OIDC struct {
		Issuer       string
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}
	Log struct {
		Level  string
		Format string
	}
	CORS struct {
		AllowedOrigins []string
	}
	Clicks struct {
		Retention time.Duration // 0 keeps clicks forever
	}
	BaseURL         string
	SessionLifetime time.Duration
	InsecureCookies bool
}

// Load reads config from .env, the environment (BIO_ prefix) and an optional
// bio-links.yaml. Only the database settings are required here; callers that
// need OIDC call RequireOIDC.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.SetEnvPrefix("BIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("bio-links")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional config file

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("session.lifetime", "720h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("clicks.retention", "2160h")
	v.SetDefault("base_url", "http://localhost:8080")

	cfg := &Config{}
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.OIDC.Issuer = v.GetString("oidc.issuer")
	cfg.OIDC.ClientID = v.GetString("oidc.client_id")
	cfg.OIDC.ClientSecret = v.GetString("oidc.client_secret")
	cfg.OIDC.RedirectURL = v.GetString("oidc.redirect_url")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.CORS.AllowedOrigins = v.GetStringSlice("cors.allowed_origins")
	cfg.BaseURL = strings.TrimRight(v.GetString("base_url"), "/")
	cfg.InsecureCookies = v.GetBool("insecure_cookies")

	lifetime, err := time.ParseDuration(v.GetString("session.lifetime"))
	if err != nil {
		return nil, fmt.Errorf("invalid BIO_SESSION_LIFETIME: %w", err)
	}
	cfg.SessionLifetime = lifetime

	retention, err := time.ParseDuration(v.GetString("clicks.retention"))
	if err != nil || retention < 0 {
		return nil, fmt.Errorf("invalid BIO_CLICKS_RETENTION: %q", v.GetString("clicks.retention"))
	}
	cfg.Clicks.Retention = retention

	if cfg.DB.Driver == "" {
		return nil, fmt.Errorf("BIO_DB_DRIVER is required (sqlite3, mysql, postgres)")
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("BIO_DB_DSN is required")
	}

	return cfg, nil
}

// RequireOIDC reports the first missing OIDC setting. The serve command needs
// all of them; migrate does not.
func (c *Config) RequireOIDC() error {
	if c.OIDC.Issuer == "" {
		return fmt.Errorf("BIO_OIDC_ISSUER is required")
	}
	if c.OIDC.ClientID == "" {
		return fmt.Errorf("BIO_OIDC_CLIENT_ID is required")
	}
	if c.OIDC.ClientSecret == "" {
		return fmt.Errorf("BIO_OIDC_CLIENT_SECRET is required")
	}
	if c.OIDC.RedirectURL == "" {
		return fmt.Errorf("BIO_OIDC_REDIRECT_URL is required")
	}
	return nil
}
