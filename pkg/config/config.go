package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AuthzMode selects the authorization strategy used for every request.
type AuthzMode string

const (
	// AuthzModeEmail grants admin access to identities whose email claim is
	// in the admin email list.
	AuthzModeEmail AuthzMode = "email"
	// AuthzModeGroups grants admin access to identities whose group claim
	// intersects the admin group list.
	AuthzModeGroups AuthzMode = "groups"
	// AuthzModeOPA delegates every decision to an external policy engine.
	AuthzModeOPA AuthzMode = "opa"
)

// TrustedIDP describes a trusted identity provider and the client credentials
// used for token exchange against it. Loaded from the optional config file.
type TrustedIDP struct {
	Issuer       string `mapstructure:"issuer" validate:"required,url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`

	// Authentication / authorization.
	TrustedIssuers  []string      `mapstructure:"TRUSTED_ISSUERS" validate:"required,min=1,dive,url"`
	TrustedIDPs     []TrustedIDP  `mapstructure:"trusted_idps" validate:"dive"`
	IDPTimeout      time.Duration `mapstructure:"IDP_TIMEOUT" validate:"required"`
	AuthzMode       AuthzMode     `mapstructure:"AUTHZ_MODE" validate:"required,oneof=email groups opa"`
	AdminEmailList  []string      `mapstructure:"ADMIN_EMAIL_LIST" validate:"dive,email"`
	AdminGroupList  []string      `mapstructure:"ADMIN_GROUP_LIST"`
	AdminGroupClaim string        `mapstructure:"ADMIN_GROUP_CLAIM"`
	OPAAuthzURL     string        `mapstructure:"OPA_AUTHZ_URL" validate:"required_if=AuthzMode opa,omitempty,url"`
	OPATimeout      time.Duration `mapstructure:"OPA_TIMEOUT" validate:"required"`

	// Deployment-creation handoff queue (asynq over Redis).
	RedisAddr        string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword    string `mapstructure:"REDIS_PASSWORD"`
	AsynqConcurrency int    `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	// Secrets vault.
	VaultEnable        bool   `mapstructure:"VAULT_ENABLE"`
	VaultURL           string `mapstructure:"VAULT_URL" validate:"required_if=VaultEnable true,omitempty,url"`
	VaultRole          string `mapstructure:"VAULT_ROLE"`
	VaultMountPoint    string `mapstructure:"VAULT_MOUNT_POINT"`
	VaultBoundAudience string `mapstructure:"VAULT_BOUND_AUDIENCE"`
	VaultTokenTTL      int    `mapstructure:"VAULT_TOKEN_TTL" validate:"gte=0"`
	VaultTokenPeriod   int    `mapstructure:"VAULT_TOKEN_PERIOD" validate:"gte=0"`
	VaultReadPolicy    string `mapstructure:"VAULT_READ_POLICY"`
	VaultWritePolicy   string `mapstructure:"VAULT_WRITE_POLICY"`
	VaultDeletePolicy  string `mapstructure:"VAULT_DELETE_POLICY"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// envKeys are the environment variables bound without prefix.
var envKeys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_URL",
	"TRUSTED_ISSUERS",
	"IDP_TIMEOUT",
	"AUTHZ_MODE",
	"ADMIN_EMAIL_LIST",
	"ADMIN_GROUP_LIST",
	"ADMIN_GROUP_CLAIM",
	"OPA_AUTHZ_URL",
	"OPA_TIMEOUT",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"ASYNQ_CONCURRENCY",
	"VAULT_ENABLE",
	"VAULT_URL",
	"VAULT_ROLE",
	"VAULT_MOUNT_POINT",
	"VAULT_BOUND_AUDIENCE",
	"VAULT_TOKEN_TTL",
	"VAULT_TOKEN_PERIOD",
	"VAULT_READ_POLICY",
	"VAULT_WRITE_POLICY",
	"VAULT_DELETE_POLICY",
	"GOMAXPROCS",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchestrator")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8000")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("IDP_TIMEOUT", "5s")
	v.SetDefault("AUTHZ_MODE", string(AuthzModeEmail))
	v.SetDefault("ADMIN_GROUP_CLAIM", "groups")
	v.SetDefault("OPA_TIMEOUT", "5s")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("VAULT_MOUNT_POINT", "secrets")
	v.SetDefault("VAULT_TOKEN_TTL", 3600)
	v.SetDefault("VAULT_TOKEN_PERIOD", 3600)
	v.SetDefault("GOMAXPROCS", 0)

	// Optional config file (trusted_idps live here)
	_ = v.ReadInConfig()

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Duration and list values may come as plain strings from the env.
	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"IDP_TIMEOUT":      &c.IDPTimeout,
		"OPA_TIMEOUT":      &c.OPATimeout,
	} {
		if s := v.GetString(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	c.TrustedIssuers = splitList(v.GetString("TRUSTED_ISSUERS"), c.TrustedIssuers)
	c.AdminEmailList = splitList(v.GetString("ADMIN_EMAIL_LIST"), c.AdminEmailList)
	c.AdminGroupList = splitList(v.GetString("ADMIN_GROUP_LIST"), c.AdminGroupList)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// splitList parses a comma-separated env value, falling back to the value
// already unmarshalled from the config file.
func splitList(raw string, fallback []string) []string {
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// IDPForIssuer returns the trusted identity provider entry matching issuer.
func (c *Config) IDPForIssuer(issuer string) (TrustedIDP, bool) {
	for _, idp := range c.TrustedIDPs {
		if strings.TrimRight(idp.Issuer, "/") == strings.TrimRight(issuer, "/") {
			return idp, true
		}
	}
	return TrustedIDP{}, false
}
