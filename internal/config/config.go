package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working
// directory.
const ConfigPath = "config.yaml"

// Duration parses YAML strings like "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full server configuration. Secrets come from the
// environment; the YAML file holds everything that can live in version
// control.
type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		PublicBaseURL string `yaml:"public_base_url"`
		LogLevel      string `yaml:"log_level"`
	} `yaml:"server"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	Storage struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		UseSSL     bool   `yaml:"use_ssl"`
		PicsBucket string `yaml:"pics_bucket"`
		DataBucket string `yaml:"data_bucket"`
	} `yaml:"storage"`

	Auth struct {
		JWTSecret  string   `yaml:"jwt_secret"`
		SessionTTL Duration `yaml:"session_ttl"`
	} `yaml:"auth"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`

	Stripe struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"stripe"`

	RateLimit struct {
		AuthLimit  int      `yaml:"auth_limit"`
		AuthWindow Duration `yaml:"auth_window"`
	} `yaml:"ratelimit"`

	Chat struct {
		SessionIdleTTL Duration `yaml:"session_idle_ttl"`
	} `yaml:"chat"`
}

// Load reads the YAML file, applies environment overrides, fills defaults,
// and validates. A missing file is fine: everything can come from env vars.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.Addr, "HTTP_ADDR")
	overrideString(&cfg.Server.PublicBaseURL, "PUBLIC_BASE_URL")
	overrideString(&cfg.Server.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Database.URL, "DATABASE_URL")
	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideString(&cfg.Storage.Endpoint, "MINIO_ENDPOINT")
	overrideString(&cfg.Storage.AccessKey, "MINIO_ACCESS_KEY")
	overrideString(&cfg.Storage.SecretKey, "MINIO_SECRET_KEY")
	overrideString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	overrideString(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
}

func overrideString(target *string, envKey string) {
	if v, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost:3000"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Storage.PicsBucket == "" {
		cfg.Storage.PicsBucket = "bot-pics"
	}
	if cfg.Storage.DataBucket == "" {
		cfg.Storage.DataBucket = "bot-data"
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = Duration(24 * time.Hour)
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.RateLimit.AuthLimit <= 0 {
		cfg.RateLimit.AuthLimit = 10
	}
	if cfg.RateLimit.AuthWindow <= 0 {
		cfg.RateLimit.AuthWindow = Duration(time.Minute)
	}
	if cfg.Chat.SessionIdleTTL <= 0 {
		cfg.Chat.SessionIdleTTL = Duration(30 * time.Minute)
	}
}

func validateConfig(cfg *Config) error {
	var problems []string
	if cfg.Database.URL == "" {
		problems = append(problems, "database.url (or DATABASE_URL) is required")
	}
	if cfg.Redis.Addr == "" {
		problems = append(problems, "redis.addr (or REDIS_ADDR) is required")
	}
	if cfg.Storage.Endpoint == "" {
		problems = append(problems, "storage.endpoint (or MINIO_ENDPOINT) is required")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret (or JWT_SECRET) must be at least 32 characters")
	}
	if cfg.Gemini.APIKey == "" {
		problems = append(problems, "gemini.api_key (or GEMINI_API_KEY) is required")
	}
	if cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		problems = append(problems, "stripe.webhook_secret is required when stripe.secret_key is set")
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
