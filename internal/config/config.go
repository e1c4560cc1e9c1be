package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	Storage  StorageConfig  `yaml:"storage"`
	Stripe   StripeConfig   `yaml:"stripe"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Sentry   SentryConfig   `yaml:"sentry"`
	Billing  BillingConfig  `yaml:"billing"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
	Env  string `yaml:"env"`
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// IsDevelopment reports whether the service runs on a developer machine
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "" || c.Server.Env == "local" || c.Server.Env == "development"
}

// GetDSN builds the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// RedisConfig redis settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig token settings
type JWTConfig struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"`
}

// CORSConfig allowed origins (comma separated)
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// StorageConfig S3-compatible archive bucket
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// StripeConfig payment provider credentials
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

// RabbitMQConfig notification broker
type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// URL returns the AMQP connection URL
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.User, r.Password, r.Host, r.Port)
}

// SentryConfig error tracking
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// BillingConfig pricing, fees and session packs
type BillingConfig struct {
	BaseCurrency     string            `yaml:"base_currency"`
	ChatMonthlyPrice int64             `yaml:"chat_monthly_price"`
	Rates            map[string]string `yaml:"rates"`
	Fees             map[string]string `yaml:"fees"`
	TipMin           int64             `yaml:"tip_min"`
	TipMax           int64             `yaml:"tip_max"`
	SessionMessages  int               `yaml:"session_messages"`
	SessionTokenCost int64             `yaml:"session_token_cost"`
	SessionValidity  time.Duration     `yaml:"session_validity"`
	CheckoutLockTTL  time.Duration     `yaml:"checkout_lock_ttl"`
	EntitlementTTL   time.Duration     `yaml:"entitlement_ttl"`
	// CheckoutPerMinute caps checkout creations per user
	CheckoutPerMinute int `yaml:"checkout_per_minute"`
}

// Load reads the YAML file at path, applies defaults and environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		pkglogger.Warn("config file %s not found, using defaults and environment", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8083, Mode: "debug", Env: "local"},
		Database: DatabaseConfig{Host: "localhost", Port: 3306, User: "root", DBName: "angple", MaxIdleConns: 10, MaxOpenConns: 50, ConnMaxLifetime: 300},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, PoolSize: 20},
		JWT:      JWTConfig{ExpiresIn: 900},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest"},
		Billing: BillingConfig{
			BaseCurrency:      "GBP",
			ChatMonthlyPrice:  999,
			Fees:              map[string]string{"subscription": "0.20", "tip": "0.20", "ppv": "0.20"},
			TipMin:            100,
			TipMax:            50000,
			SessionMessages:   50,
			SessionTokenCost:  100,
			SessionValidity:   24 * time.Hour,
			CheckoutLockTTL:   30 * time.Second,
			EntitlementTTL:    15 * time.Second,
			CheckoutPerMinute: 10,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Env, "APP_ENV")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.CORS.AllowOrigins, "CORS_ALLOW_ORIGINS")
	setString(&cfg.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&cfg.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&cfg.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setString(&cfg.Sentry.DSN, "SENTRY_DSN")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// LoadDotEnv loads .env files with priority: .env.local > .env
// godotenv.Load does NOT overwrite already-set env vars,
// so OS env vars always win, .env.local wins over .env.
// Returns list of files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// LogResolved prints the effective non-secret settings
func LogResolved(cfg *Config) {
	pkglogger.GetLogger().Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("db_host", cfg.Database.Host).
		Str("redis_host", cfg.Redis.Host).
		Bool("stripe_configured", cfg.Stripe.SecretKey != "").
		Bool("webhook_secret_configured", cfg.Stripe.WebhookSecret != "").
		Bool("storage_enabled", cfg.Storage.Enabled).
		Bool("rabbitmq_enabled", cfg.RabbitMQ.Enabled).
		Bool("sentry_enabled", cfg.Sentry.DSN != "").
		Str("base_currency", cfg.Billing.BaseCurrency).
		Msg("config resolved")
}
