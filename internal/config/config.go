package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Contact  ContactConfig  `mapstructure:"contact"`
	Assets   AssetConfig    `mapstructure:"assets"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// AllowedOrigins 同时用于联系表单的 Origin/Referer 白名单与 WebSocket 升级检查。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig contains token signing and login throttling settings.
type AuthConfig struct {
	PrivateKeyFile        string        `mapstructure:"private_key_file"`
	PublicKeyFile         string        `mapstructure:"public_key_file"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// ContactConfig 控制访客联系表单提交的限流与校验窗口。
type ContactConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
	ReplayWindow time.Duration `mapstructure:"replay_window"`
}

// AssetConfig contains upload limits for owner assets.
type AssetConfig struct {
	ClamdAddr        string   `mapstructure:"clamd_addr"`
	MaxBytes         int64    `mapstructure:"max_bytes"`
	MaxPerUser       int      `mapstructure:"max_per_user"`
	MaxUploadsPerDay int      `mapstructure:"max_uploads_per_day"`
	MIMEWhitelist    []string `mapstructure:"mime_whitelist"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.API.AllowedOrigins = splitAndTrim(v.GetString("api.allowed_origins"))
	cfg.Assets.MIMEWhitelist = splitAndTrim(v.GetString("assets.mime_whitelist"))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "noirkit")
	v.SetDefault("database.user", "noirkit")
	v.SetDefault("database.password", "noirkit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "portfolio")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("contact.rate_limit", 5)
	v.SetDefault("contact.rate_window", 15*time.Minute)
	v.SetDefault("contact.replay_window", 5*time.Minute)
	v.SetDefault("assets.max_bytes", 5*1024*1024)
	v.SetDefault("assets.max_per_user", 60)
	v.SetDefault("assets.max_uploads_per_day", 30)
	v.SetDefault("assets.mime_whitelist", "image/png,image/jpeg,image/webp,image/svg+xml,application/pdf")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_file":          "AUTH_PRIVATE_KEY_FILE",
		"auth.public_key_file":           "AUTH_PUBLIC_KEY_FILE",
		"auth.access_token_ttl":          "AUTH_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "AUTH_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "AUTH_LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "AUTH_LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "AUTH_LOGIN_LOCK_TTL",
		"auth.cookie_domain":             "AUTH_COOKIE_DOMAIN",
		"contact.rate_limit":             "CONTACT_RATE_LIMIT",
		"contact.rate_window":            "CONTACT_RATE_WINDOW",
		"contact.replay_window":          "CONTACT_REPLAY_WINDOW",
		"assets.clamd_addr":              "CLAMD_ADDR",
		"assets.max_bytes":               "ASSET_MAX_BYTES",
		"assets.max_per_user":            "ASSET_MAX_PER_USER",
		"assets.max_uploads_per_day":     "ASSET_MAX_UPLOADS_PER_DAY",
		"assets.mime_whitelist":          "ASSET_MIME_WHITELIST",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.PrivateKeyFile == "" {
		return errors.New("auth private key file is required")
	}
	if cfg.Auth.PublicKeyFile == "" {
		return errors.New("auth public key file is required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return errors.New("auth access token ttl must be positive")
	}
	if cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("auth refresh token ttl must be positive")
	}
	if cfg.Contact.RateLimit <= 0 {
		return errors.New("contact rate limit must be positive")
	}
	if cfg.Contact.RateWindow <= 0 {
		return errors.New("contact rate window must be positive")
	}
	if cfg.Contact.ReplayWindow <= 0 {
		return errors.New("contact replay window must be positive")
	}
	return nil
}
