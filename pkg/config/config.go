package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	StaticDir string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	NIM      NIMConfig
	Letters  LettersConfig
	Jobs     JobsConfig
	Kafka    KafkaConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	// Timeout bounds each read and write.
	Timeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	// File enables a rotated file sink next to stdout when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// CacheConfig toggles the Redis-backed candidate status cache.
type CacheConfig struct {
	Enabled      bool
	CandidateTTL time.Duration
}

// NIMConfig governs the bounded retry policy of NIM allocation.
type NIMConfig struct {
	MaxAttempts     int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	ApprovalTimeout time.Duration
}

// LettersConfig controls admission letter storage and signed downloads.
type LettersConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// JobsConfig sizes the post-approval worker pool.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// KafkaConfig configures publication of approval events.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	Username string
	Password string
	TLS      bool
}

// AdminConfig seeds the bootstrap administrator account.
type AdminConfig struct {
	Email    string
	Password string
	FullName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StaticDir = v.GetString("STATIC_DIR")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), 250*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.Cache = CacheConfig{
		Enabled:      v.GetBool("ENABLE_CACHE"),
		CandidateTTL: parseDuration(v.GetString("CANDIDATE_CACHE_TTL"), 5*time.Minute),
	}

	maxAttempts := v.GetInt("NIM_MAX_ATTEMPTS")
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	cfg.NIM = NIMConfig{
		MaxAttempts:     maxAttempts,
		RetryBackoff:    parseDuration(v.GetString("NIM_RETRY_BACKOFF"), 10*time.Millisecond),
		MaxRetryBackoff: parseDuration(v.GetString("NIM_RETRY_MAX_BACKOFF"), 200*time.Millisecond),
		ApprovalTimeout: parseDuration(v.GetString("APPROVAL_TIMEOUT"), 5*time.Second),
	}

	cfg.Letters = LettersConfig{
		StorageDir:      v.GetString("LETTERS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("LETTERS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("LETTERS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Enabled:  v.GetBool("KAFKA_ENABLED"),
		Brokers:  splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:    v.GetString("KAFKA_TOPIC"),
		Username: v.GetString("KAFKA_USERNAME"),
		Password: v.GetString("KAFKA_PASSWORD"),
		TLS:      v.GetBool("KAFKA_TLS"),
	}

	cfg.Admin = AdminConfig{
		Email:    strings.TrimSpace(v.GetString("ADMIN_EMAIL")),
		Password: v.GetString("ADMIN_PASSWORD"),
		FullName: v.GetString("ADMIN_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STATIC_DIR", "./static")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pmb")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_TIMEOUT", "250ms")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "pmb-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CANDIDATE_CACHE_TTL", "5m")

	v.SetDefault("NIM_MAX_ATTEMPTS", 5)
	v.SetDefault("NIM_RETRY_BACKOFF", "10ms")
	v.SetDefault("NIM_RETRY_MAX_BACKOFF", "200ms")
	v.SetDefault("APPROVAL_TIMEOUT", "5s")

	v.SetDefault("LETTERS_STORAGE_DIR", "./letters")
	v.SetDefault("LETTERS_SIGNED_URL_SECRET", "dev_letters_secret")
	v.SetDefault("LETTERS_SIGNED_URL_TTL", "30m")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "2s")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "pmb.admissions")
	v.SetDefault("KAFKA_USERNAME", "")
	v.SetDefault("KAFKA_PASSWORD", "")
	v.SetDefault("KAFKA_TLS", false)

	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_NAME", "PMB Administrator")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
