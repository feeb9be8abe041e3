package config

import (
	"errors"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	AI            AIConfig
	Assignment    AssignmentConfig
	Notifications NotificationsConfig
	Jobs          JobsConfig
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
	Enabled  bool
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AIConfig controls the AI response generator. ConfidenceScore is a fixed
// heuristic attached to generated responses because the upstream model
// exposes no native confidence signal.
type AIConfig struct {
	Enabled         bool
	BaseURL         string
	APIKey          string
	Model           string
	RequestTimeout  time.Duration
	MaxRetries      int
	ConfidenceScore float64
}

// AssignmentConfig controls the auto-assignment engine.
type AssignmentConfig struct {
	Enabled        bool
	RequestTimeout time.Duration
	CandidateLimit int
}

// NotificationsConfig controls fan-out caching and retention cleanup.
type NotificationsConfig struct {
	UnreadCacheTTL time.Duration
	PurgeInterval  time.Duration
	RetentionDays  int
}

// JobsConfig tunes the background side-effect queue.
type JobsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Enabled:  v.GetBool("REDIS_ENABLED"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.AI = AIConfig{
		Enabled:         v.GetBool("AI_ENABLED"),
		BaseURL:         v.GetString("AI_BASE_URL"),
		APIKey:          v.GetString("AI_API_KEY"),
		Model:           v.GetString("AI_MODEL"),
		RequestTimeout:  parseDuration(v.GetString("AI_REQUEST_TIMEOUT"), 20*time.Second),
		MaxRetries:      v.GetInt("AI_MAX_RETRIES"),
		ConfidenceScore: v.GetFloat64("AI_CONFIDENCE_SCORE"),
	}

	cfg.Assignment = AssignmentConfig{
		Enabled:        v.GetBool("AUTO_ASSIGNMENT_ENABLED"),
		RequestTimeout: parseDuration(v.GetString("AUTO_ASSIGNMENT_TIMEOUT"), 5*time.Second),
		CandidateLimit: v.GetInt("AUTO_ASSIGNMENT_CANDIDATE_LIMIT"),
	}

	cfg.Notifications = NotificationsConfig{
		UnreadCacheTTL: parseDuration(v.GetString("NOTIFICATIONS_UNREAD_CACHE_TTL"), time.Minute),
		PurgeInterval:  parseDuration(v.GetString("NOTIFICATIONS_PURGE_INTERVAL"), 24*time.Hour),
		RetentionDays:  v.GetInt("NOTIFICATIONS_RETENTION_DAYS"),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clat_prep")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", false)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AI_ENABLED", false)
	v.SetDefault("AI_BASE_URL", "https://api.openai.com")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_REQUEST_TIMEOUT", "20s")
	v.SetDefault("AI_MAX_RETRIES", 2)
	v.SetDefault("AI_CONFIDENCE_SCORE", 0.75)

	v.SetDefault("AUTO_ASSIGNMENT_ENABLED", true)
	v.SetDefault("AUTO_ASSIGNMENT_TIMEOUT", "5s")
	v.SetDefault("AUTO_ASSIGNMENT_CANDIDATE_LIMIT", 5)

	v.SetDefault("NOTIFICATIONS_UNREAD_CACHE_TTL", "1m")
	v.SetDefault("NOTIFICATIONS_PURGE_INTERVAL", "24h")
	v.SetDefault("NOTIFICATIONS_RETENTION_DAYS", 90)

	v.SetDefault("JOBS_WORKERS", 4)
	v.SetDefault("JOBS_BUFFER_SIZE", 64)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
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
