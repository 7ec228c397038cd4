package coral

import (
	"time"

	"github.com/dj-oyu/reefwatch/internal/config"
)

// Config defines the coral classifier service.
type Config struct {
	Addr         string        `validate:"required"`
	ModelURL     string        `validate:"required,url"`
	ModelTimeout time.Duration `validate:"gt=0"`
	UploadDir    string        `validate:"required"`
	MaxUploadMB  int           `validate:"gt=0"`
	Storage      string        `validate:"oneof=local s3"`

	RedisAddr     string // empty disables the prediction cache
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gte=0"`

	RateLimit       int `validate:"gte=0"` // requests per minute per IP on upload routes, 0 = unlimited
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the defaults overridden by CORAL_* variables.
func DefaultConfig() Config {
	return Config{
		Addr:            config.GetEnv("CORAL_ADDR", ":5000"),
		ModelURL:        config.GetEnv("CORAL_MODEL_URL", "http://localhost:8501/v1/models/coral:predict"),
		ModelTimeout:    config.GetEnvDuration("CORAL_MODEL_TIMEOUT", 30*time.Second),
		UploadDir:       config.GetEnv("CORAL_UPLOAD_DIR", "static/uploads"),
		MaxUploadMB:     config.GetEnvInt("CORAL_MAX_UPLOAD_MB", 16),
		Storage:         config.GetEnv("CORAL_STORAGE", "local"),
		RedisAddr:       config.GetEnv("CORAL_REDIS_ADDR", ""),
		RedisPassword:   config.GetEnv("CORAL_REDIS_PASSWORD", ""),
		RedisDB:         config.GetEnvInt("CORAL_REDIS_DB", 0),
		CacheTTL:        config.GetEnvDuration("CORAL_CACHE_TTL", 24*time.Hour),
		RateLimit:       config.GetEnvInt("CORAL_RATE_LIMIT", 60),
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	return config.Validate(c)
}

// MaxUploadBytes is the request body limit for upload routes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
