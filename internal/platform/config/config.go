package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	Environment     string
	AdminToken      string
	JWTSigningKey   string
	V1PostgresDSN   string
	V2PostgresDSN   string
	Redis           RedisConfig
	ShutdownTimeout time.Duration
}

// RedisConfig carries connection settings for the feature flag backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IsProduction reports whether the process runs against production data.
// Test-utility endpoints refuse to serve when this is true.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ELIGIBILITY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("ELIGIBILITY_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	shutdown := 10 * time.Second
	if raw := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			shutdown = time.Duration(secs) * time.Second
		}
	}

	return Server{
		Addr:            addr,
		Environment:     env,
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		JWTSigningKey:   jwtSigningKey,
		V1PostgresDSN:   os.Getenv("ELIGIBILITY_DATABASE_URL"),
		V2PostgresDSN:   os.Getenv("ELIGIBILITY_V2_DATABASE_URL"),
		Redis:           redisFromEnv(),
		ShutdownTimeout: shutdown,
	}
}

func redisFromEnv() RedisConfig {
	cfg := RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if raw := os.Getenv("REDIS_POOL_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.PoolSize = n
		}
	}
	return cfg
}
