package app

import (
	"time"

	"github.com/crossmindhq/crossmind-backend/internal/platform/envutil"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
)

type Config struct {
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	ServiceName string
	Environment string
	Version     string

	// RedisEnabled switches SSE fan-out from the in-process hub to the
	// Redis bus so multiple instances see each other's events.
	RedisEnabled bool
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		JWTSecretKey:    envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		AccessTokenTTL:  time.Duration(envutil.GetEnvInt("ACCESS_TOKEN_TTL", 3600, log)) * time.Second,
		RefreshTokenTTL: time.Duration(envutil.GetEnvInt("REFRESH_TOKEN_TTL", 604800, log)) * time.Second,
		ServiceName:     envutil.GetEnv("SERVICE_NAME", "crossmind-backend", log),
		Environment:     envutil.GetEnv("ENVIRONMENT", "development", log),
		Version:         envutil.GetEnv("SERVICE_VERSION", "dev", log),
		RedisEnabled:    envutil.GetEnvBool("REDIS_ENABLED", false),
	}
}
