package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDriver string // Optional: sqlite or postgres (default: sqlite)
	DatabaseDSN    string // Optional: sqlite file or postgres URL (default: scagate.db)

	CacheDriver   string // Optional: memory or redis (default: memory)
	RedisAddr     string // Optional: host:port, redis only
	RedisPassword string // Optional
	RedisDB       int    // Optional (default: 0)

	ProfileFile      string // Optional: ASPSP profile YAML, built in defaults when empty
	BankFixturesFile string // Optional: mock bank PSUs, built in fixtures when empty
	PepperFile       string // Optional: pepper for the mock bank's password hashes (default: ./pepper)

	OAuthJWKSFile string   // Optional: enables bearer tokens and the OAUTH approach
	OAuthIssuer   string   // Optional: expected iss of bearer tokens
	OAuthAudience []string // Optional: expected aud of bearer tokens

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	Retention            time.Duration // How long finished authorisations are kept (default: 30 days)
}

// LoadConfig reads the environment. A .env file in the working directory,
// or the one named by envFile, is loaded first without overriding
// variables that are already set.
func LoadConfig(envFile string) Config {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Config{
		DatabaseDriver:       getEnvOrDefault("SCA_DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:          getEnvOrDefault("SCA_DATABASE_DSN", "scagate.db"),
		CacheDriver:          getEnvOrDefault("SCA_CACHE_DRIVER", "memory"),
		RedisAddr:            getEnvOrDefault("SCA_REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("SCA_REDIS_PASSWORD"),
		RedisDB:              getEnvIntOrDefault("SCA_REDIS_DB", 0),
		ProfileFile:          os.Getenv("SCA_PROFILE_FILE"),
		BankFixturesFile:     os.Getenv("SCA_BANK_FIXTURES_FILE"),
		PepperFile:           getEnvOrDefault("SCA_PEPPER_FILE", "pepper"),
		OAuthJWKSFile:        os.Getenv("SCA_OAUTH_JWKS_FILE"),
		OAuthIssuer:          os.Getenv("SCA_OAUTH_ISSUER"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		Retention:            getEnvDurationOrDefault("SCA_RETENTION", 30*24*time.Hour),
	}

	if aud := os.Getenv("SCA_OAUTH_AUDIENCE"); aud != "" {
		cfg.OAuthAudience = []string{aud}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
