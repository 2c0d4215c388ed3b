// Package config provides configuration management for the transaction
// index. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	Upstream  UpstreamConfig
	Cache     CacheConfig
	Job       JobConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// UpstreamConfig holds the NodeRPC and Explorer adapter configuration.
type UpstreamConfig struct {
	NodeRPCURL      string
	ExplorerAPIURL  string
	ExplorerAPIKey  string
	RPCTimeout      time.Duration
	ExplorerTimeout time.Duration
}

// CacheConfig holds KV cache TTLs. Every TTL is read from the environment
// in seconds, the address-info TTL included (its default, 604800 seconds,
// is 7 days).
type CacheConfig struct {
	BalanceTTL     time.Duration
	TxQueryTTL     time.Duration
	TxCountTTL     time.Duration
	AddressInfoTTL time.Duration
}

// JobConfig holds gap scheduler and worker pool tunables.
type JobConfig struct {
	WorkerConcurrency  int
	MaxBlocksPerJob    uint64
	MaxTxPerBatch      int
	RetryAttempts      int
	RetryBackoffBaseMs int
}

// RateLimitConfig holds the process-wide Explorer rate limiter contract.
type RateLimitConfig struct {
	TokensPerSecond float64
	MaxConcurrent   int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from a .env file (optional) and
// environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "txindex"),
				User:           getEnv("POSTGRES_USER", "txindex"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Upstream: UpstreamConfig{
			NodeRPCURL:      getEnv("NODE_RPC_URL", ""),
			ExplorerAPIURL:  getEnv("EXPLORER_API_URL", ""),
			ExplorerAPIKey:  getEnv("EXPLORER_API_KEY", ""),
			RPCTimeout:      getEnvAsDuration("RPC_TIMEOUT_MS", 10000*time.Millisecond, time.Millisecond),
			ExplorerTimeout: getEnvAsDuration("EXPLORER_TIMEOUT_MS", 5000*time.Millisecond, time.Millisecond),
		},
		Cache: CacheConfig{
			BalanceTTL:     getEnvAsDuration("BALANCE_CACHE_TTL_SEC", 30*time.Second, time.Second),
			TxQueryTTL:     getEnvAsDuration("TX_QUERY_CACHE_TTL_SEC", 300*time.Second, time.Second),
			TxCountTTL:     getEnvAsDuration("TXCOUNT_CACHE_TTL_SEC", 300*time.Second, time.Second),
			AddressInfoTTL: getEnvAsDuration("ADDRESS_INFO_CACHE_TTL_SEC", 604800*time.Second, time.Second),
		},
		Job: JobConfig{
			WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			MaxBlocksPerJob:    uint64(getEnvAsInt("MAX_BLOCKS_PER_JOB", 5000)),
			MaxTxPerBatch:      getEnvAsInt("MAX_TX_PER_BATCH", 5000),
			RetryAttempts:      getEnvAsInt("JOB_RETRY_ATTEMPTS", 3),
			RetryBackoffBaseMs: getEnvAsInt("JOB_RETRY_BACKOFF_BASE_MS", 2000),
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: getEnvAsFloat("RATE_LIMIT_TOKENS_PER_SEC", 5),
			MaxConcurrent:   getEnvAsInt("RATE_LIMIT_MAX_CONCURRENT", 1),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads an integer environment variable and scales it by
// unit, falling back to defaultValue when unset or invalid.
func getEnvAsDuration(key string, defaultValue time.Duration, unit time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return time.Duration(value) * unit
}
