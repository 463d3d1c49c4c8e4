// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level configuration for the recall service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Vectorizer VectorizerConfig
	Cache      CacheConfig
	Stream     StreamConfig
	Monitoring MonitoringConfig
}

// ServerConfig controls the protocol server identity and shutdown.
type ServerConfig struct {
	Name            string
	Version         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the Postgres connection pool.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	ConnTimeout time.Duration
}

// URL builds the pgx connection string.
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port +
		"/" + c.Name + "?sslmode=" + c.SSLMode
}

// RedisConfig controls the shared cache level.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// VectorizerConfig controls the embedding sidecar client.
type VectorizerConfig struct {
	BaseURL    string
	Dimensions int
	BatchSize  int
	CacheSize  int
}

// CacheConfig controls the tiered cache.
type CacheConfig struct {
	LocalMaxEntries int
	MemoryTTL       time.Duration
	ListTTL         time.Duration
	SearchTTL       time.Duration
}

// StreamConfig controls live event streaming.
type StreamConfig struct {
	BufferSize     int
	PublishTimeout time.Duration
}

// MonitoringConfig controls logging.
type MonitoringConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults
// suitable for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            getEnv("RECALL_SERVER_NAME", "recall"),
			Version:         getEnv("RECALL_SERVER_VERSION", "1.0.0"),
			ShutdownTimeout: getDurationEnv("RECALL_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "recall"),
			Password:    getEnv("DB_PASSWORD", "secret"),
			Name:        getEnv("DB_NAME", "recall_db"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getIntEnv("DB_MAX_CONNECTIONS", 10),
			ConnTimeout: getDurationEnv("DB_CONN_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		Vectorizer: VectorizerConfig{
			BaseURL:    getEnv("VECTORIZER_URL", "http://localhost:8200"),
			Dimensions: getIntEnv("VECTORIZER_DIMENSIONS", 384),
			BatchSize:  getIntEnv("VECTORIZER_BATCH_SIZE", 32),
			CacheSize:  getIntEnv("VECTORIZER_CACHE_SIZE", 1024),
		},
		Cache: CacheConfig{
			LocalMaxEntries: getIntEnv("CACHE_LOCAL_MAX_ENTRIES", 10000),
			MemoryTTL:       getDurationEnv("CACHE_MEMORY_TTL", 30*time.Minute),
			ListTTL:         getDurationEnv("CACHE_LIST_TTL", 5*time.Minute),
			SearchTTL:       getDurationEnv("CACHE_SEARCH_TTL", 2*time.Minute),
		},
		Stream: StreamConfig{
			BufferSize:     getIntEnv("STREAM_BUFFER_SIZE", 256),
			PublishTimeout: getDurationEnv("STREAM_PUBLISH_TIMEOUT", 10*time.Millisecond),
		},
		Monitoring: MonitoringConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
