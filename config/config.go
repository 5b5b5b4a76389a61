package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Sharding modes. Auto asks the deployment with hello.
const (
	ShardingAuto = "auto"
	ShardingOn   = "on"
	ShardingOff  = "off"
)

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	StoreBackend    string

	Port        string
	GinMode     string
	LogLevel    string
	ServiceName string

	RedisAddr     string
	RouteCacheTTL time.Duration

	ShardNames []string
	Sharding   string

	StoreRetries   int
	StoreRetryBase time.Duration

	QueryDefaultLimit int
	QueryMaxLimit     int
	QueryUseHints     bool

	RateLimitPerMinute int
	CORSOrigins        []string
	AdminAPIEnabled    bool
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var errs []string
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		MongoURI:           getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase:      getEnv("MONGODB_DATABASE", "im_db"),
		MongoCollection:    getEnv("MONGODB_COLLECTION", "im_c2c_msg_record"),
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendMongo)),
		Port:               getEnv("PORT", "8080"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServiceName:        getEnv("SERVICE_NAME", "msgstore"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RouteCacheTTL:      durationVar("ROUTE_CACHE_TTL", 24*time.Hour),
		ShardNames:         getEnvList("SHARD_NAMES"),
		Sharding:           strings.ToLower(getEnv("SHARDING", ShardingAuto)),
		StoreRetries:       intVar("STORE_RETRIES", 3),
		StoreRetryBase:     durationVar("STORE_RETRY_BASE", 200*time.Millisecond),
		QueryDefaultLimit:  intVar("QUERY_DEFAULT_LIMIT", 20),
		QueryMaxLimit:      intVar("QUERY_MAX_LIMIT", 200),
		QueryUseHints:      getEnvBool("QUERY_USE_HINTS", true),
		RateLimitPerMinute: intVar("RATE_LIMIT_PER_MINUTE", 600),
		CORSOrigins:        getEnvList("CORS_ORIGINS"),
		AdminAPIEnabled:    getEnvBool("ADMIN_API_ENABLED", false),
	}

	switch cfg.Sharding {
	case ShardingAuto, ShardingOn, ShardingOff:
	default:
		errs = append(errs, fmt.Sprintf("SHARDING: %q is not one of auto, on, off", cfg.Sharding))
	}
	switch cfg.StoreBackend {
	case BackendMongo, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND: %q is not one of mongo, memory", cfg.StoreBackend))
	}
	if cfg.QueryDefaultLimit <= 0 || cfg.QueryMaxLimit < cfg.QueryDefaultLimit {
		errs = append(errs, "QUERY_DEFAULT_LIMIT must be positive and not above QUERY_MAX_LIMIT")
	}
	if cfg.StoreRetries <= 0 {
		errs = append(errs, "STORE_RETRIES must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
