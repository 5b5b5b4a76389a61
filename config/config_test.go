package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"MONGODB_URI", "MONGODB_DATABASE", "MONGODB_COLLECTION", "STORE_BACKEND", "PORT",
		"SHARDING", "SHARD_NAMES", "STORE_RETRIES", "QUERY_DEFAULT_LIMIT", "QUERY_MAX_LIMIT",
		"QUERY_USE_HINTS", "ADMIN_API_ENABLED", "ROUTE_CACHE_TTL", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "im_db", cfg.MongoDatabase)
	assert.Equal(t, "im_c2c_msg_record", cfg.MongoCollection)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, ShardingAuto, cfg.Sharding)
	assert.Equal(t, 20, cfg.QueryDefaultLimit)
	assert.Equal(t, 200, cfg.QueryMaxLimit)
	assert.Equal(t, 3, cfg.StoreRetries)
	assert.Equal(t, 24*time.Hour, cfg.RouteCacheTTL)
	assert.True(t, cfg.QueryUseHints)
	assert.False(t, cfg.AdminAPIEnabled)
	assert.Empty(t, cfg.ShardNames)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SHARDING", "ON")
	t.Setenv("SHARD_NAMES", "rs0, rs1,,rs2")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORE_RETRY_BASE", "50ms")
	t.Setenv("QUERY_DEFAULT_LIMIT", "10")
	t.Setenv("QUERY_MAX_LIMIT", "50")
	t.Setenv("ADMIN_API_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://admin.example.com")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ShardingOn, cfg.Sharding)
	assert.Equal(t, []string{"rs0", "rs1", "rs2"}, cfg.ShardNames)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 50*time.Millisecond, cfg.StoreRetryBase)
	assert.Equal(t, 10, cfg.QueryDefaultLimit)
	assert.True(t, cfg.AdminAPIEnabled)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.CORSOrigins)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("SHARDING", "sometimes")
	t.Setenv("STORE_RETRIES", "three")
	t.Setenv("ROUTE_CACHE_TTL", "1 day")
	t.Setenv("QUERY_DEFAULT_LIMIT", "500")
	t.Setenv("QUERY_MAX_LIMIT", "200")

	_, err := FromEnv()
	require.Error(t, err)
	for _, key := range []string{"SHARDING", "STORE_RETRIES", "ROUTE_CACHE_TTL", "QUERY_DEFAULT_LIMIT"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestFromEnvRejectsNonPositiveRateLimit(t *testing.T) {
	for _, v := range []string{"0", "-5"} {
		t.Setenv("RATE_LIMIT_PER_MINUTE", v)
		_, err := FromEnv()
		require.Error(t, err, v)
		assert.Contains(t, err.Error(), "RATE_LIMIT_PER_MINUTE must be positive")
	}
}
