package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "origin.internal.example.com", cfg.Broker.DefaultCloudFrontOrigin)
	assert.Equal(t, 10, cfg.Broker.WAFDeleteMaxAttempts)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BROKER_BROKER_DEFAULT_CLOUDFRONT_ORIGIN", "custom.example.com")
	t.Setenv("BROKER_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "custom.example.com", cfg.Broker.DefaultCloudFrontOrigin)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestDatabaseConfigDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "broker",
		Password: "secret",
		Database: "dns_broker",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db.internal port=5432 user=broker password=secret dbname=dns_broker sslmode=require", c.DSN())
}

func TestRedisConfigAddr(t *testing.T) {
	c := RedisConfig{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", c.Addr())
}
