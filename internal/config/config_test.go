package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"admin", "coordinator"}, cfg.BroadcastRoles)
	assert.Equal(t, 10*time.Second, cfg.WSHandshakeTimeout)
	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.Equal(t, 30*time.Second, cfg.JWTLeeway)
	assert.Empty(t, cfg.JWTIssuer)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("BROADCAST_ROLES", " admin , ,field_officer")
	t.Setenv("WS_HANDSHAKE_TIMEOUT", "2s")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"admin", "field_officer"}, cfg.BroadcastRoles)
	assert.Equal(t, 2*time.Second, cfg.WSHandshakeTimeout)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"duration":  {"WS_HANDSHAKE_TIMEOUT", "soon"},
		"zero":      {"WS_HANDSHAKE_TIMEOUT", "0s"},
		"buffer":    {"WS_SEND_BUFFER", "-1"},
		"retention": {"NOTIFICATION_RETENTION_DAYS", "x"},
		"redis db":  {"REDIS_DB", "one"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "dev")
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnvProdRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, IsProdLike(cfg.AppEnv))
}
