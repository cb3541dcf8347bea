package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
saxo:
  client_id: cid
  client_secret: secret
  auth_url: https://sim.logonvalidation.net
  api_base_url: https://gateway.saxobank.com/sim/openapi
  websocket_host: streaming.saxobank.com/sim/openapi/streamingws
  redirect_url: http://localhost:3000/api/acb
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	require.Equal(t, 3000, c.Server.Port)
	require.Equal(t, "saxobank", c.Saxo.Provider)
	require.Equal(t, 10*time.Minute, c.Tokens.RefreshInterval)
	require.Equal(t, "file", c.Tokens.Store)
	require.Equal(t, "none", c.Archive.Backend)
	require.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	env := map[string]string{
		"LOCAL_DATA_PORT":          "8081",
		"SAXOBANK_OAUTH_CLIENT_ID": "from-env",
		"KAFKA_BROKERS":            "k1:9092,k2:9092",
		"REDIS_ADDR":               "cache:6380",
		"DEBUG":                    "true",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	require.Equal(t, 8081, c.Server.Port)
	require.Equal(t, "from-env", c.Saxo.ClientID)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	require.Equal(t, "cache", c.Redis.Host)
	require.Equal(t, 6380, c.Redis.Port)
	require.Equal(t, "debug", c.Logging.Level)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	c.Archive.Backend = "s3"
	require.Error(t, c.Validate())

	c.Archive.Backend = "kafka"
	require.Error(t, c.Validate(), "kafka without brokers")

	c.Kafka.Brokers = []string{"localhost:9092"}
	require.NoError(t, c.Validate())
}

func TestValidateRequiresCredentials(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)
	require.Error(t, c.Validate())
}
