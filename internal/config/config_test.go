package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "_schemas", cfg.Topic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.True(t, cfg.MasterEligibility)
	assert.Equal(t, time.Second, cfg.ReadinessRefresh)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("SCHEMA_REGISTRY_TOPIC", "env-topic")
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "env-topic", cfg.Topic)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("SCHEMA_REGISTRY_TOPIC", "env-topic")
	cfg, err := Load([]string{"--topic=flag-topic"}, "")
	require.NoError(t, err)
	assert.Equal(t, "flag-topic", cfg.Topic)
}

func TestLoad_FlagOverridesDefaultForMasterEligibility(t *testing.T) {
	cfg, err := Load([]string{"--master-eligibility=false"}, "")
	require.NoError(t, err)
	assert.False(t, cfg.MasterEligibility)
}
