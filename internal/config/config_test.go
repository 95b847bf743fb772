package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return NewFromViper(v)
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "bedrock", cfg.GetLLM().Provider)
	assert.Equal(t, "memory", cfg.GetString("state.type"))
	assert.Equal(t, 0.5, cfg.GetFilter().NotifyThreshold)
	assert.Equal(t, 15, cfg.GetBatch().MaxWorkers)
	assert.Equal(t, "Asia/Seoul", cfg.GetUsage().Timezone)
}

func TestGetStateParsesDurations(t *testing.T) {
	cfg := defaultConfig()

	state, err := cfg.GetState()
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, state.ProcessedTTL)
	assert.Equal(t, time.Hour, state.ThrottleTTL)
	assert.Equal(t, 10*time.Minute, state.ThrottleWindow)
}

func TestGetStateRejectsBadDuration(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("state.processed_ttl", "one week")
	cfg := NewFromViper(v)

	_, err := cfg.GetState()
	assert.Error(t, err)
}

func TestGetRoutingStaticRules(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("routing.static_rules", []map[string]interface{}{
		{"email": "jane@corp.com", "targets": []string{"user:U1", "channel:C1"}},
	})
	cfg := NewFromViper(v)

	routing, err := cfg.GetRouting()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, routing.CacheTTL)
	require.Len(t, routing.StaticRules, 1)
	assert.Equal(t, "jane@corp.com", routing.StaticRules[0].Email)
	assert.Equal(t, []string{"user:U1", "channel:C1"}, routing.StaticRules[0].Targets)
}

func TestGetPrior(t *testing.T) {
	cfg := defaultConfig()

	prior, err := cfg.GetPrior()
	require.NoError(t, err)
	assert.Equal(t, 3, prior.MinSamples)
	assert.Equal(t, 0.5, prior.Baseline)
	assert.Equal(t, 10*time.Minute, prior.ReadFastWithin)
	assert.Equal(t, 2*time.Hour, prior.ReadSlowWithin)
	assert.Equal(t, 1.0, prior.ScoreReadFast)
}
