package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetApplicationConfig_MissingRequiredFails(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	// SIGNALING_SERVER_URL intentionally left unset.
	_, err := GetApplicationConfig(v)
	require.Error(t, err)
}

func TestGetApplicationConfig_DefaultsApply(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("signaling_server_url", "wss://room.example.com")
	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "rpc", cfg.TranscriptionProvider)
	assert.Equal(t, "elevenlabs", cfg.TTSProvider)
	assert.True(t, cfg.AllowsInterruptions)
	assert.Equal(t, 700, cfg.SilenceDurationMs)
	assert.Equal(t, 250, cfg.CalibrationChunks)
}

func TestGetApplicationConfig_RejectsUnknownProvider(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("signaling_server_url", "wss://room.example.com")
	v.Set("tts_provider", "not-a-real-provider")
	_, err := GetApplicationConfig(v)
	require.Error(t, err)
}
