// Package config loads the orchestrator's process configuration from
// the environment (and an optional .env file), the way the upstream
// platform's services each load their own AppConfig.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the full set of environment-derived settings the
// orchestrator needs to boot a session. Required fields fail fast at
// startup (spec §7, "Programmer" error class) rather than defaulting
// silently.
type AppConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required"`

	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	SignalingServerURL       string `mapstructure:"signaling_server_url" validate:"required"`
	TokenStreamingServerURL  string `mapstructure:"token_streaming_server_url"`
	TranscriptionServerURL   string `mapstructure:"transcription_server_url"`
	ElevenLabsAPIKey         string `mapstructure:"elevenlabs_api_key"`

	TranscriptionProvider string `mapstructure:"transcription_provider" validate:"required,oneof=rpc deepgram"`
	DeepgramAPIKey        string `mapstructure:"deepgram_api_key"`

	TokenStreamProvider string `mapstructure:"token_stream_provider" validate:"required,oneof=rpc openai anthropic"`
	OpenAIAPIKey        string `mapstructure:"openai_api_key"`
	AnthropicAPIKey     string `mapstructure:"anthropic_api_key"`

	TTSProvider string `mapstructure:"tts_provider" validate:"required,oneof=elevenlabs google"`

	AllowsInterruptions  bool `mapstructure:"allows_interruptions"`
	SilenceDurationMs    int  `mapstructure:"silence_duration_ms" validate:"required"`
	CalibrationChunks    int  `mapstructure:"calibration_chunks" validate:"required"`
}

// InitConfig wires a viper instance against the environment, an
// optional .env file located at ENV_PATH, and the defaults below.
func InitConfig() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)
	_ = v.ReadInConfig() // absent .env file is not an error; env vars still apply
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("TRANSCRIPTION_PROVIDER", "rpc")
	v.SetDefault("TOKEN_STREAM_PROVIDER", "rpc")
	v.SetDefault("TTS_PROVIDER", "elevenlabs")

	v.SetDefault("ALLOWS_INTERRUPTIONS", true)
	v.SetDefault("SILENCE_DURATION_MS", 700)
	v.SetDefault("CALIBRATION_CHUNKS", 250)
}

// GetApplicationConfig unmarshals and validates the loaded viper
// instance into an AppConfig.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
