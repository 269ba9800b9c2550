// Package config provides configuration management for ffpipe using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultFFmpegBinary   = "ffmpeg"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultDemuxChunkSize = 64 * 1024
)

// Config holds all configuration for the ffpipe CLI.
type Config struct {
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Logging LoggingConfig `mapstructure:"logging"`
	Demux   DemuxConfig   `mapstructure:"demux"`
}

// FFmpegConfig holds settings for locating and running FFmpeg.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable path, or a bare name resolved
	// against the system path.
	Binary string `mapstructure:"binary"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text, json
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DemuxConfig holds output demultiplexer tuning.
type DemuxConfig struct {
	// ChunkSize is the scratch buffer size for chunked-mode reads.
	ChunkSize int `mapstructure:"chunk_size"`
}

// SetDefaults registers default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ffmpeg.binary", defaultFFmpegBinary)
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("demux.chunk_size", defaultDemuxChunkSize)
}

// Load reads configuration from the environment (FFPIPE_ prefix), an
// optional config file, and defaults, then validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("FFPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.FFmpeg.Binary == "" {
		return fmt.Errorf("ffmpeg.binary must not be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}

	if c.Demux.ChunkSize <= 0 {
		return fmt.Errorf("demux.chunk_size must be positive, got %d", c.Demux.ChunkSize)
	}
	return nil
}
