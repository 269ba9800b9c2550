// Package cmd implements the CLI commands for ffpipe.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/ffpipe/internal/config"
	"github.com/jmylchreest/ffpipe/internal/observability"
	"github.com/jmylchreest/ffpipe/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cliViper = viper.New()
	cfgFile  string

	// Populated by PersistentPreRunE before any command runs.
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:     "ffpipe",
	Short:   "Run FFmpeg and stream its output as typed events",
	Version: version.Short(),
	Long: `ffpipe wraps an FFmpeg process and converts its log output and piped
media into a single ordered stream of typed events: parsed metadata,
progress updates, log lines, and raw video frames.

Configuration comes from flags, a config file, or environment
variables with the FFPIPE_ prefix:
  FFPIPE_FFMPEG_BINARY   - path to the ffmpeg executable
  FFPIPE_LOGGING_LEVEL   - debug, info, warn, error
  FFPIPE_LOGGING_FORMAT  - text, json

Example:
  ffpipe run -- -f lavfi -i testsrc=duration=5 -f null -`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cliViper, cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger = observability.NewLogger(cfg.Logging)
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("ffmpeg", "ffmpeg", "path to the ffmpeg binary")

	bindFlag(flags, "logging.level", "log-level")
	bindFlag(flags, "logging.format", "log-format")
	bindFlag(flags, "ffmpeg.binary", "ffmpeg")
}

// bindFlag wires a pflag into the CLI viper instance so that flags
// override config file and environment values.
func bindFlag(flags *pflag.FlagSet, key, name string) {
	if flag := flags.Lookup(name); flag != nil {
		_ = cliViper.BindPFlag(key, flag)
	}
}
