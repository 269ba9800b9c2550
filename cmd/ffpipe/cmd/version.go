package cmd

import (
	"fmt"

	"github.com/jmylchreest/ffpipe/internal/version"
	"github.com/jmylchreest/ffpipe/pkg/ffpipe"
	"github.com/spf13/cobra"
)

// versionCmd prints ffpipe and ffmpeg version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Println(version.String())

		ffmpegVersion, err := ffpipe.FFmpegVersionAt(cfg.FFmpeg.Binary)
		if err != nil {
			fmt.Printf("ffmpeg: not available (%v)\n", err)
			return nil
		}
		fmt.Printf("ffmpeg %s (%s)\n", ffmpegVersion, cfg.FFmpeg.Binary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
