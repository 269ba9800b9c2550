package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmylchreest/ffpipe/pkg/ffpipe"
	"github.com/spf13/cobra"
)

var (
	runJSON  bool
	runStats bool
)

// runCmd executes an FFmpeg command line and streams its typed events.
var runCmd = &cobra.Command{
	Use:   "run -- [ffmpeg args...]",
	Short: "Run an FFmpeg command and stream its events",
	Long: `Run spawns FFmpeg with the given arguments and prints every event the
pipeline produces: parsed metadata, progress updates, log lines, and
summaries of any frames or chunks read from stdout.

Everything after -- is passed to FFmpeg verbatim.

Examples:
  ffpipe run -- -f lavfi -i testsrc=duration=5 -f null -
  ffpipe run --json -- -i in.mp4 -c:v libx264 out.mp4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print events as JSON lines")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "log child process resource usage")
	rootCmd.AddCommand(runCmd)
}

func runRun(_ *cobra.Command, args []string) error {
	command := ffpipe.NewCommandWithPath(cfg.FFmpeg.Binary).
		WithLogger(logger).
		Args(args...)

	logger.Debug("spawning ffmpeg", slog.String("command", command.String()))

	child, err := command.Spawn()
	if err != nil {
		return fmt.Errorf("spawning ffmpeg: %w", err)
	}

	if runStats {
		monitor, err := child.Monitor(2 * time.Second)
		if err != nil {
			logger.Warn("process monitoring unavailable", slog.String("error", err.Error()))
		} else {
			defer monitor.Stop()
			go logStats(monitor)
		}
	}

	stream, err := child.Events()
	if err != nil {
		_ = child.Kill()
		return err
	}
	stream = stream.WithChunkSize(cfg.Demux.ChunkSize)
	logger.Debug("streaming events",
		slog.Int("pid", child.Pid()),
		slog.String("session_id", stream.SessionID()))

	failed := false
	for ev := range stream.Events() {
		if _, isErr := ev.(ffpipe.Error); isErr {
			failed = true
		}
		printEvent(ev)
	}

	if err := child.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	if failed {
		return fmt.Errorf("ffmpeg reported errors")
	}
	return nil
}

// logStats periodically logs resource usage samples until the monitor
// stops producing new ones.
func logStats(monitor *ffpipe.ProcessMonitor) {
	var last time.Time
	for {
		time.Sleep(2 * time.Second)
		stats := monitor.Stats()
		if stats.SampledAt.Equal(last) {
			return
		}
		last = stats.SampledAt
		logger.Info("process stats",
			slog.Float64("cpu_percent", stats.CPUPercent),
			slog.Uint64("rss_bytes", stats.MemoryRSSBytes))
	}
}

// printEvent renders one event to stdout. Frame and chunk payloads are
// summarized rather than dumped.
func printEvent(ev ffpipe.Event) {
	if runJSON {
		printEventJSON(ev)
		return
	}

	switch e := ev.(type) {
	case ffpipe.OutputFrame:
		fmt.Printf("[frame] stream=%d num=%d ts=%.3fs %dx%d %s (%d bytes)\n",
			e.OutputIndex, e.FrameNum, e.TimestampSec, e.Width, e.Height, e.PixFmt, len(e.Data))
	case ffpipe.OutputChunk:
		fmt.Printf("[chunk] %d bytes\n", len(e.Data))
	case ffpipe.Progress:
		fmt.Printf("[progress] frame=%d fps=%.1f time=%s speed=%.2fx\n",
			e.Frame, e.FPS, e.Time, e.Speed)
	case ffpipe.Error:
		fmt.Printf("[error] %s\n", e.Message)
	case ffpipe.Done:
		fmt.Println("[done]")
	case ffpipe.LogEOF:
		fmt.Println("[eof]")
	default:
		if line, ok := ffpipe.RawLine(ev); ok {
			fmt.Printf("[%s] %s\n", ev.Kind(), line)
		} else {
			fmt.Printf("[%s]\n", ev.Kind())
		}
	}
}

// jsonEvent wraps an event with its discriminator for JSON output.
type jsonEvent struct {
	Kind  ffpipe.EventKind `json:"kind"`
	Event ffpipe.Event     `json:"event"`
	Bytes int              `json:"bytes,omitempty"`
}

func printEventJSON(ev ffpipe.Event) {
	wrapped := jsonEvent{Kind: ev.Kind(), Event: ev}
	switch e := ev.(type) {
	case ffpipe.OutputFrame:
		wrapped.Bytes = len(e.Data)
	case ffpipe.OutputChunk:
		wrapped.Bytes = len(e.Data)
	}
	if err := json.NewEncoder(os.Stdout).Encode(wrapped); err != nil {
		logger.Warn("encoding event", slog.String("error", err.Error()))
	}
}
