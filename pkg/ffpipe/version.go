package ffpipe

import (
	"errors"
	"fmt"
	"os/exec"
)

// FFmpegVersion runs `ffmpeg -version` against the default binary and
// returns the parsed version token.
func FFmpegVersion() (string, error) {
	return FFmpegVersionAt(DefaultBinary())
}

// FFmpegVersionAt runs `ffmpeg -version` against an explicit binary.
// Note that with `-version` FFmpeg prints to stdout, not stderr.
func FFmpegVersionAt(binary string) (string, error) {
	cmd := exec.Command(binary, "-version")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("opening stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting %s: %w", binary, err)
	}

	version := ""
	parser := NewLogParser(stdout)
	for {
		ev, err := parser.ParseNextEvent()
		if err != nil {
			break
		}
		if _, isEOF := ev.(LogEOF); isEOF {
			break
		}
		if v, ok := ev.(Version); ok {
			version = v.Version
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	if version == "" {
		return "", errors.New("no version line in ffmpeg output")
	}
	return version, nil
}
