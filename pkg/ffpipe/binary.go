package ffpipe

import (
	"os/exec"
)

// DefaultBinary resolves the ffmpeg executable from the system path,
// falling back to the bare name so that a missing binary fails at spawn
// time with a useful error rather than here.
func DefaultBinary() string {
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}
	return "ffmpeg"
}

// IsInstalled reports whether ffmpeg can be executed on this system.
func IsInstalled() bool {
	return IsInstalledAt(DefaultBinary())
}

// IsInstalledAt reports whether the binary at the given path runs and
// exits successfully when asked for its version.
func IsInstalledAt(binary string) bool {
	cmd := exec.Command(binary, "-version")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
