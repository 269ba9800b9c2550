// ffpipe is a CLI for running FFmpeg commands and streaming their
// diagnostics and output as typed events.
package main

import (
	"os"

	"github.com/jmylchreest/ffpipe/cmd/ffpipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
