package ffpipe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// Child is a running FFmpeg process together with its three pipes. It
// is created by Command.Spawn and owns the pipes until each is either
// consumed by Events or explicitly taken over.
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *slog.Logger
}

// Events starts consuming the child's diagnostic and output pipes,
// returning the merged typed event stream. It can only be called once;
// it takes ownership of whichever of stderr/stdout have not already
// been taken.
func (c *Child) Events() (*EventStream, error) {
	if c.stderr == nil {
		return nil, errors.New("stderr already taken; the event stream needs the diagnostic pipe")
	}
	stderr := c.stderr
	c.stderr = nil

	var stdout io.Reader
	if c.stdout != nil {
		stdout = c.stdout
		c.stdout = nil
	}

	return NewEventStream(stderr, stdout).withChild(c).WithLogger(c.logger), nil
}

// TakeStdout transfers ownership of the raw stdout pipe to the caller
// and disables the built-in demultiplexer. Returns nil if the pipe was
// already taken.
func (c *Child) TakeStdout() io.ReadCloser {
	out := c.stdout
	c.stdout = nil
	return out
}

// TakeStderr transfers ownership of the raw stderr pipe to the caller
// and disables the built-in log parser. Returns nil if the pipe was
// already taken.
func (c *Child) TakeStderr() io.ReadCloser {
	errPipe := c.stderr
	c.stderr = nil
	return errPipe
}

// TakeStdin transfers ownership of the stdin pipe to the caller,
// disabling Quit. Returns nil if the pipe was already taken.
func (c *Child) TakeStdin() io.WriteCloser {
	in := c.stdin
	c.stdin = nil
	return in
}

// Quit requests a graceful shutdown by sending the `q` command on the
// child's stdin, the same key press FFmpeg accepts interactively. The
// process finishes writing trailers before exiting; callers that need
// an immediate stop should use Kill.
func (c *Child) Quit() error {
	if c.stdin == nil {
		return errors.New("stdin not available")
	}
	if _, err := c.stdin.Write([]byte("q")); err != nil {
		return fmt.Errorf("sending quit command: %w", err)
	}
	return nil
}

// Kill terminates the process immediately. Any in-flight event stream
// sees the pipes close and winds down cleanly.
func (c *Child) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

// Wait blocks until the process exits. Call after draining the event
// stream; waiting first can deadlock once the pipe buffers fill.
func (c *Child) Wait() error {
	return c.cmd.Wait()
}

// Pid returns the child's process id.
func (c *Child) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
