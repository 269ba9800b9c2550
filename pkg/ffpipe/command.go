package ffpipe

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Command builds an FFmpeg invocation with a fluent API and spawns it
// with all three standard pipes attached. The builder is a thin,
// stateless translation from method calls to command-line tokens; it
// does not validate that the resulting argument list makes sense to
// FFmpeg.
type Command struct {
	binary string
	args   []string
	logger *slog.Logger
}

// NewCommand builds a command against the ffmpeg binary resolved from
// the system path.
func NewCommand() *Command {
	return NewCommandWithPath(DefaultBinary())
}

// NewCommandWithPath builds a command against an explicit ffmpeg
// binary.
//
// The constructor pre-configures `-loglevel level+info`: the `level`
// flag prefixes every log line with its severity in square brackets,
// which the log parser uses to classify events, and `+info` keeps the
// default informational verbosity. Overriding the log level still
// works, but line classification degrades to the unknown level.
func NewCommandWithPath(binary string) *Command {
	return &Command{
		binary: binary,
		args:   []string{"-loglevel", "level+info"},
	}
}

// WithLogger attaches a logger, propagated to the spawned child's event
// stream.
func (c *Command) WithLogger(logger *slog.Logger) *Command {
	c.logger = logger
	return c
}

// Arg appends a single raw argument.
func (c *Command) Arg(arg string) *Command {
	c.args = append(c.args, arg)
	return c
}

// Args appends raw arguments verbatim.
func (c *Command) Args(args ...string) *Command {
	c.args = append(c.args, args...)
	return c
}

// HideBanner suppresses the copyright and build banner.
func (c *Command) HideBanner() *Command {
	return c.Arg("-hide_banner")
}

// Format sets `-f`: the input format when it precedes Input, or the
// output container when it precedes Output.
func (c *Command) Format(format string) *Command {
	return c.Args("-f", format)
}

// Input adds `-i` with a file path, URL, or device.
func (c *Command) Input(pathOrURL string) *Command {
	return c.Args("-i", pathOrURL)
}

// Output adds an output destination. Use PipeStdout to send output to
// the stdout pipe instead.
func (c *Command) Output(pathOrURL string) *Command {
	return c.Arg(pathOrURL)
}

// Overwrite adds `-y`, overwriting output files without asking.
func (c *Command) Overwrite() *Command {
	return c.Arg("-y")
}

// NoOverwrite adds `-n`, refusing to overwrite existing output files.
func (c *Command) NoOverwrite() *Command {
	return c.Arg("-n")
}

// CodecVideo sets `-c:v` for the next output.
func (c *Command) CodecVideo(codec string) *Command {
	return c.Args("-c:v", codec)
}

// Preset sets `-preset`, trading encoding speed for compression.
func (c *Command) Preset(name string) *Command {
	return c.Args("-preset", name)
}

// CodecAudio sets `-c:a` for the next output.
func (c *Command) CodecAudio(codec string) *Command {
	return c.Args("-c:a", codec)
}

// Duration adds `-t`, limiting the duration of data read or written.
func (c *Command) Duration(duration string) *Command {
	return c.Args("-t", duration)
}

// To adds `-to`, stopping at the given position.
func (c *Command) To(position string) *Command {
	return c.Args("-to", position)
}

// Seek adds `-ss`, seeking the preceding input or output.
func (c *Command) Seek(position string) *Command {
	return c.Args("-ss", position)
}

// SeekEOF adds `-sseof`, seeking relative to the end of the input.
func (c *Command) SeekEOF(position string) *Command {
	return c.Args("-sseof", position)
}

// LimitFileSize adds `-fs`, capping the output file size in bytes.
func (c *Command) LimitFileSize(sizeBytes uint32) *Command {
	return c.Args("-fs", strconv.FormatUint(uint64(sizeBytes), 10))
}

// Filter adds `-filter:v` with a filtergraph for the next output.
func (c *Command) Filter(filtergraph string) *Command {
	return c.Args("-filter:v", filtergraph)
}

// FilterComplex adds `-filter_complex` with a multi-stream filtergraph.
func (c *Command) FilterComplex(filtergraph string) *Command {
	return c.Args("-filter_complex", filtergraph)
}

// Frames adds `-frames:v`, stopping after the given frame count.
func (c *Command) Frames(count uint32) *Command {
	return c.Args("-frames:v", strconv.FormatUint(uint64(count), 10))
}

// Rate adds `-r`, setting the frame rate of the preceding stream.
func (c *Command) Rate(fps float64) *Command {
	return c.Args("-r", strconv.FormatFloat(fps, 'f', -1, 64))
}

// Size adds `-s`, setting frame dimensions as WxH.
func (c *Command) Size(width, height uint32) *Command {
	return c.Args("-s", fmt.Sprintf("%dx%d", width, height))
}

// NoVideo adds `-vn`, dropping video from the output.
func (c *Command) NoVideo() *Command {
	return c.Arg("-vn")
}

// NoAudio adds `-an`, dropping audio from the output.
func (c *Command) NoAudio() *Command {
	return c.Arg("-an")
}

// PixFmt adds `-pix_fmt`, setting the output pixel format.
func (c *Command) PixFmt(format string) *Command {
	return c.Args("-pix_fmt", format)
}

// HWAccel adds `-hwaccel`. Empty, "none", and "auto" are skipped since
// FFmpeg needs a concrete acceleration type.
func (c *Command) HWAccel(accel string) *Command {
	if accel != "" && accel != "none" && accel != "auto" {
		return c.Args("-hwaccel", accel)
	}
	return c
}

// Map adds `-map`, selecting streams for the next output.
func (c *Command) Map(mapSpec string) *Command {
	return c.Args("-map", mapSpec)
}

// Readrate adds `-readrate`, reading input at the given speed multiple.
func (c *Command) Readrate(speed float64) *Command {
	return c.Args("-readrate", strconv.FormatFloat(speed, 'f', -1, 64))
}

// Realtime reads input at its native frame rate, like live hardware.
func (c *Command) Realtime() *Command {
	return c.Readrate(1)
}

// FPSMode adds `-fps_mode`, controlling frame duplication and dropping.
func (c *Command) FPSMode(mode string) *Command {
	return c.Args("-fps_mode", mode)
}

// Testsrc adds a procedurally generated test video input.
func (c *Command) Testsrc() *Command {
	return c.Format("lavfi").Input("testsrc")
}

// TestsrcWithArgs adds a test video input with generator parameters,
// e.g. "testsrc=duration=10:rate=30".
func (c *Command) TestsrcWithArgs(args string) *Command {
	return c.Format("lavfi").Input(args)
}

// Rawvideo requests uncompressed rgb24 output, the format the framed
// demultiplexer can slice without any container.
func (c *Command) Rawvideo() *Command {
	return c.Args("-f", "rawvideo", "-pix_fmt", "rgb24")
}

// PipeStdout directs output to the stdout pipe.
func (c *Command) PipeStdout() *Command {
	return c.Output("-")
}

// BuildArgs returns the accumulated argument list.
func (c *Command) BuildArgs() []string {
	args := make([]string, len(c.args))
	copy(args, c.args)
	return args
}

// String renders the full command line for logging.
func (c *Command) String() string {
	return c.binary + " " + strings.Join(c.args, " ")
}

// Spawn starts the FFmpeg process with stdin, stdout, and stderr all
// piped, returning the running child.
func (c *Command) Spawn() (*Child, error) {
	cmd := exec.Command(c.binary, c.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.binary, err)
	}

	return &Child{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: c.logger,
	}, nil
}
