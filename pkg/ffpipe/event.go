// Package ffpipe drives an FFmpeg subprocess and converts its log and
// byte output into a single ordered stream of typed events.
//
// FFmpeg writes diagnostics (version banner, input/output declarations,
// stream descriptors, progress updates) to stderr as free text, and any
// piped media payload to stdout as a raw byte stream. This package
// parses the former into structured events, uses them to learn the
// output layout, and then demultiplexes the latter into per-stream
// video frames or opaque chunks. Consumers see one merged, pull-based
// event sequence with backpressure; no string scraping is needed at the
// call site.
package ffpipe

// Event is one item in the merged output sequence of a running FFmpeg
// process. It is a closed union: the concrete types are the event
// structs defined in this file and nothing else.
type Event interface {
	// Kind returns a stable discriminator for the event variant.
	Kind() EventKind
}

// EventKind identifies an Event variant.
type EventKind string

// Event discriminators.
const (
	KindVersion       EventKind = "version"
	KindConfiguration EventKind = "configuration"
	KindInput         EventKind = "input"
	KindDuration      EventKind = "duration"
	KindOutput        EventKind = "output"
	KindStreamMapping EventKind = "stream_mapping"
	KindInputStream   EventKind = "input_stream"
	KindOutputStream  EventKind = "output_stream"
	KindProgress      EventKind = "progress"
	KindLog           EventKind = "log"
	KindLogEOF        EventKind = "log_eof"
	KindError         EventKind = "error"
	KindOutputFrame   EventKind = "output_frame"
	KindOutputChunk   EventKind = "output_chunk"
	KindDone          EventKind = "done"
)

// LogLevel classifies a log line by the severity tag FFmpeg embeds when
// run with `-loglevel level+info`. Lines without a recognizable tag are
// LevelUnknown.
type LogLevel string

// Log levels, in FFmpeg's own naming.
const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelFatal   LogLevel = "fatal"
	LevelUnknown LogLevel = "unknown"
)

// Version is the parsed `ffmpeg version ...` banner line.
type Version struct {
	// Version is the bare version token, e.g. "7.1" or a git build id.
	Version string `json:"version"`
	// Raw is the original log line, verbatim.
	Raw string `json:"raw"`
}

// Configuration is the parsed `configuration: ...` banner line listing
// the flags FFmpeg was built with.
type Configuration struct {
	Flags []string `json:"flags"`
	Raw   string   `json:"raw"`
}

// Input is a parsed `Input #N, ...` section header.
type Input struct {
	Index uint32 `json:"index"`
	// DurationSec is filled in by the metadata aggregator once the
	// matching Duration event has been seen. Nil when unknown or N/A.
	DurationSec *float64 `json:"duration_sec,omitempty"`
	Raw         string   `json:"raw"`
}

// Duration is a parsed `Duration: ...` line inside an input section.
type Duration struct {
	// InputIndex is the input the duration belongs to.
	InputIndex uint32  `json:"input_index"`
	Seconds    float64 `json:"seconds"`
	Raw        string  `json:"raw"`
}

// Output is a parsed `Output #N, fmt, to '<dest>'` section header.
type Output struct {
	Index uint32 `json:"index"`
	// To is the quoted destination: a file path, URL, or a stdout alias.
	To  string `json:"to"`
	Raw string `json:"raw"`
}

// stdoutAliases are the destination spellings FFmpeg accepts for "write
// to this process's standard output". Classification is exact-match.
var stdoutAliases = []string{"pipe:", "pipe:1", "-", "/dev/stdout"}

// IsStdout reports whether the output destination is the child
// process's standard output.
func (o Output) IsStdout() bool {
	for _, alias := range stdoutAliases {
		if o.To == alias {
			return true
		}
	}
	return false
}

// StreamMapping is one `Stream #i:j -> #k:l` line from the
// `Stream mapping:` section. Each one announces exactly one output
// stream, which is how the expected output-stream count is learned
// before any output stream descriptor has been printed.
type StreamMapping struct {
	Raw string `json:"raw"`
}

// StreamKind tags the media type of a Stream.
type StreamKind string

// Stream kinds.
const (
	StreamVideo    StreamKind = "video"
	StreamAudio    StreamKind = "audio"
	StreamSubtitle StreamKind = "subtitle"
	StreamOther    StreamKind = "other"
)

// VideoData holds the video-specific fields of a stream descriptor.
type VideoData struct {
	// PixFmt is the pixel format token, e.g. "rgb24", with any trailing
	// parenthetical annotation stripped.
	PixFmt string  `json:"pix_fmt"`
	Width  uint32  `json:"width"`
	Height uint32  `json:"height"`
	FPS    float64 `json:"fps"`
}

// AudioData holds the audio-specific fields of a stream descriptor.
type AudioData struct {
	SampleRate uint32 `json:"sample_rate"`
	// Channels is the channel layout label, e.g. "stereo", "5.1", "mono".
	Channels string `json:"channels"`
}

// Stream is a parsed `Stream #p:i...` descriptor belonging to a
// declared input or output.
type Stream struct {
	// Format is the codec or wrapper name, e.g. "h264" or "rawvideo".
	Format string `json:"format"`
	// Language is the three-letter language code, empty if absent.
	Language string `json:"language,omitempty"`
	// ParentIndex is the index of the owning input or output.
	ParentIndex uint32 `json:"parent_index"`
	// StreamIndex is the index within the parent, with any bracketed
	// substream marker (e.g. `[0x3]`) stripped.
	StreamIndex uint32     `json:"stream_index"`
	Type        StreamKind `json:"type"`

	// Exactly one of Video/Audio is set, matching Type; both are nil for
	// subtitle and other streams.
	Video *VideoData `json:"video,omitempty"`
	Audio *AudioData `json:"audio,omitempty"`

	Raw string `json:"raw"`
}

// IsVideo reports whether the stream is a video stream.
func (s Stream) IsVideo() bool { return s.Type == StreamVideo }

// IsAudio reports whether the stream is an audio stream.
func (s Stream) IsAudio() bool { return s.Type == StreamAudio }

// IsSubtitle reports whether the stream is a subtitle stream.
func (s Stream) IsSubtitle() bool { return s.Type == StreamSubtitle }

// InputStream is a stream descriptor seen inside an input section.
type InputStream struct {
	Stream
}

// OutputStream is a stream descriptor seen inside an output section.
type OutputStream struct {
	Stream
}

// Progress is a parsed single-line status record, emitted periodically
// while FFmpeg runs.
type Progress struct {
	Frame       uint32  `json:"frame"`
	FPS         float64 `json:"fps"`
	Q           float64 `json:"q"`
	SizeKB      uint32  `json:"size_kb"`
	Time        string  `json:"time"`
	BitrateKbps float64 `json:"bitrate_kbps"`
	Speed       float64 `json:"speed"`
	Raw         string  `json:"raw"`
}

// Log is a diagnostic line that matched no structured rule, classified
// by its embedded severity tag.
type Log struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// LogEOF marks the end of the diagnostic stream. It is emitted exactly
// once, even when the process was killed before any metadata appeared.
type LogEOF struct{}

// Error is an in-band failure report: grammar errors, I/O failures,
// incomplete metadata, or unsupported configurations. Errors travel in
// the same sequence as normal events so consumers observe them in their
// natural temporal position.
type Error struct {
	Message string `json:"message"`
}

// OutputFrame is one whole decoded video frame read from stdout in
// framed mode. Data is exactly the frame size for the pixel format and
// dimensions.
type OutputFrame struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	PixFmt string `json:"pix_fmt"`
	// OutputIndex identifies the stream among those bound for stdout,
	// in declared order.
	OutputIndex uint32 `json:"output_index"`
	// FrameNum counts frames per output stream, starting at 0.
	FrameNum uint32 `json:"frame_num"`
	// TimestampSec is FrameNum divided by the stream's frame rate.
	TimestampSec float64 `json:"timestamp_sec"`
	Data         []byte  `json:"-"`
}

// OutputChunk is an opaque byte run read from stdout in chunked mode.
// Its length carries no alignment guarantee.
type OutputChunk struct {
	Data []byte `json:"-"`
}

// Done marks the end of the byte stream; the demultiplexer emits it
// exactly once before exiting.
type Done struct{}

func (Version) Kind() EventKind       { return KindVersion }
func (Configuration) Kind() EventKind { return KindConfiguration }
func (Input) Kind() EventKind         { return KindInput }
func (Duration) Kind() EventKind      { return KindDuration }
func (Output) Kind() EventKind        { return KindOutput }
func (StreamMapping) Kind() EventKind { return KindStreamMapping }
func (InputStream) Kind() EventKind   { return KindInputStream }
func (OutputStream) Kind() EventKind  { return KindOutputStream }
func (Progress) Kind() EventKind      { return KindProgress }
func (Log) Kind() EventKind           { return KindLog }
func (LogEOF) Kind() EventKind        { return KindLogEOF }
func (Error) Kind() EventKind         { return KindError }
func (OutputFrame) Kind() EventKind   { return KindOutputFrame }
func (OutputChunk) Kind() EventKind   { return KindOutputChunk }
func (Done) Kind() EventKind          { return KindDone }

// RawLine returns the original diagnostic line an event was parsed
// from, reproducing the source text exactly. The second return is false
// for events that did not originate from a text line (frames, chunks,
// terminals, internal errors).
func RawLine(ev Event) (string, bool) {
	switch e := ev.(type) {
	case Version:
		return e.Raw, true
	case Configuration:
		return e.Raw, true
	case Input:
		return e.Raw, true
	case Duration:
		return e.Raw, true
	case Output:
		return e.Raw, true
	case StreamMapping:
		return e.Raw, true
	case InputStream:
		return e.Raw, true
	case OutputStream:
		return e.Raw, true
	case Progress:
		return e.Raw, true
	case Log:
		return e.Message, true
	default:
		return "", false
	}
}
