package ffpipe

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jmylchreest/ffpipe/pkg/timecode"
)

// logSection tracks which part of FFmpeg's preamble the parser is
// currently inside. Stream descriptor lines are only valid inside an
// input or output section; the `Stream mapping:` section repurposes the
// same `Stream #` prefix for mapping lines.
type logSection int

const (
	sectionOther logSection = iota
	sectionInput
	sectionOutput
	sectionStreamMapping
)

// LogParser converts FFmpeg's stderr (or stdout, for `-version`) into
// typed events, one logical line at a time. Section state is local to
// the parser instance.
//
// Lines may be terminated by `\n`, `\r\n`, or a bare `\r` — FFmpeg uses
// the last of these to overwrite progress updates in place.
type LogParser struct {
	reader *bufio.Reader

	section      logSection
	sectionIndex uint32 // input/output index when inside such a section
	eof          bool
}

// NewLogParser wraps a raw byte source in a parser.
func NewLogParser(r io.Reader) *LogParser {
	return &LogParser{reader: bufio.NewReader(r)}
}

// ParseNextEvent consumes exactly one logical line and returns its
// event. Lines that match no structured rule come back as Log events;
// the parser never advances silently. At end of input it returns a
// single LogEOF event, and io.EOF on every call after that.
//
// A grammar error (a stream descriptor outside any input/output
// section) or non-UTF-8 input returns a non-nil error; the parser is
// not usable afterwards.
func (p *LogParser) ParseNextEvent() (Event, error) {
	if p.eof {
		return nil, io.EOF
	}

	raw, err := p.readLine()
	if err == io.EOF {
		p.eof = true
		return LogEOF{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("non-UTF-8 bytes in log stream: %q", raw)
	}

	line := strings.TrimSpace(string(raw))

	// Section transitions come first; two of them also produce events.
	if index, ok := parseInputHeader(line); ok {
		p.section = sectionInput
		p.sectionIndex = index
		return Input{Index: index, Raw: line}, nil
	}
	if output, ok := parseOutputHeader(line); ok {
		p.section = sectionOutput
		p.sectionIndex = output.Index
		return output, nil
	}
	if strings.Contains(line, "Stream mapping:") {
		p.section = sectionStreamMapping
	}

	// Content rules, in priority order.
	if version, ok := parseVersion(line); ok {
		return Version{Version: version, Raw: line}, nil
	}
	if flags, ok := parseConfiguration(line); ok {
		return Configuration{Flags: flags, Raw: line}, nil
	}
	if seconds, ok := parseDuration(line); ok {
		if p.section == sectionInput {
			return Duration{InputIndex: p.sectionIndex, Seconds: seconds, Raw: line}, nil
		}
		// A duration outside an input section is just an info line.
		return Log{Level: LevelInfo, Message: line}, nil
	}
	if p.section == sectionStreamMapping && strings.Contains(line, "Stream #") {
		return StreamMapping{Raw: line}, nil
	}
	if stream, ok := parseStream(line); ok {
		switch p.section {
		case sectionInput:
			return InputStream{Stream: stream}, nil
		case sectionOutput:
			return OutputStream{Stream: stream}, nil
		default:
			return nil, fmt.Errorf("unexpected stream specification: %s", line)
		}
	}
	if progress, ok := parseProgress(line); ok {
		p.section = sectionOther
		return progress, nil
	}

	return Log{Level: classifyLevel(line), Message: line}, nil
}

// classifyLevel finds the bracketed severity tag FFmpeg embeds when run
// with `-loglevel level+info`. Without the tag everything degrades to
// LevelUnknown rather than failing.
func classifyLevel(line string) LogLevel {
	switch {
	case strings.Contains(line, "[info]"):
		return LevelInfo
	case strings.Contains(line, "[warning]"):
		return LevelWarning
	case strings.Contains(line, "[error]"):
		return LevelError
	case strings.Contains(line, "[fatal]"):
		return LevelFatal
	default:
		return LevelUnknown
	}
}

// readLine reads bytes up to the next `\r` or `\n`, skipping over any
// run of leading delimiters (so `\r\n` and blank lines do not produce
// empty events). Returns io.EOF only when no content remains.
func (p *LogParser) readLine() ([]byte, error) {
	var buf []byte
	for {
		b, err := p.reader.ReadByte()
		if err == io.EOF {
			if len(buf) == 0 {
				return nil, io.EOF
			}
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
		if b == '\r' || b == '\n' {
			if len(buf) == 0 {
				continue
			}
			return buf, nil
		}
		buf = append(buf, b)
	}
}

// stripLevelPrefix removes the leading severity tag, if present, so the
// structured rules see the same text with or without `-loglevel level`.
func stripLevelPrefix(line string) string {
	for _, tag := range []string{"[info]", "[warning]", "[error]", "[fatal]"} {
		if rest, ok := strings.CutPrefix(line, tag); ok {
			return strings.TrimSpace(rest)
		}
	}
	return line
}

// parseVersion matches `ffmpeg version <token> ...`, typically the very
// first line of output.
func parseVersion(line string) (string, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "ffmpeg version ")
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// parseConfiguration matches `configuration: <flags...>`, the build
// flag list that follows the version banner.
func parseConfiguration(line string) ([]string, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "configuration: ")
	if !ok {
		return nil, false
	}
	return strings.Fields(rest), true
}

// parseInputHeader matches `Input #N, fmt, from '<src>':`.
func parseInputHeader(line string) (uint32, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "Input #")
	if !ok {
		return 0, false
	}
	token := strings.SplitN(rest, ",", 2)[0]
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return 0, false
	}
	index, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(index), true
}

// parseOutputHeader matches `Output #N, fmt, to '<dest>':`.
func parseOutputHeader(line string) (Output, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "Output #")
	if !ok {
		return Output{}, false
	}
	token := strings.SplitN(rest, ",", 2)[0]
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return Output{}, false
	}
	index, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return Output{}, false
	}

	_, after, ok := strings.Cut(rest, " to '")
	if !ok {
		return Output{}, false
	}
	to, _, ok := strings.Cut(after, "'")
	if !ok {
		return Output{}, false
	}

	return Output{Index: uint32(index), To: to, Raw: line}, true
}

// parseDuration matches `Duration: <time>, ...`. "N/A" and unparseable
// times are reported as no-match so the line falls through to a log
// event.
func parseDuration(line string) (float64, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "Duration:")
	if !ok {
		return 0, false
	}
	token := strings.TrimSpace(strings.SplitN(rest, ",", 2)[0])
	seconds, err := timecode.ParseSeconds(token)
	if err != nil {
		return 0, false
	}
	return seconds, true
}

// parseStream matches a stream descriptor line:
//
//	Stream #<parent>:<index>[<substream>](<lang>): <Type>: <fields...>
//
// The bracketed substream marker and the parenthetical language are
// both optional. Fields are split on commas outside parentheses.
func parseStream(line string) (Stream, bool) {
	rest, ok := strings.CutPrefix(stripLevelPrefix(line), "Stream #")
	if !ok {
		return Stream{}, false
	}

	parts := splitCommaOutsideParens(rest)
	if len(parts) == 0 {
		return Stream{}, false
	}
	head := strings.SplitN(parts[0], ":", 4)
	if len(head) < 3 {
		return Stream{}, false
	}

	parentIndex, err := strconv.ParseUint(strings.TrimSpace(head[0]), 10, 32)
	if err != nil {
		return Stream{}, false
	}

	// head[1] can look like `2`, `2(eng)`, or `2[0x3](eng)`. Strip the
	// bracketed substream marker first, then peel off the language.
	indexToken := stripBrackets(head[1])
	indexToken, language := cutParenthetical(indexToken)
	streamIndex, err := strconv.ParseUint(strings.TrimSpace(indexToken), 10, 32)
	if err != nil {
		return Stream{}, false
	}

	streamType := strings.TrimSpace(head[2])

	// The format token can carry trailing junk like `h264 (avc1 / ...)`.
	if len(head) < 4 {
		return Stream{}, false
	}
	format := firstToken(head[3])
	if format == "" {
		return Stream{}, false
	}

	stream := Stream{
		Format:      format,
		Language:    language,
		ParentIndex: uint32(parentIndex),
		StreamIndex: uint32(streamIndex),
		Raw:         line,
	}

	switch streamType {
	case "Video":
		video, ok := parseVideoFields(parts[1:])
		if !ok {
			return Stream{}, false
		}
		stream.Type = StreamVideo
		stream.Video = &video
	case "Audio":
		audio, ok := parseAudioFields(parts[1:])
		if !ok {
			return Stream{}, false
		}
		stream.Type = StreamAudio
		stream.Audio = &audio
	case "Subtitle":
		stream.Type = StreamSubtitle
	default:
		stream.Type = StreamOther
	}

	return stream, true
}

// parseVideoFields reads the comma-separated fields after `Video:`,
// minus the format token: pixel format, `WxH` dimensions, then an fps
// value found by scanning for the first field ending in "fps" (SAR/DAR,
// bitrate, tbr and tbn fields sit in between and are skipped).
func parseVideoFields(fields []string) (VideoData, bool) {
	if len(fields) < 2 {
		return VideoData{}, false
	}

	pixFmt := firstToken(fields[0])
	if pixFmt == "" {
		return VideoData{}, false
	}

	dims := strings.Fields(strings.TrimSpace(fields[1]))
	if len(dims) == 0 {
		return VideoData{}, false
	}
	wToken, hToken, ok := strings.Cut(dims[0], "x")
	if !ok {
		return VideoData{}, false
	}
	width, err := strconv.ParseUint(wToken, 10, 32)
	if err != nil {
		return VideoData{}, false
	}
	height, err := strconv.ParseUint(hToken, 10, 32)
	if err != nil {
		return VideoData{}, false
	}

	var fps float64
	found := false
	for _, field := range fields[2:] {
		trimmed := strings.TrimSpace(field)
		if !strings.HasSuffix(trimmed, "fps") {
			continue
		}
		value := strings.Fields(trimmed)[0]
		fps, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return VideoData{}, false
		}
		found = true
		break
	}
	if !found {
		return VideoData{}, false
	}

	return VideoData{
		PixFmt: pixFmt,
		Width:  uint32(width),
		Height: uint32(height),
		FPS:    fps,
	}, true
}

// parseAudioFields reads the fields after `Audio:`, minus the format
// token: `<rate> Hz`, then the channel layout label.
func parseAudioFields(fields []string) (AudioData, bool) {
	if len(fields) < 2 {
		return AudioData{}, false
	}

	rateFields := strings.Fields(strings.TrimSpace(fields[0]))
	if len(rateFields) < 2 || rateFields[1] != "Hz" {
		return AudioData{}, false
	}
	rate, err := strconv.ParseUint(rateFields[0], 10, 32)
	if err != nil {
		return AudioData{}, false
	}

	channels := strings.TrimSpace(fields[1])
	if channels == "" {
		return AudioData{}, false
	}

	return AudioData{SampleRate: uint32(rate), Channels: channels}, true
}

// parseProgress matches the periodic status line. All seven keys must
// be present; each value is located independently by its key, so field
// order and padding do not matter. "N/A" bitrate and speed parse as
// zero instead of rejecting the line.
func parseProgress(line string) (Progress, bool) {
	s := stripLevelPrefix(line)

	frameToken, ok := valueAfter(s, "frame=")
	if !ok {
		return Progress{}, false
	}
	frame, err := strconv.ParseUint(frameToken, 10, 32)
	if err != nil {
		return Progress{}, false
	}

	fpsToken, ok := valueAfter(s, "fps=")
	if !ok {
		return Progress{}, false
	}
	fps, err := strconv.ParseFloat(fpsToken, 64)
	if err != nil {
		return Progress{}, false
	}

	qToken, ok := valueAfter(s, "q=")
	if !ok {
		return Progress{}, false
	}
	q, err := strconv.ParseFloat(qToken, 64)
	if err != nil {
		return Progress{}, false
	}

	// "size=" also matches inside "Lsize=", which covers both spellings.
	sizeToken, ok := valueAfter(s, "size=")
	if !ok {
		return Progress{}, false
	}
	// FFmpeg 7.0 switched the unit suffix from kB to KiB.
	sizeToken = strings.TrimSuffix(strings.TrimSuffix(sizeToken, "KiB"), "kB")
	sizeKB, err := strconv.ParseUint(sizeToken, 10, 32)
	if err != nil {
		return Progress{}, false
	}

	timeToken, ok := valueAfter(s, "time=")
	if !ok {
		return Progress{}, false
	}

	bitrateToken, ok := valueAfter(s, "bitrate=")
	if !ok {
		return Progress{}, false
	}
	bitrateToken = strings.TrimSuffix(bitrateToken, "kbits/s")
	bitrate, err := strconv.ParseFloat(bitrateToken, 64)
	if err != nil {
		bitrate = 0 // N/A on the very first update
	}

	speedToken, ok := valueAfter(s, "speed=")
	if !ok {
		return Progress{}, false
	}
	speed, err := strconv.ParseFloat(strings.TrimSuffix(speedToken, "x"), 64)
	if err != nil {
		speed = 0
	}

	return Progress{
		Frame:       uint32(frame),
		FPS:         fps,
		Q:           q,
		SizeKB:      uint32(sizeKB),
		Time:        timeToken,
		BitrateKbps: bitrate,
		Speed:       speed,
		Raw:         line,
	}, true
}

// valueAfter locates key in s and returns the next whitespace-delimited
// token after it.
func valueAfter(s, key string) (string, bool) {
	_, after, ok := strings.Cut(s, key)
	if !ok {
		return "", false
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// firstToken trims s and cuts it at the first space or opening paren,
// dropping annotations like `(Main)` or `(tv, progressive)`.
func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " ("); i >= 0 {
		s = s[:i]
	}
	return s
}

// stripBrackets removes every `[...]` group from s.
func stripBrackets(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// cutParenthetical splits `2(eng)` into `2` and `eng`. Without a
// parenthetical the whole string is returned with an empty language.
func cutParenthetical(s string) (string, string) {
	before, after, ok := strings.Cut(s, "(")
	if !ok {
		return s, ""
	}
	return before, strings.TrimSuffix(strings.TrimSpace(after), ")")
}
