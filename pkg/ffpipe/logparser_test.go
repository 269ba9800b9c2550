package ffpipe

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseAll drains the parser, requiring that it terminates normally.
func parseAll(t *testing.T, input string) []Event {
	t.Helper()
	parser := NewLogParser(strings.NewReader(input))
	var events []Event
	for {
		ev, err := parser.ParseNextEvent()
		require.NoError(t, err)
		events = append(events, ev)
		if _, isEOF := ev.(LogEOF); isEOF {
			return events
		}
	}
}

const transcodePreamble = "ffmpeg version 7.1 Copyright (c) 2000-2024 the FFmpeg developers\n" +
	"  built with gcc 14.2.0 (GCC)\n" +
	"  configuration: --enable-gpl --enable-libx264 --enable-libopus\n" +
	"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':\n" +
	"  Duration: 00:00:05.00, start: 0.000000, bitrate: 1205 kb/s\n" +
	"  Stream #0:0(und): Video: h264 (High) (avc1 / 0x31637661), yuv420p(tv, bt709, progressive), 1280x720 [SAR 1:1 DAR 16:9], 1068 kb/s, 30 fps, 30 tbr, 15360 tbn\n" +
	"  Stream #0:1(eng): Audio: aac (LC) (mp4a / 0x6134706D), 44100 Hz, stereo, fltp, 128 kb/s\n" +
	"Stream mapping:\n" +
	"  Stream #0:0 -> #0:0 (h264 (native) -> rawvideo (native))\n" +
	"Output #0, rawvideo, to 'pipe:':\n" +
	"  Stream #0:0: Video: rawvideo (RGB[24] / 0x18424752), rgb24(progressive), 1280x720 [SAR 1:1 DAR 16:9], q=2-31, 663552 kb/s, 30 fps, 30 tbn\n"

func TestLogParser_TranscodePreamble(t *testing.T) {
	events := parseAll(t, transcodePreamble)

	require.Len(t, events, 12)

	version, ok := events[0].(Version)
	require.True(t, ok)
	assert.Equal(t, "7.1", version.Version)

	log, ok := events[1].(Log)
	require.True(t, ok)
	assert.Equal(t, LevelUnknown, log.Level)
	assert.Equal(t, "built with gcc 14.2.0 (GCC)", log.Message)

	conf, ok := events[2].(Configuration)
	require.True(t, ok)
	assert.Equal(t, []string{"--enable-gpl", "--enable-libx264", "--enable-libopus"}, conf.Flags)

	input, ok := events[3].(Input)
	require.True(t, ok)
	assert.Equal(t, uint32(0), input.Index)

	duration, ok := events[4].(Duration)
	require.True(t, ok)
	assert.Equal(t, uint32(0), duration.InputIndex)
	assert.InDelta(t, 5.0, duration.Seconds, 1e-9)

	video, ok := events[5].(InputStream)
	require.True(t, ok)
	assert.Equal(t, "h264", video.Format)
	assert.Equal(t, "und", video.Language)
	assert.Equal(t, uint32(0), video.ParentIndex)
	assert.Equal(t, uint32(0), video.StreamIndex)
	require.Equal(t, StreamVideo, video.Type)
	require.NotNil(t, video.Video)
	assert.Equal(t, "yuv420p", video.Video.PixFmt)
	assert.Equal(t, uint32(1280), video.Video.Width)
	assert.Equal(t, uint32(720), video.Video.Height)
	assert.Equal(t, 30.0, video.Video.FPS)

	audio, ok := events[6].(InputStream)
	require.True(t, ok)
	assert.Equal(t, "aac", audio.Format)
	assert.Equal(t, "eng", audio.Language)
	assert.Equal(t, uint32(1), audio.StreamIndex)
	require.Equal(t, StreamAudio, audio.Type)
	require.NotNil(t, audio.Audio)
	assert.Equal(t, uint32(44100), audio.Audio.SampleRate)
	assert.Equal(t, "stereo", audio.Audio.Channels)

	// "Stream mapping:" itself is an unstructured line; the mapping
	// entry that follows is the structured one.
	log, ok = events[7].(Log)
	require.True(t, ok)
	assert.Equal(t, "Stream mapping:", log.Message)

	mapping, ok := events[8].(StreamMapping)
	require.True(t, ok)
	assert.Contains(t, mapping.Raw, "-> #0:0")

	output, ok := events[9].(Output)
	require.True(t, ok)
	assert.Equal(t, uint32(0), output.Index)
	assert.Equal(t, "pipe:", output.To)
	assert.True(t, output.IsStdout())

	outStream, ok := events[10].(OutputStream)
	require.True(t, ok)
	assert.Equal(t, "rawvideo", outStream.Format)
	require.NotNil(t, outStream.Video)
	assert.Equal(t, "rgb24", outStream.Video.PixFmt)

	_, ok = events[11].(LogEOF)
	assert.True(t, ok)
}

func TestLogParser_EOFIsTerminal(t *testing.T) {
	parser := NewLogParser(strings.NewReader("one line\n"))

	ev, err := parser.ParseNextEvent()
	require.NoError(t, err)
	assert.IsType(t, Log{}, ev)

	ev, err = parser.ParseNextEvent()
	require.NoError(t, err)
	assert.IsType(t, LogEOF{}, ev)

	// After LogEOF every call reports io.EOF.
	for range 3 {
		_, err = parser.ParseNextEvent()
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestLogParser_EmptyInput(t *testing.T) {
	events := parseAll(t, "")
	require.Len(t, events, 1)
	assert.IsType(t, LogEOF{}, events[0])
}

func TestLogParser_LineEndings(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unix", "alpha\nbeta\ngamma\n"},
		{"windows", "alpha\r\nbeta\r\ngamma\r\n"},
		{"carriage return only", "alpha\rbeta\rgamma\r"},
		{"mixed", "alpha\r\nbeta\rgamma\n"},
		{"no trailing newline", "alpha\nbeta\ngamma"},
		{"blank lines skipped", "alpha\n\n\nbeta\n\rgamma\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := parseAll(t, tt.input)
			require.Len(t, events, 4)
			var messages []string
			for _, ev := range events[:3] {
				log, ok := ev.(Log)
				require.True(t, ok)
				messages = append(messages, log.Message)
			}
			assert.Equal(t, []string{"alpha", "beta", "gamma"}, messages)
		})
	}
}

func TestLogParser_InvalidUTF8(t *testing.T) {
	parser := NewLogParser(strings.NewReader("ok line\n\xff\xfe broken\n"))

	ev, err := parser.ParseNextEvent()
	require.NoError(t, err)
	assert.IsType(t, Log{}, ev)

	_, err = parser.ParseNextEvent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-UTF-8")
}

func TestLogParser_LevelClassification(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		level LogLevel
	}{
		{"info", "[info] Press [q] to stop", LevelInfo},
		{"warning", "[warning] deprecated pixel format used", LevelWarning},
		{"error", "[error] Error opening input file missing.mp4.", LevelError},
		{"fatal", "[fatal] no such filter: 'bogus'", LevelFatal},
		{"untagged", "Press [q] to stop", LevelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := parseAll(t, tt.line+"\n")
			require.Len(t, events, 2)
			log, ok := events[0].(Log)
			require.True(t, ok)
			assert.Equal(t, tt.level, log.Level)
			assert.Equal(t, tt.line, log.Message)
		})
	}
}

func TestLogParser_LevelPrefixStructuredLines(t *testing.T) {
	// The severity tag must not hide structured lines from their rules.
	input := "[info] ffmpeg version 6.0 Copyright (c) 2000-2023\n" +
		"[info] Input #0, lavfi, from 'testsrc=duration=1':\n" +
		"[info]   Duration: 00:00:01.00, start: 0.000000, bitrate: N/A\n" +
		"[info] Output #0, null, to '/dev/null':\n"
	events := parseAll(t, input)

	require.Len(t, events, 5)
	version, ok := events[0].(Version)
	require.True(t, ok)
	assert.Equal(t, "6.0", version.Version)
	assert.IsType(t, Input{}, events[1])
	assert.IsType(t, Duration{}, events[2])
	output, ok := events[3].(Output)
	require.True(t, ok)
	assert.Equal(t, "/dev/null", output.To)
	assert.False(t, output.IsStdout())
}

func TestLogParser_DurationOutsideInputSection(t *testing.T) {
	events := parseAll(t, "Duration: 00:01:00.00, start: 0.000000\n")
	require.Len(t, events, 2)
	log, ok := events[0].(Log)
	require.True(t, ok)
	assert.Equal(t, LevelInfo, log.Level)
}

func TestLogParser_DurationNA(t *testing.T) {
	input := "Input #0, lavfi, from 'testsrc':\n" +
		"  Duration: N/A, start: 0.000000, bitrate: N/A\n"
	events := parseAll(t, input)

	require.Len(t, events, 3)
	assert.IsType(t, Input{}, events[0])
	// N/A carries no value; the line stays a plain log line.
	assert.IsType(t, Log{}, events[1])
}

func TestLogParser_StreamOutsideSectionFails(t *testing.T) {
	parser := NewLogParser(strings.NewReader(
		"Stream #0:0: Video: rawvideo, rgb24, 320x240, 25 fps\n"))
	_, err := parser.ParseNextEvent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected stream specification")
}

func TestLogParser_ProgressResetsSection(t *testing.T) {
	// A progress line means the preamble is over, so a stream descriptor
	// after it is no longer attributable to any section.
	input := "Output #0, rawvideo, to 'pipe:':\n" +
		"frame=    1 fps=0.0 q=0.0 size=       0KiB time=00:00:00.00 bitrate=N/A speed=N/A\n" +
		"  Stream #0:0: Video: rawvideo, rgb24, 320x240, 25 fps\n"
	parser := NewLogParser(strings.NewReader(input))

	ev, err := parser.ParseNextEvent()
	require.NoError(t, err)
	assert.IsType(t, Output{}, ev)

	ev, err = parser.ParseNextEvent()
	require.NoError(t, err)
	assert.IsType(t, Progress{}, ev)

	_, err = parser.ParseNextEvent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected stream specification")
}

func TestLogParser_Progress(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Progress
	}{
		{
			name: "steady state",
			line: "frame=  100 fps= 50 q=28.0 size=     256KiB time=00:00:04.00 bitrate= 524.3kbits/s speed=   2x",
			want: Progress{Frame: 100, FPS: 50, Q: 28.0, SizeKB: 256, Time: "00:00:04.00", BitrateKbps: 524.3, Speed: 2},
		},
		{
			name: "legacy kB suffix",
			line: "frame=  100 fps= 50 q=28.0 size=     256kB time=00:00:04.00 bitrate= 524.3kbits/s speed=   2x",
			want: Progress{Frame: 100, FPS: 50, Q: 28.0, SizeKB: 256, Time: "00:00:04.00", BitrateKbps: 524.3, Speed: 2},
		},
		{
			name: "first update with N/A",
			line: "frame=    1 fps=0.0 q=0.0 size=       0KiB time=00:00:00.00 bitrate=N/A speed=N/A",
			want: Progress{Frame: 1, FPS: 0, Q: 0, SizeKB: 0, Time: "00:00:00.00", BitrateKbps: 0, Speed: 0},
		},
		{
			name: "final summary with Lsize",
			line: "frame=  125 fps=0.0 q=-0.0 Lsize=   28125KiB time=00:00:05.00 bitrate=46080.0kbits/s speed=52.1x",
			want: Progress{Frame: 125, FPS: 0, Q: 0, SizeKB: 28125, Time: "00:00:05.00", BitrateKbps: 46080, Speed: 52.1},
		},
		{
			name: "high speed final summary",
			line: "frame= 1996 fps=1984 q=-1.0 Lsize=     372kB time=00:01:19.72 bitrate=  38.2kbits/s speed=79.2x",
			want: Progress{Frame: 1996, FPS: 1984, Q: -1.0, SizeKB: 372, Time: "00:01:19.72", BitrateKbps: 38.2, Speed: 79.2},
		},
		{
			name: "level tagged",
			line: "[info] frame=   10 fps=5.0 q=2.0 size=      64KiB time=00:00:00.40 bitrate=1310.7kbits/s speed=0.2x",
			want: Progress{Frame: 10, FPS: 5, Q: 2, SizeKB: 64, Time: "00:00:00.40", BitrateKbps: 1310.7, Speed: 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := parseAll(t, tt.line+"\n")
			require.Len(t, events, 2)
			progress, ok := events[0].(Progress)
			require.True(t, ok)
			tt.want.Raw = strings.TrimSpace(tt.line)
			assert.Equal(t, tt.want, progress)
		})
	}
}

func TestLogParser_ProgressMissingKeyIsLog(t *testing.T) {
	// Without all seven keys the line is not a progress record.
	line := "frame=  100 fps= 50 q=28.0 time=00:00:04.00 bitrate= 524.3kbits/s speed=   2x"
	events := parseAll(t, line+"\n")
	require.Len(t, events, 2)
	assert.IsType(t, Log{}, events[0])
}

func TestLogParser_SubstreamMarker(t *testing.T) {
	input := "Input #0, mpegts, from 'capture.ts':\n" +
		"  Stream #0:2[0x3](eng): Audio: mp2, 48000 Hz, stereo, s16p, 192 kb/s\n"
	events := parseAll(t, input)

	require.Len(t, events, 3)
	stream, ok := events[1].(InputStream)
	require.True(t, ok)
	assert.Equal(t, uint32(2), stream.StreamIndex)
	assert.Equal(t, "eng", stream.Language)
	assert.Equal(t, "mp2", stream.Format)
}

func TestLogParser_SubtitleAndDataStreams(t *testing.T) {
	input := "Input #0, matroska,webm, from 'movie.mkv':\n" +
		"  Stream #0:2(eng): Subtitle: subrip (srt)\n" +
		"  Stream #0:3: Data: bin_data (text / 0x74786574)\n"
	events := parseAll(t, input)

	require.Len(t, events, 4)
	sub, ok := events[1].(InputStream)
	require.True(t, ok)
	assert.Equal(t, StreamSubtitle, sub.Type)
	assert.Equal(t, "subrip", sub.Format)
	assert.True(t, sub.IsSubtitle())
	assert.Nil(t, sub.Video)
	assert.Nil(t, sub.Audio)

	data, ok := events[2].(InputStream)
	require.True(t, ok)
	assert.Equal(t, StreamOther, data.Type)
}

func TestLogParser_WrappedAVFrameDescriptor(t *testing.T) {
	input := "Input #0, lavfi, from 'testsrc':\n" +
		"  Stream #0:0: Video: wrapped_avframe, rgb24, 320x240 [SAR 1:1 DAR 4:3], 25 fps, 25 tbr, 25 tbn\n"
	events := parseAll(t, input)

	require.Len(t, events, 3)
	stream, ok := events[1].(InputStream)
	require.True(t, ok)
	assert.Equal(t, "wrapped_avframe", stream.Format)
	require.NotNil(t, stream.Video)
	assert.Equal(t, "rgb24", stream.Video.PixFmt)
	assert.Equal(t, uint32(320), stream.Video.Width)
	assert.Equal(t, uint32(240), stream.Video.Height)
	assert.Equal(t, 25.0, stream.Video.FPS)
}

func TestLogParser_FractionalFPS(t *testing.T) {
	input := "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'ntsc.mp4':\n" +
		"  Stream #0:0: Video: h264, yuv420p, 720x480, 29.97 fps, 29.97 tbr, 30k tbn\n"
	events := parseAll(t, input)

	require.Len(t, events, 3)
	stream, ok := events[1].(InputStream)
	require.True(t, ok)
	require.NotNil(t, stream.Video)
	assert.InDelta(t, 29.97, stream.Video.FPS, 1e-9)
}

func TestLogParser_VersionGitBuild(t *testing.T) {
	events := parseAll(t, "ffmpeg version n7.1-104-g2088e39e5b Copyright (c) 2000-2024\n")
	require.Len(t, events, 2)
	version, ok := events[0].(Version)
	require.True(t, ok)
	assert.Equal(t, "n7.1-104-g2088e39e5b", version.Version)
}

func TestLogParser_DegenerateHeaders(t *testing.T) {
	// Header prefixes with no index must fall through to log lines, not
	// blow up the parser.
	lines := []string{
		"Input #",
		"Input # ",
		"Input # , lavfi, from 'testsrc':",
		"Input #x, lavfi, from 'testsrc':",
		"Output #",
		"Output # , rawvideo, to 'pipe:':",
		"Output #9",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			events := parseAll(t, line+"\n")
			require.Len(t, events, 2)
			assert.IsType(t, Log{}, events[0])
		})
	}
}

func TestLogParser_MultipleInputs(t *testing.T) {
	input := "Input #0, lavfi, from 'testsrc':\n" +
		"  Duration: 00:00:10.00, start: 0.000000, bitrate: N/A\n" +
		"Input #1, lavfi, from 'sine':\n" +
		"  Duration: 00:00:03.00, start: 0.000000, bitrate: N/A\n"
	events := parseAll(t, input)

	require.Len(t, events, 5)
	d0, ok := events[1].(Duration)
	require.True(t, ok)
	assert.Equal(t, uint32(0), d0.InputIndex)
	d1, ok := events[3].(Duration)
	require.True(t, ok)
	assert.Equal(t, uint32(1), d1.InputIndex)
	assert.InDelta(t, 3.0, d1.Seconds, 1e-9)
}

func TestRawLine_RoundTrip(t *testing.T) {
	// Every text-borne event must reproduce its trimmed source line.
	lines := []string{
		"ffmpeg version 7.1 Copyright (c) 2000-2024 the FFmpeg developers",
		"configuration: --enable-gpl",
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':",
		"Duration: 00:00:05.00, start: 0.000000, bitrate: 1205 kb/s",
		"Stream #0:0: Video: h264, yuv420p, 1280x720, 30 fps, 30 tbr, 15360 tbn",
		"Stream mapping:",
		"Stream #0:0 -> #0:0 (h264 (native) -> rawvideo (native))",
		"Output #0, rawvideo, to 'pipe:':",
		"Stream #0:0: Video: rawvideo, rgb24, 1280x720, q=2-31, 30 fps, 30 tbn",
		"frame=    1 fps=0.0 q=0.0 size=       0KiB time=00:00:00.00 bitrate=N/A speed=N/A",
		"Press [q] to stop, [?] for help",
	}
	events := parseAll(t, strings.Join(lines, "\n")+"\n")

	require.Len(t, events, len(lines)+1)
	for i, want := range lines {
		raw, ok := RawLine(events[i])
		require.True(t, ok, "event %d (%s) should carry its raw line", i, events[i].Kind())
		assert.Equal(t, want, raw)
	}

	_, ok := RawLine(events[len(lines)])
	assert.False(t, ok, "LogEOF has no source line")
}

func TestRawLine_NonTextEvents(t *testing.T) {
	for _, ev := range []Event{LogEOF{}, Done{}, Error{Message: "x"}, OutputFrame{}, OutputChunk{}} {
		_, ok := RawLine(ev)
		assert.False(t, ok, "%s should not round-trip", ev.Kind())
	}
}
