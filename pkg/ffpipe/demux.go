package ffpipe

import (
	"errors"
	"io"
	"log/slog"
)

// DefaultChunkSize is the scratch buffer size used in chunked mode,
// when frame boundaries are unknown.
const DefaultChunkSize = 64 * 1024

// demuxStrategy is decided exactly once after sealing and never
// re-evaluated per read.
type demuxStrategy int

const (
	demuxFramed demuxStrategy = iota
	demuxChunked
)

// demuxer slices the child's stdout byte stream into events using the
// sealed output layout. In framed mode every stdout-bound raw video
// stream gets a fixed-size buffer read in strict round-robin order; in
// chunked mode the stream is forwarded as opaque byte runs.
type demuxer struct {
	reader    io.Reader
	sink      *eventSink
	chunkSize int
	logger    *slog.Logger

	// Stdout-bound video streams, in declared order.
	streams    []Stream
	strategy   demuxStrategy
	frameSizes []uint64
}

// newDemuxer filters the sealed layout down to stdout-bound video
// streams and picks the strategy. A nil demuxer means nothing is bound
// for stdout and no worker needs to run.
func newDemuxer(r io.Reader, sink *eventSink, outputStreams []Stream, outputs []Output, chunkSize int, logger *slog.Logger) *demuxer {
	var stdoutVideo []Stream
	for _, stream := range outputStreams {
		if !stream.IsVideo() {
			continue
		}
		if int(stream.ParentIndex) >= len(outputs) {
			continue
		}
		if outputs[stream.ParentIndex].IsStdout() {
			stdoutVideo = append(stdoutVideo, stream)
		}
	}
	if len(stdoutVideo) == 0 {
		return nil
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &demuxer{
		reader:    r,
		sink:      sink,
		chunkSize: chunkSize,
		logger:    logger,
		streams:   stdoutVideo,
	}
}

// chooseStrategy selects framed mode only when every stdout-bound video
// stream is uncompressed rawvideo with a known pixel format and all
// share one frame rate. Anything else falls back to chunked mode; some
// fallbacks also announce an error first, since they usually mean the
// command was not what the caller intended.
func (d *demuxer) chooseStrategy() demuxStrategy {
	rawCount := 0
	for _, stream := range d.streams {
		if stream.Format == "rawvideo" {
			rawCount++
		}
	}
	if rawCount == 0 {
		// Encoded output has no predictable frame boundaries.
		return demuxChunked
	}
	if rawCount < len(d.streams) {
		// Raw and encoded payloads interleaved on one pipe cannot be
		// separated again.
		d.sink.send(Error{Message: "mixed raw and non-raw streams on stdout are not supported; falling back to chunked output"})
		return demuxChunked
	}

	fps := d.streams[0].Video.FPS
	for _, stream := range d.streams {
		if stream.Video.FPS != fps || stream.Video.FPS <= 0 {
			d.sink.send(Error{Message: "multiple stdout streams with different frame rates are not supported; falling back to chunked output"})
			return demuxChunked
		}
	}

	d.frameSizes = make([]uint64, len(d.streams))
	for i, stream := range d.streams {
		size, ok := BytesPerFrame(stream.Video.PixFmt, stream.Video.Width, stream.Video.Height)
		if !ok {
			d.logger.Debug("unknown frame size, using chunked output",
				slog.String("pix_fmt", stream.Video.PixFmt))
			return demuxChunked
		}
		d.frameSizes[i] = size
	}
	return demuxFramed
}

// run chooses the strategy, reads stdout to completion emitting frame
// or chunk events, then sends exactly one Done event. It releases its
// sink reference on exit. Send failures mean the consumer is gone and
// stop the worker silently. Strategy choice happens here rather than in
// the constructor because it can itself emit error events, and sends
// must come from the worker side of the rendezvous channel.
func (d *demuxer) run() {
	defer d.sink.release()

	d.strategy = d.chooseStrategy()
	switch d.strategy {
	case demuxFramed:
		d.readFramed()
	case demuxChunked:
		d.readChunked()
	}

	d.sink.send(Done{})
}

// readFramed reads whole frames in strict round-robin order matching
// declared stream order. A short or zero-length read ends the loop
// cleanly; any other failure surfaces as an Error event.
func (d *demuxer) readFramed() {
	buffers := make([][]byte, len(d.streams))
	for i, size := range d.frameSizes {
		buffers[i] = make([]byte, size)
	}

	frameCounts := make([]uint32, len(d.streams))
	for {
		for i, stream := range d.streams {
			_, err := io.ReadFull(d.reader, buffers[i])
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				d.sink.send(Error{Message: "reading output frame: " + err.Error()})
				return
			}

			data := make([]byte, len(buffers[i]))
			copy(data, buffers[i])
			frame := OutputFrame{
				Width:        stream.Video.Width,
				Height:       stream.Video.Height,
				PixFmt:       stream.Video.PixFmt,
				OutputIndex:  uint32(i),
				FrameNum:     frameCounts[i],
				TimestampSec: float64(frameCounts[i]) / stream.Video.FPS,
				Data:         data,
			}
			frameCounts[i]++
			if !d.sink.send(frame) {
				return
			}
		}
	}
}

// readChunked forwards every nonzero read as an opaque chunk.
func (d *demuxer) readChunked() {
	buf := make([]byte, d.chunkSize)
	for {
		n, err := d.reader.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !d.sink.send(OutputChunk{Data: data}) {
				return
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return
		}
		if err != nil {
			d.sink.send(Error{Message: "reading output chunk: " + err.Error()})
			return
		}
	}
}
