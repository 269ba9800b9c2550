package ffpipe

import (
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// eventSink is the rendezvous point between producer workers and the
// consumer. The channel is unbuffered, so a worker cannot get more than
// one event ahead of the consumer; if the consumer stops pulling, the
// worker blocks, the child's pipe buffer fills, and the child itself
// stalls. That chain is the backpressure contract.
type eventSink struct {
	ch       chan Event
	consumer chan struct{} // closed when the consumer walks away

	mu   sync.Mutex
	refs int
}

func newEventSink(refs int) *eventSink {
	return &eventSink{
		ch:       make(chan Event),
		consumer: make(chan struct{}),
		refs:     refs,
	}
}

// send delivers one event, blocking until the consumer accepts it.
// Returns false when the consumer is gone; workers treat that as a
// reason to stop silently, not an error.
func (s *eventSink) send(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.consumer:
		return false
	}
}

// release drops one sender reference; the last release closes the
// channel so the consumer observes end-of-sequence.
func (s *eventSink) release() {
	s.mu.Lock()
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()
	if last {
		close(s.ch)
	}
}

// abandon marks the consumer as gone, unblocking any worker stuck in
// send.
func (s *eventSink) abandon() {
	close(s.consumer)
}

// EventStream merges a running FFmpeg process's diagnostics and piped
// output into one ordered, pull-based sequence of events.
//
// One worker parses stderr from the moment the stream starts. Each
// event is folded into the metadata aggregate as the consumer pulls it;
// the instant the aggregate seals, a second worker starts
// demultiplexing stdout, sharing the same channel so frame and chunk
// events interleave with any remaining diagnostics in arrival order.
// The interleaving across the two pipes follows OS delivery and is not
// deterministic.
//
// EventStream is single-consumer: Next, the filter iterators, and
// CollectMetadata must all be called from one goroutine.
type EventStream struct {
	sink      *eventSink
	meta      *Metadata
	logger    *slog.Logger
	sessionID string

	stderr    io.Reader
	stdout    io.Reader
	child     *Child // optional; enables kill on incomplete metadata
	chunkSize int

	startOnce sync.Once
	txHeld    bool // the stream holds the demuxer's sink ref until the seal decision
	closed    bool
}

// NewEventStream builds a stream over a diagnostic source and an
// optional binary source. Both are normally the stderr and stdout pipes
// of a spawned FFmpeg process (see Child.Events), but any readers with
// the same layout work; tests feed fixtures this way. Pass a nil stdout
// when no binary output is expected.
//
// Workers start lazily on the first pull.
func NewEventStream(stderr io.Reader, stdout io.Reader) *EventStream {
	return &EventStream{
		sink:      newEventSink(2), // stderr worker + pending demuxer
		meta:      NewMetadata(),
		logger:    slog.New(slog.DiscardHandler),
		sessionID: uuid.NewString(),
		stderr:    stderr,
		stdout:    stdout,
		txHeld:    true,
	}
}

// SessionID returns the stream's unique identifier. It is assigned at
// construction and tagged onto every log line the stream emits, so a
// caller multiplexing several children can correlate output with logs.
func (s *EventStream) SessionID() string { return s.sessionID }

// WithLogger attaches a logger for debug-level tracing, tagged with the
// stream's session id.
func (s *EventStream) WithLogger(logger *slog.Logger) *EventStream {
	if logger != nil {
		s.logger = logger.With(
			slog.String("component", "ffpipe"),
			slog.String("session_id", s.sessionID),
		)
	}
	return s
}

// WithChunkSize overrides the chunked-mode scratch buffer size.
func (s *EventStream) WithChunkSize(size int) *EventStream {
	s.chunkSize = size
	return s
}

// withChild links the stream to its child process so that metadata
// failures can terminate it.
func (s *EventStream) withChild(c *Child) *EventStream {
	s.child = c
	return s
}

// Metadata returns the aggregate being folded. It is only safe to read
// from the consumer goroutine.
func (s *EventStream) Metadata() *Metadata { return s.meta }

// start launches the stderr worker.
func (s *EventStream) start() {
	go func() {
		defer s.sink.release()
		parser := NewLogParser(s.stderr)
		for {
			ev, err := parser.ParseNextEvent()
			if err != nil {
				// A parse failure ends the diagnostic stream just like EOF
				// does; the trailing LogEOF keeps the termination contract
				// intact for consumers (and releases the demuxer slot).
				if s.sink.send(Error{Message: err.Error()}) {
					s.sink.send(LogEOF{})
				}
				return
			}
			if !s.sink.send(ev) {
				return
			}
			if _, isEOF := ev.(LogEOF); isEOF {
				return
			}
		}
	}()
}

// Next returns the next event in the merged sequence. The second return
// is false once every worker has finished and released its sender.
func (s *EventStream) Next() (Event, bool) {
	s.startOnce.Do(s.start)

	ev, ok := <-s.sink.ch
	if !ok {
		return nil, false
	}

	if _, isEOF := ev.(LogEOF); isEOF {
		// The diagnostic stream is over. If the demuxer never started it
		// never will, so let go of its sender reference.
		s.releaseTx()
	}

	if !s.meta.IsSealed() {
		if err := s.meta.HandleEvent(ev); err != nil {
			return Error{Message: err.Error()}, true
		}
		if s.meta.IsSealed() {
			if errEv := s.startDemuxer(); errEv != nil {
				return *errEv, true
			}
		}
	}

	return ev, true
}

// startDemuxer runs once, the instant the metadata seals. It hands the
// binary handle and a snapshot of the sealed layout to the demuxer
// worker. A sealed layout with no usable outputs means the output went
// somewhere we cannot follow even though stream mappings promised
// otherwise: the child is terminated and a fatal error reported.
func (s *EventStream) startDemuxer() *Error {
	outputStreams, outputs := s.meta.snapshot()

	if len(outputStreams) == 0 || len(outputs) == 0 {
		s.releaseTx()
		if s.child != nil {
			_ = s.child.Kill()
		}
		s.logger.Error("no output streams in sealed metadata")
		return &Error{Message: "no output streams found"}
	}

	if s.stdout == nil || !s.txHeld {
		s.releaseTx()
		return nil
	}

	d := newDemuxer(s.stdout, s.sink, outputStreams, outputs, s.chunkSize, s.logger)
	if d == nil {
		// Nothing bound for stdout; no worker needed.
		s.releaseTx()
		return nil
	}

	s.logger.Debug("starting output demuxer", slog.Int("streams", len(d.streams)))

	// The worker takes over the stream's sink reference and releases it
	// when it exits.
	s.txHeld = false
	go d.run()
	return nil
}

func (s *EventStream) releaseTx() {
	if s.txHeld {
		s.txHeld = false
		s.sink.release()
	}
}

// Close abandons the stream: workers blocked on a send observe the
// consumer as gone and stop silently. It does not terminate the child
// process; use Child.Quit or Child.Kill for that.
func (s *EventStream) Close() {
	if !s.closed {
		s.closed = true
		s.sink.abandon()
	}
}

// CollectMetadata pulls events until the metadata seals and returns the
// sealed aggregate. Events consumed along the way are folded but not
// replayed. If the diagnostic stream ends first, the child process (if
// any) is terminated and an error summarizing any error events is
// returned.
func (s *EventStream) CollectMetadata() (*Metadata, error) {
	var failures []string
	for !s.meta.IsSealed() {
		ev, ok := s.Next()
		if !ok {
			if s.child != nil {
				_ = s.child.Kill()
			}
			return nil, &IncompleteMetadataError{Failures: failures}
		}
		switch e := ev.(type) {
		case Error:
			failures = append(failures, e.Message)
		case Log:
			if e.Level == LevelError || e.Level == LevelFatal {
				failures = append(failures, e.Message)
			}
		}
	}
	return s.meta, nil
}

// Events iterates the full merged sequence.
func (s *EventStream) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := s.Next()
			if !ok {
				return
			}
			if !yield(ev) {
				s.Close()
				return
			}
		}
	}
}

// Frames filters the sequence down to output video frames.
func (s *EventStream) Frames() iter.Seq[OutputFrame] {
	return func(yield func(OutputFrame) bool) {
		for ev := range s.Events() {
			if frame, ok := ev.(OutputFrame); ok {
				if !yield(frame) {
					return
				}
			}
		}
	}
}

// Chunks filters the sequence down to opaque output chunks.
func (s *EventStream) Chunks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for ev := range s.Events() {
			if chunk, ok := ev.(OutputChunk); ok {
				if !yield(chunk.Data) {
					return
				}
			}
		}
	}
}

// ProgressUpdates filters the sequence down to progress events.
func (s *EventStream) ProgressUpdates() iter.Seq[Progress] {
	return func(yield func(Progress) bool) {
		for ev := range s.Events() {
			if progress, ok := ev.(Progress); ok {
				if !yield(progress) {
					return
				}
			}
		}
	}
}

// Errors filters the sequence down to failure messages: internal Error
// events plus error-level log lines.
func (s *EventStream) Errors() iter.Seq[string] {
	return func(yield func(string) bool) {
		for ev := range s.Events() {
			switch e := ev.(type) {
			case Error:
				if !yield(e.Message) {
					return
				}
			case Log:
				if e.Level == LevelError || e.Level == LevelFatal {
					if !yield(e.Message) {
						return
					}
				}
			}
		}
	}
}

// StderrLines reconstitutes the raw diagnostic text, one line per
// text-borne event, regardless of which variant carries it. Equivalent
// to scanning the child's stderr directly.
func (s *EventStream) StderrLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for ev := range s.Events() {
			if line, ok := RawLine(ev); ok {
				if !yield(line) {
					return
				}
			}
		}
	}
}

// IncompleteMetadataError reports that the diagnostic stream ended
// before the output layout was announced.
type IncompleteMetadataError struct {
	// Failures are the error messages observed before the stream ended.
	Failures []string
}

func (e *IncompleteMetadataError) Error() string {
	msg := "log stream ended before metadata was complete"
	for _, f := range e.Failures {
		msg += "; " + f
	}
	return msg
}
