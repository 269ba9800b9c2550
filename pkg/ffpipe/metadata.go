package ffpipe

import "errors"

// ErrMetadataSealed is returned when an event is folded into metadata
// that has already been sealed.
var ErrMetadataSealed = errors.New("metadata is already sealed")

// Metadata accumulates what is known about a run's inputs, outputs and
// stream layout by folding the event stream. Every stream mapping line
// announces one output stream; once the collected output-stream
// descriptors reach that count the metadata seals and becomes
// immutable.
//
// Metadata is not safe for concurrent use. The event stream folds it
// from a single goroutine and workers only ever receive a post-seal
// snapshot.
type Metadata struct {
	expectedOutputStreams int
	inputs                []Input
	outputs               []Output
	inputStreams          []Stream
	outputStreams         []Stream
	sealed                bool
}

// NewMetadata returns an empty, unsealed aggregate.
func NewMetadata() *Metadata {
	return &Metadata{}
}

// IsSealed reports whether all preamble metadata has been gathered.
func (m *Metadata) IsSealed() bool { return m.sealed }

// Inputs returns the declared inputs in order.
func (m *Metadata) Inputs() []Input { return m.inputs }

// Outputs returns the declared outputs in order.
func (m *Metadata) Outputs() []Output { return m.outputs }

// InputStreams returns the collected input stream descriptors.
func (m *Metadata) InputStreams() []Stream { return m.inputStreams }

// OutputStreams returns the collected output stream descriptors.
func (m *Metadata) OutputStreams() []Stream { return m.outputStreams }

// ExpectedDuration returns the first input's duration in seconds.
// Different inputs can disagree on duration; this deliberately does not
// reconcile them and just covers the common single-input case.
func (m *Metadata) ExpectedDuration() (float64, bool) {
	if len(m.inputs) == 0 || m.inputs[0].DurationSec == nil {
		return 0, false
	}
	return *m.inputs[0].DurationSec, true
}

// HandleEvent folds one event into the aggregate. Folding after sealing
// returns ErrMetadataSealed instead of mutating.
func (m *Metadata) HandleEvent(ev Event) error {
	if m.sealed {
		return ErrMetadataSealed
	}

	switch e := ev.(type) {
	case StreamMapping:
		m.expectedOutputStreams++
	case Input:
		m.inputs = append(m.inputs, e)
	case Output:
		m.outputs = append(m.outputs, e)
	case Duration:
		if int(e.InputIndex) < len(m.inputs) {
			seconds := e.Seconds
			m.inputs[e.InputIndex].DurationSec = &seconds
		}
	case InputStream:
		m.inputStreams = append(m.inputStreams, e.Stream)
	case OutputStream:
		m.outputStreams = append(m.outputStreams, e.Stream)
	}

	if m.expectedOutputStreams > 0 && len(m.outputStreams) == m.expectedOutputStreams {
		m.sealed = true
	}
	return nil
}

// snapshot returns copies of the output layout for handing to the
// demultiplexer worker, so nothing is shared by reference across the
// goroutine boundary.
func (m *Metadata) snapshot() (outputStreams []Stream, outputs []Output) {
	outputStreams = make([]Stream, len(m.outputStreams))
	copy(outputStreams, m.outputStreams)
	outputs = make([]Output, len(m.outputs))
	copy(outputs, m.outputs)
	return outputStreams, outputs
}
