// Package events implements the bounded, single-producer EventStream (spec
// section 4, "EventStream") that delivers TranscriptionEvent variants to a
// host. It is built on eventQueue (queue.go), a circular buffer adapted
// from the teacher's generic pkg/buffer.BlockBuffer — the same kind of ring
// buffer haivivi-giztoy/pkg/genx/stream_builder.go uses to back its own
// Stream type — narrowed here from StreamEvent's single struct shape and
// byte/generic Read/Write surface down to a small closed interface of four
// concrete event types and the Add/Next/CloseWrite operations Sink/Stream
// actually use.
package events

// Event is implemented by DisplayUpdate, Confirmed, Stats, and Ended — the
// four TranscriptionEvent variants from spec section 6. The marker method
// keeps the set closed to this package.
type Event interface {
	isEvent()
}

// DisplayUpdate carries the current confirmed/provisional split for live
// rendering. Per invariant 2, ConfirmedText always equals the most recent
// Confirmed.Text (or empty), and the full visible text is
// appendText(ConfirmedText, ProvisionalText).
type DisplayUpdate struct {
	ConfirmedText   string
	ProvisionalText string
}

func (DisplayUpdate) isEvent() {}

// Confirmed announces that the confirmed transcript prefix has grown to
// Text. Per invariant 1, Text is monotonically prefix-extending across
// successive Confirmed events.
type Confirmed struct {
	Text string
}

func (Confirmed) isEvent() {}

// Stats reports periodic runtime statistics.
type Stats struct {
	EncodedWindowCount int
	TotalAudioSeconds  float64
	TokensPerSecond    float64
	RealTimeFactor     float64
	PeakMemoryGB       float64
}

func (Stats) isEvent() {}

// Ended is the terminal event: exactly one is emitted after stop(), none
// after cancel() (invariant 7).
type Ended struct {
	FullText string
}

func (Ended) isEvent() {}

// bufferCapacity bounds the channel so a slow consumer applies backpressure
// to the producer rather than buffering unboundedly (spec section 5).
const bufferCapacity = 64

// Stream is the single-producer, ordered event channel a Session exposes to
// its host.
type Stream struct {
	buf *eventQueue
}

// NewStream constructs an empty Stream.
func NewStream() *Stream {
	return &Stream{buf: newEventQueue(bufferCapacity)}
}

// Sink is the producer-side handle a Session holds; it is not exposed to
// hosts, who only ever see the Stream's receive side.
type Sink struct {
	stream *Stream
}

// Sink returns the producer handle for this Stream. Call exactly once per
// Stream; the Session keeps this handle for its own lifetime.
func (s *Stream) Sink() *Sink {
	return &Sink{stream: s}
}

// Emit appends e to the stream in program order. It may briefly block if
// the consumer is slow (accepted backpressure policy, spec section 5: drop
// no events).
func (s *Sink) Emit(e Event) error {
	return s.stream.buf.Add(e)
}

// Close closes the stream for writing. Subsequent Next calls drain any
// buffered events, then return ErrIteratorDone.
func (s *Sink) Close() error {
	return s.stream.buf.CloseWrite()
}

// Next blocks until the next event is available, the stream is closed
// (returning ErrIteratorDone), or some other error terminates it.
func (s *Stream) Next() (Event, error) {
	return s.buf.Next()
}
