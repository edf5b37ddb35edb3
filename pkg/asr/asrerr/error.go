// Package asrerr defines the error taxonomy used across the streaming ASR
// pipeline. It follows the same shape the teacher uses for its speech
// clients: a small Kind enum plus a wrapping Error struct, so callers can
// classify failures with errors.Is/errors.As without parsing message text.
package asrerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Session behavior (section 7 of the design) keys
// off Kind, never off the message string.
type Kind int

const (
	// KindUnknown is the zero value; never constructed deliberately.
	KindUnknown Kind = iota
	// KindAudioDecodeFailure marks an upstream file/codec failure. It never
	// reaches the core Session — ingest adapters surface it before feedAudio.
	KindAudioDecodeFailure
	// KindEncoderFailure marks a failure thrown by the external acoustic
	// encoder or LM during a decode pass. Fatal to that pass only.
	KindEncoderFailure
	// KindTokenizerUnavailable marks a decode pass that could not run
	// because no tokenizer is bound. The pass becomes a no-op.
	KindTokenizerUnavailable
	// KindCancelled marks a decode or stop task that observed cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAudioDecodeFailure:
		return "audio_decode_failure"
	case KindEncoderFailure:
		return "encoder_failure"
	case KindTokenizerUnavailable:
		return "tokenizer_unavailable"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's packages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("asr: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
