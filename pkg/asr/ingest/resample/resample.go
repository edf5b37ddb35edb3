// Package resample adapts an arbitrary-rate, possibly-stereo int16 PCM
// source into the float32 mono 16kHz stream Session.FeedAudio requires.
// The resampling core (core.go) is adapted from the teacher's generic
// pkg/audio/resampler package, folded directly into this package since
// Source is its only caller in this module. This is a SUPPLEMENTED feature
// (SPEC_FULL.md item 3): it sits strictly outside Session, translating
// bytes in; it never touches session semantics.
package resample

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

// TargetFormat is the session's required input format.
var TargetFormat = Format{SampleRate: model.SampleRate, Stereo: false}

// Source wraps an io.Reader of raw int16 PCM at srcFmt and exposes float32
// mono 16kHz frames suitable for Session.FeedAudio.
type Source struct {
	rs  rawResampler
	buf []byte
}

// New constructs a Source resampling from srcFmt to TargetFormat.
func New(src io.Reader, srcFmt Format) (*Source, error) {
	rs, err := newRawResampler(src, srcFmt, TargetFormat)
	if err != nil {
		return nil, fmt.Errorf("asr/ingest/resample: %w", err)
	}
	return &Source{rs: rs, buf: make([]byte, 4096)}, nil
}

// ReadSamples reads up to len(dst) float32 samples, returning the number
// read. Returns io.EOF once the underlying source is exhausted.
func (s *Source) ReadSamples(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]
	n, err := s.rs.Read(buf)
	n -= n % 2
	for i := 0; i < n/2; i++ {
		v := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		dst[i] = float32(v) / 32768.0
	}
	return n / 2, err
}

// Close releases the underlying resampler.
func (s *Source) Close() error {
	return s.rs.Close()
}
