// Package micsrc reads from the default input device via portaudio's
// InputStream (adapted from the teacher's generic pkg/audio/portaudio) and
// exposes float32 16kHz mono samples for Session.FeedAudio. pcm.L16Mono16K
// already matches the session's required format, so no resampling stage is
// needed here (unlike webrtcsrc, which must come down from 48kHz).
package micsrc

import (
	"time"

	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/micsrc/pcm"
	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/micsrc/portaudio"
)

// Source wraps a portaudio.InputStream, converting int16 samples to float32.
type Source struct {
	stream *portaudio.InputStream
	buf    []int16
}

// New opens the default input device at 16kHz mono, reading in chunks of
// bufferDuration.
func New(bufferDuration time.Duration) (*Source, error) {
	stream, err := portaudio.NewInputStream(pcm.L16Mono16K, bufferDuration)
	if err != nil {
		return nil, err
	}
	return &Source{stream: stream}, nil
}

// ReadSamples reads up to len(dst) float32 samples from the microphone.
func (s *Source) ReadSamples(dst []float32) (int, error) {
	if cap(s.buf) < len(dst) {
		s.buf = make([]int16, len(dst))
	}
	buf := s.buf[:len(dst)]
	n, err := s.stream.Read(buf)
	for i := 0; i < n; i++ {
		dst[i] = float32(buf[i]) / 32768.0
	}
	return n, err
}

// Close stops and releases the input stream.
func (s *Source) Close() error {
	return s.stream.Close()
}
