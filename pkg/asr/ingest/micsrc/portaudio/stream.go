// Package portaudio binds the default input device via PortAudio/CGO and
// exposes it as an InputStream of int16 PCM samples. Folded in directly
// from the teacher's generic pkg/audio/portaudio package, trimmed to the
// capture path since micsrc.Source is the only caller in this module — the
// teacher's OutputStream and DuplexStream (playback and full-duplex) have
// no caller here and were dropped rather than copied along for size.
package portaudio

import (
	"io"
	"sync"
	"time"

	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/micsrc/pcm"
)

// InputStream captures audio from the default input device.
type InputStream struct {
	stream *Stream
	format pcm.Format
	frames int
	mu     sync.Mutex
	closed bool
}

// NewInputStream creates a new input stream for recording.
// format: PCM format (e.g., pcm.L16Mono16K)
// bufferDuration: duration of each read buffer (e.g., 20ms)
func NewInputStream(format pcm.Format, bufferDuration time.Duration) (*InputStream, error) {
	framesPerBuffer := int(format.SamplesInDuration(bufferDuration))

	stream, err := openStream(format.Channels(), 0, float64(format.SampleRate()), framesPerBuffer)
	if err != nil {
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	return &InputStream{
		stream: stream,
		format: format,
		frames: framesPerBuffer,
	}, nil
}

// Read reads PCM samples into the provided buffer.
// Returns the number of samples read (not bytes).
func (is *InputStream) Read(buf []int16) (int, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return 0, io.EOF
	}

	samples, err := is.stream.Read(is.frames)
	if err != nil {
		return 0, err
	}

	n := copy(buf, samples)
	return n, nil
}

// ReadBytes reads PCM samples as bytes (little-endian int16).
func (is *InputStream) ReadBytes(buf []byte) (int, error) {
	samples := make([]int16, len(buf)/2)
	n, err := is.Read(samples)
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		buf[i*2] = byte(samples[i])
		buf[i*2+1] = byte(samples[i] >> 8)
	}
	return n * 2, nil
}

// ReadChunk reads a PCM chunk of the buffer duration.
func (is *InputStream) ReadChunk() (pcm.Chunk, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return nil, io.EOF
	}

	samples, err := is.stream.Read(is.frames)
	if err != nil {
		return nil, err
	}

	// Convert int16 samples to bytes
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}

	return is.format.DataChunk(data), nil
}

// Format returns the PCM format.
func (is *InputStream) Format() pcm.Format {
	return is.format
}

// Close stops and closes the stream.
func (is *InputStream) Close() error {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return nil
	}
	is.closed = true

	return is.stream.Close()
}
