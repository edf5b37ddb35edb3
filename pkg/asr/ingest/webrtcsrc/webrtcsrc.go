// Package webrtcsrc reads a remote Opus audio track from a pion WebRTC peer
// connection and exposes it as float32 16kHz mono samples, adapting the
// gear.WebRTCMic pattern (RTP read -> opus decode -> PCM) from the teacher's
// cmd/giztoy/commands/gear/webrtc.go, with a resample.Source stage appended
// since the browser sends 48kHz and Session.FeedAudio requires 16kHz.
package webrtcsrc

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v3"

	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/resample"
	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/webrtcsrc/opus"
)

const (
	trackSampleRate = 48000
	trackChannels   = 1
)

// Source reads Opus RTP packets from a remote WebRTC audio track, decodes
// them, and resamples to the session's required format.
type Source struct {
	track   *webrtc.TrackRemote
	decoder *opus.Decoder
	rs      *resample.Source

	pcmChan chan []byte
	closed  atomic.Bool
	done    chan struct{}
}

// New starts reading RTP from track in a background goroutine and returns a
// Source that yields resampled float32 samples via ReadSamples.
func New(track *webrtc.TrackRemote) (*Source, error) {
	decoder, err := opus.NewDecoder(trackSampleRate, trackChannels)
	if err != nil {
		return nil, fmt.Errorf("asr/ingest/webrtcsrc: create opus decoder: %w", err)
	}

	s := &Source{
		track:   track,
		decoder: decoder,
		pcmChan: make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	rs, err := resample.New(s.pcmReader(), resample.Format{SampleRate: trackSampleRate, Stereo: false})
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("asr/ingest/webrtcsrc: create resampler: %w", err)
	}
	s.rs = rs

	go s.readLoop()

	return s, nil
}

// ReadSamples reads up to len(dst) resampled float32 samples.
func (s *Source) ReadSamples(dst []float32) (int, error) {
	return s.rs.ReadSamples(dst)
}

// Close stops the read loop and releases the decoder.
func (s *Source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.rs.Close()
	s.decoder.Close()
	return nil
}

func (s *Source) readLoop() {
	defer close(s.pcmChan)
	for {
		packet, _, err := s.track.ReadRTP()
		if err != nil {
			slog.Debug("asr/ingest/webrtcsrc: track read ended", "error", err)
			return
		}

		pcmBytes, err := s.decoder.Decode(packet.Payload)
		if err != nil {
			slog.Warn("asr/ingest/webrtcsrc: opus decode failed", "error", err)
			continue
		}

		select {
		case <-s.done:
			return
		case s.pcmChan <- pcmBytes:
		default:
			slog.Warn("asr/ingest/webrtcsrc: pcm buffer full, dropping frame")
		}
	}
}

// pcmReader adapts pcmChan to an io.Reader of raw int16 PCM bytes, the shape
// resample.New expects.
func (s *Source) pcmReader() io.Reader {
	return &chanReader{ch: s.pcmChan}
}

type chanReader struct {
	ch      chan []byte
	pending []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		buf, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.pending = buf
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
