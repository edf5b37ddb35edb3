package featurizer

import (
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/melfft"
)

func testConfig() Config {
	return Config{
		SampleRate: 16000,
		NFft:       8,
		HopLength:  4,
		NumMels:    4,
		LowFreqHz:  20,
		HighFreqHz: 7000,
	}
}

func newTestFeaturizer() *Featurizer {
	cfg := testConfig()
	bank := melfft.FilterBank(cfg.NumMels, cfg.NFft, cfg.SampleRate, cfg.LowFreqHz, cfg.HighFreqHz)
	return New(cfg, bank)
}

func makeSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i%7) * 0.1
	}
	return s
}

func TestProcessBelowWindowLengthProducesNoFrames(t *testing.T) {
	f := newTestFeaturizer()
	frames := f.Process(makeSamples(5)) // < NFft(8)
	if frames != nil {
		t.Fatalf("Process(5 samples) = %v, want nil", frames)
	}
}

func TestProcessExactWindowProducesOneFrame(t *testing.T) {
	f := newTestFeaturizer()
	frames := f.Process(makeSamples(8))
	if len(frames) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(frames))
	}
	if len(frames[0]) != 4 {
		t.Fatalf("len(frames[0]) = %d, want NumMels=4", len(frames[0]))
	}
}

func TestProcessMultipleWindows(t *testing.T) {
	f := newTestFeaturizer()
	// 20 samples, nFft=8, hop=4: windows at starts 0,4,8,12 (12+8=20<=20) -> 4 frames; samples 16..19 stay as the residual.
	frames := f.Process(makeSamples(20))
	if len(frames) != 4 {
		t.Fatalf("len(frames) = %d, want 4", len(frames))
	}
}

func TestFlushEmitsPaddedResidual(t *testing.T) {
	f := newTestFeaturizer()
	f.Process(makeSamples(5)) // residual = 5 samples, no frames yet
	frames := f.Flush()
	if len(frames) != 1 {
		t.Fatalf("Flush() = %v, want exactly 1 frame", frames)
	}

	// A second Flush with nothing buffered should be a no-op.
	if frames := f.Flush(); frames != nil {
		t.Fatalf("second Flush() = %v, want nil", frames)
	}
}

func TestResetDiscardsResidual(t *testing.T) {
	f := newTestFeaturizer()
	f.Process(makeSamples(5))
	f.Reset()
	if frames := f.Flush(); frames != nil {
		t.Fatalf("Flush() after Reset = %v, want nil", frames)
	}
}

// TestBatchingInvariance exercises invariant 3: framing must not depend on
// how the caller chunks its feed(samples) calls.
func TestBatchingInvariance(t *testing.T) {
	samples := makeSamples(37)

	whole := newTestFeaturizer()
	wholeFrames := whole.Process(samples)
	wholeFrames = append(wholeFrames, whole.Flush()...)

	chunked := newTestFeaturizer()
	var chunkedFrames []Frame
	for _, chunkLen := range []int{3, 5, 1, 10, 18} {
		chunkedFrames = append(chunkedFrames, chunked.Process(samples[:chunkLen])...)
		samples = samples[chunkLen:]
	}
	chunkedFrames = append(chunkedFrames, chunked.Process(samples)...)
	chunkedFrames = append(chunkedFrames, chunked.Flush()...)

	if len(wholeFrames) != len(chunkedFrames) {
		t.Fatalf("len(wholeFrames) = %d, len(chunkedFrames) = %d, want equal", len(wholeFrames), len(chunkedFrames))
	}
	for i := range wholeFrames {
		if len(wholeFrames[i]) != len(chunkedFrames[i]) {
			t.Fatalf("frame %d: different lengths", i)
		}
		for j := range wholeFrames[i] {
			if wholeFrames[i][j] != chunkedFrames[i][j] {
				t.Errorf("frame %d bin %d: whole=%v chunked=%v", i, j, wholeFrames[i][j], chunkedFrames[i][j])
			}
		}
	}
}
