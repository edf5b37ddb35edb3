// Package featurizer implements the stateful mel-spectrogram front-end
// (spec section 4.1, MelFeaturizer). It is the streaming counterpart of
// haivivi-giztoy/pkg/audio/fbank's batch Extract: instead of requiring the
// whole utterance up front, it carries an unconsumed sample residual across
// calls so that framing is identical regardless of how the caller chunks
// its feed(samples) calls (invariant 3, "featurizer batching invariance").
package featurizer

import "github.com/haivivi/giztoy-asr/pkg/asr/melfft"

// Frame is a single mel frame: a vector of NumMels floats.
type Frame []float32

// Config parameterizes the featurizer. Defaults below match spec section 3:
// 16kHz sample rate, 400-sample (25ms) window, 160-sample (10ms) hop.
type Config struct {
	SampleRate int // R, fixed at 16000 for this module
	NFft       int // window length in samples, also the FFT size
	HopLength  int // stride between successive frames, in samples
	NumMels    int // M, mel filterbank output width
	LowFreqHz  float64
	HighFreqHz float64
}

// DefaultConfig returns the spec's named constants (section 9: magic
// numbers must become named configuration, not literals scattered through
// the code).
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		NFft:       400,
		HopLength:  160,
		NumMels:    128,
		LowFreqHz:  20,
		HighFreqHz: 7600,
	}
}

// Featurizer turns a stream of float32 PCM samples into mel frames. It is
// not safe for concurrent use; the Session serializes access under
// sessionLock (spec section 5).
type Featurizer struct {
	cfg    Config
	window []float64
	bank   [][]float32
	plan   *melfft.Planner

	residual []float32 // unconsumed tail from the previous process() call

	// scratch buffers reused across frames to avoid per-frame allocation.
	frameBuf []float64
	power    []float64
	melBuf   []float32
}

// New constructs a Featurizer. bank is the (M x nFft/2+1) mel filterbank
// matrix; spec section 4.1 treats its construction as an external
// collaborator, so callers typically pass melfft.FilterBank(...)'s result
// here rather than this package building it implicitly.
func New(cfg Config, bank [][]float32) *Featurizer {
	return &Featurizer{
		cfg:      cfg,
		window:   melfft.HannWindow(cfg.NFft),
		bank:     bank,
		plan:     melfft.NewPlanner(cfg.NFft),
		frameBuf: make([]float64, cfg.NFft),
	}
}

// Process appends samples to the internal residual buffer, extracts as many
// complete nFft-length windows as fit at stride hopLength, and advances the
// residual to keep the unconsumed tail. Returns nil if zero frames were
// produced.
func (f *Featurizer) Process(samples []float32) []Frame {
	buf := append(f.residual, samples...)

	n := len(buf)
	nFft, hop := f.cfg.NFft, f.cfg.HopLength
	if n < nFft {
		f.residual = append(f.residual[:0], buf...)
		return nil
	}

	var frames []Frame
	start := 0
	for start+nFft <= n {
		frames = append(frames, f.extract(buf[start:start+nFft]))
		start += hop
	}

	f.residual = append(f.residual[:0], buf[start:]...)
	return frames
}

// Flush emits at most one final frame by right-zero-padding the residual to
// nFft if it contains at least one sample, then resets the residual.
func (f *Featurizer) Flush() []Frame {
	if len(f.residual) == 0 {
		return nil
	}
	padded := make([]float32, f.cfg.NFft)
	copy(padded, f.residual)
	frame := f.extract(padded)
	f.residual = f.residual[:0]
	return []Frame{frame}
}

// Reset discards the residual, restarting the featurizer at frame zero.
func (f *Featurizer) Reset() {
	f.residual = f.residual[:0]
}

func (f *Featurizer) extract(window []float32) Frame {
	for i, s := range window {
		f.frameBuf[i] = float64(s) * f.window[i]
	}
	f.power = f.plan.Power(f.frameBuf, f.power)
	f.melBuf = melfft.Apply(f.bank, f.power, f.melBuf)
	out := make(Frame, len(f.melBuf))
	copy(out, f.melBuf)
	return out
}
