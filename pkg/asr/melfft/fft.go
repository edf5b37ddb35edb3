// Package melfft provides the real FFT and mel filterbank construction used
// by the default mel front-end. It is a standalone, allocation-light
// building block: pkg/asr/featurizer treats the filterbank matrix as an
// external collaborator (spec section 4.1) and calls into this package
// through FilterBank, Apply, and a *Planner it keeps across frames.
package melfft

import "gonum.org/v1/gonum/dsp/fourier"

// FFT computes the real-input FFT of frame (any length n, e.g. 400) and
// returns the magnitude-squared power spectrum for bins [0, n/2], i.e. a
// slice of length n/2+1. frame is not modified.
//
// This wraps gonum's fourier.FFT rather than hand-rolling a Cooley-Tukey
// pass: gonum already ships a real-input transform, and reusing it keeps
// the featurizer's hot path allocation-light via a reusable *FFT plan
// (see Planner).
func FFT(frame []float64) []float64 {
	p := NewPlanner(len(frame))
	return p.Power(frame, nil)
}

// Planner holds a reusable gonum FFT plan for a fixed frame size, avoiding
// the per-call setup cost of fourier.NewFFT when processing many frames of
// the same nFft (the common case: one Planner per MelFeaturizer).
type Planner struct {
	n    int
	fft  *fourier.FFT
	freq []complex128
}

// NewPlanner returns a Planner for real-valued input frames of length n.
func NewPlanner(n int) *Planner {
	return &Planner{n: n, fft: fourier.NewFFT(n)}
}

// Power computes the magnitude-squared spectrum of frame (length p.n) into
// dst (reusing it if it has capacity n/2+1), returning the result.
func (p *Planner) Power(frame []float64, dst []float64) []float64 {
	p.freq = p.fft.Coefficients(p.freq, frame)
	half := p.n/2 + 1
	if cap(dst) < half {
		dst = make([]float64, half)
	}
	dst = dst[:half]
	for k := 0; k < half; k++ {
		c := p.freq[k]
		re, im := real(c), imag(c)
		dst[k] = re*re + im*im
	}
	return dst
}
