package melfft

import (
	"math"
	"testing"
)

func TestHannWindowEndpointsAndSymmetry(t *testing.T) {
	w := HannWindow(8)
	if len(w) != 8 {
		t.Fatalf("len(w) = %d, want 8", len(w))
	}
	if w[0] != 0 {
		t.Errorf("w[0] = %v, want 0", w[0])
	}
	for i, v := range w {
		mirror := w[len(w)-1-i]
		if math.Abs(v-mirror) > 1e-9 {
			t.Errorf("w is not symmetric: w[%d]=%v, w[%d]=%v", i, v, len(w)-1-i, mirror)
		}
	}
}

func TestHannWindowSingleSample(t *testing.T) {
	w := HannWindow(1)
	if len(w) != 1 || w[0] != 1 {
		t.Fatalf("HannWindow(1) = %v, want [1]", w)
	}
}

func TestHzMelRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 100, 1000, 7600} {
		mel := HzToMel(hz)
		got := MelToHz(mel)
		if math.Abs(got-hz) > 1e-6 {
			t.Errorf("MelToHz(HzToMel(%v)) = %v, want %v", hz, got, hz)
		}
	}
}

func TestFilterBankShapeAndMonotonicBins(t *testing.T) {
	const numMels, nFft, sampleRate = 8, 400, 16000
	bank := FilterBank(numMels, nFft, sampleRate, 20, 7600)
	if len(bank) != numMels {
		t.Fatalf("len(bank) = %d, want %d", len(bank), numMels)
	}
	half := nFft/2 + 1
	for i, filter := range bank {
		if len(filter) != half {
			t.Fatalf("len(bank[%d]) = %d, want %d", i, len(filter), half)
		}
	}
	// Each triangle peaks at its center bin; the centers strictly increase.
	prevPeak := -1
	for i, filter := range bank {
		peak := 0
		for k, v := range filter {
			if v > filter[peak] {
				peak = k
			}
		}
		if peak <= prevPeak {
			t.Fatalf("bank[%d] peaks at bin %d, not above bank[%d]'s peak %d", i, peak, i-1, prevPeak)
		}
		prevPeak = peak
	}
}

func TestPlannerPowerConstantSignalIsAllDC(t *testing.T) {
	const n = 8
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = 1.0
	}
	p := NewPlanner(n)
	power := p.Power(frame, nil)
	if len(power) != n/2+1 {
		t.Fatalf("len(power) = %d, want %d", len(power), n/2+1)
	}
	if power[0] <= power[1] {
		t.Errorf("a DC-only signal should concentrate power in bin 0: power = %v", power)
	}
}

func TestApplyProducesNumMelsValues(t *testing.T) {
	const numMels, nFft, sampleRate = 4, 8, 16000
	bank := FilterBank(numMels, nFft, sampleRate, 20, 7000)
	power := make([]float64, nFft/2+1)
	for i := range power {
		power[i] = float64(i + 1)
	}
	out := Apply(bank, power, nil)
	if len(out) != numMels {
		t.Fatalf("len(out) = %d, want %d", len(out), numMels)
	}
}
