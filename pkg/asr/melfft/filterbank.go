package melfft

import "math"

// HannWindow returns a symmetric Hann window of length n, as used by the
// default MelFeaturizer front-end (spec section 4.1 calls for Hann, not the
// Hamming window the teacher's own fbank package uses for speaker
// verification features).
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// HzToMel converts a frequency in Hz to the mel scale (Kaldi/HTK formula,
// matching haivivi-giztoy/pkg/audio/fbank/mel.go).
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz is the inverse of HzToMel.
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// FilterBank builds a triangular mel filterbank matrix of shape
// [numMels][nFft/2+1], the external collaborator matrix spec section 4.1
// requires the MelFeaturizer to be constructed with. Construction follows
// the same equally-spaced-in-mel, linear-interpolation-in-bin convention as
// haivivi-giztoy/pkg/audio/fbank/mel.go's melFilterBank.
func FilterBank(numMels, nFft, sampleRate int, lowFreqHz, highFreqHz float64) [][]float32 {
	half := nFft/2 + 1
	lowMel := HzToMel(lowFreqHz)
	highMel := HzToMel(highFreqHz)

	points := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range points {
		points[i] = lowMel + float64(i)*step
	}

	bins := make([]int, numMels+2)
	for i, m := range points {
		hz := MelToHz(m)
		bin := int(math.Round(hz * float64(nFft) / float64(sampleRate)))
		if bin >= half {
			bin = half - 1
		}
		if bin < 0 {
			bin = 0
		}
		bins[i] = bin
	}
	for i := 1; i < len(bins); i++ {
		if bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([][]float32, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float32, half)
		left, center, right := bins[m], bins[m+1], bins[m+2]

		for k := left; k < center && k < half; k++ {
			if center != left {
				filter[k] = float32(k-left) / float32(center-left)
			}
		}
		for k := center; k <= right && k < half; k++ {
			if right != center {
				filter[k] = float32(right-k) / float32(right-center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// Apply multiplies a power spectrum (length nFft/2+1) by the filterbank and
// log-compresses each output bin, writing numMels values into dst (growing
// or reusing it as needed) and returning it.
func Apply(bank [][]float32, power []float64, dst []float32) []float32 {
	numMels := len(bank)
	if cap(dst) < numMels {
		dst = make([]float32, numMels)
	}
	dst = dst[:numMels]
	for m, filter := range bank {
		var sum float64
		for k, w := range filter {
			if w == 0 {
				continue
			}
			sum += float64(w) * power[k]
		}
		if sum < 1e-10 {
			sum = 1e-10
		}
		dst[m] = float32(math.Log(sum))
	}
	return dst
}
