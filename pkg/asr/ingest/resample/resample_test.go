package resample

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func encodeInt16(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestSourcePassthroughMono16k(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768}
	src := bytes.NewReader(encodeInt16(samples))

	s, err := New(src, Format{SampleRate: 16000, Stereo: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	dst := make([]float32, len(samples))
	n, err := s.ReadSamples(dst)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadSamples: %v", err)
	}
	if n != len(samples) {
		t.Fatalf("got %d samples, want %d", n, len(samples))
	}
	if dst[0] != 0 {
		t.Errorf("sample 0 = %v, want 0", dst[0])
	}
	if dst[3] <= 0.99 || dst[3] > 1.0 {
		t.Errorf("sample 3 = %v, want close to 1.0", dst[3])
	}
}

func TestSourceResamplesDownToTarget(t *testing.T) {
	n := 4800
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	src := bytes.NewReader(encodeInt16(samples))

	s, err := New(src, Format{SampleRate: 48000, Stereo: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	dst := make([]float32, 4096)
	total := 0
	for {
		got, err := s.ReadSamples(dst)
		total += got
		if err != nil {
			break
		}
		if got == 0 {
			break
		}
	}
	if total == 0 {
		t.Fatal("expected some resampled output")
	}
}
