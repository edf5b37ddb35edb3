package wavcodec

import (
	"encoding/binary"
	"testing"
)

func TestEncodeHeader(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	out := Encode(samples, 16000)

	if string(out[0:4]) != "RIFF" {
		t.Fatalf("missing RIFF tag")
	}
	if string(out[8:12]) != "WAVE" {
		t.Fatalf("missing WAVE tag")
	}
	if string(out[12:16]) != "fmt " {
		t.Fatalf("missing fmt tag")
	}
	if string(out[36:40]) != "data" {
		t.Fatalf("missing data tag")
	}

	sampleRate := binary.LittleEndian.Uint32(out[24:28])
	if sampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", sampleRate)
	}

	dataLen := binary.LittleEndian.Uint32(out[40:44])
	if int(dataLen) != len(samples)*2 {
		t.Errorf("data len = %d, want %d", dataLen, len(samples)*2)
	}
	if len(out) != 44+len(samples)*2 {
		t.Errorf("total len = %d, want %d", len(out), 44+len(samples)*2)
	}
}

func TestEncodeClipsOutOfRange(t *testing.T) {
	out := Encode([]float32{2.0, -2.0}, 16000)
	s0 := int16(binary.LittleEndian.Uint16(out[44:46]))
	s1 := int16(binary.LittleEndian.Uint16(out[46:48]))
	if s0 != 32767 {
		t.Errorf("clipped positive sample = %d, want 32767", s0)
	}
	if s1 != -32767 {
		t.Errorf("clipped negative sample = %d, want -32767", s1)
	}
}
