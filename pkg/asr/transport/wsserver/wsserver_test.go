package wsserver

import (
	"math"
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/events"
)

func TestDecodeFloat32LE(t *testing.T) {
	want := []float32{1.5, -2.25, 0}
	data := make([]byte, 0, len(want)*4)
	for _, f := range want {
		bits := math.Float32bits(f)
		data = append(data,
			byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}

	got := decodeFloat32LE(data)
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeFloat32LETrailingBytesIgnored(t *testing.T) {
	got := decodeFloat32LE([]byte{0, 0, 0, 0, 1, 2, 3})
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
}

func TestToWireEvent(t *testing.T) {
	cases := []struct {
		name string
		in   events.Event
		want WireEvent
	}{
		{
			"display",
			events.DisplayUpdate{ConfirmedText: "hello ", ProvisionalText: "world"},
			WireEvent{Kind: "display", ConfirmedText: "hello ", ProvisionalText: "world"},
		},
		{
			"confirmed",
			events.Confirmed{Text: "hello world"},
			WireEvent{Kind: "confirmed", Text: "hello world"},
		},
		{
			"stats",
			events.Stats{EncodedWindowCount: 3, TotalAudioSeconds: 1.5, TokensPerSecond: 4, RealTimeFactor: 0.5, PeakMemoryGB: 1.1},
			WireEvent{Kind: "stats", EncodedWindowCount: 3, TotalAudioSeconds: 1.5, TokensPerSecond: 4, RealTimeFactor: 0.5, PeakMemoryGB: 1.1},
		},
		{
			"ended",
			events.Ended{FullText: "hello world"},
			WireEvent{Kind: "ended", FullText: "hello world"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := toWireEvent(c.in)
			if got != c.want {
				t.Errorf("toWireEvent(%#v) = %#v, want %#v", c.in, got, c.want)
			}
		})
	}
}
