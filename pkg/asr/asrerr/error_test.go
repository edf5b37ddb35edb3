package asrerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:             "unknown",
		KindAudioDecodeFailure:  "audio_decode_failure",
		KindEncoderFailure:      "encoder_failure",
		KindTokenizerUnavailable: "tokenizer_unavailable",
		KindCancelled:           "cancelled",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestNewFormatsMessageWithoutWrappedErr(t *testing.T) {
	err := New(KindEncoderFailure, "window %d failed", 3)
	if err.Kind != KindEncoderFailure {
		t.Errorf("Kind = %v, want KindEncoderFailure", err.Kind)
	}
	if err.Err != nil {
		t.Errorf("Err = %v, want nil", err.Err)
	}
	want := "asr: encoder_failure: window 3 failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapIncludesUnderlyingError(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindAudioDecodeFailure, cause, "reading chunk")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if got := err.Error(); got != fmt.Sprintf("asr: audio_decode_failure: reading chunk: %v", cause) {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	inner := New(KindCancelled, "stopped")
	outer := fmt.Errorf("outer: %w", inner)

	if !Is(outer, KindCancelled) {
		t.Errorf("Is(outer, KindCancelled) = false, want true")
	}
	if Is(outer, KindEncoderFailure) {
		t.Errorf("Is(outer, KindEncoderFailure) = true, want false")
	}
	if Is(errors.New("plain"), KindCancelled) {
		t.Errorf("Is(plain error, _) = true, want false")
	}
}
