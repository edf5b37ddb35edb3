package model

import (
	"context"
	"testing"
	"time"
)

func TestMockBuildPromptAndMerge(t *testing.T) {
	m := NewMock(MockConfig{EmbedDim: 4})
	ctx := context.Background()

	prompt, err := m.BuildPrompt(ctx, 2, "en")
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	want := []int{-1, -2, -2, -3}
	if len(prompt) != len(want) {
		t.Fatalf("prompt = %v, want %v", prompt, want)
	}
	for i, v := range want {
		if prompt[i] != v {
			t.Errorf("prompt[%d] = %d, want %d", i, prompt[i], v)
		}
	}

	embeds, err := m.EmbedTokens(ctx, prompt)
	if err != nil {
		t.Fatalf("EmbedTokens: %v", err)
	}
	audio, err := m.Encode(ctx, NewTensor(8, 128))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if audio.Rows != 2 {
		t.Fatalf("Encode produced %d audio tokens for 8 mel frames, want 2", audio.Rows)
	}

	merged, err := m.MergeAudioFeatures(ctx, embeds, audio, prompt)
	if err != nil {
		t.Fatalf("MergeAudioFeatures: %v", err)
	}
	if merged.Row(1)[0] != audio.Row(0)[0] || merged.Row(2)[0] != audio.Row(1)[0] {
		t.Errorf("audio rows were not spliced into the -2 slots: %v", merged.Data)
	}
}

func TestMockForwardEmitsScriptThenEOS(t *testing.T) {
	// Script is indexed by cache position: the 4-row prompt occupies
	// positions 0-3 (emitting Script[0]), so the next call reads Script[4].
	m := NewMock(MockConfig{Script: []int{7, 0, 0, 0, 9}, EmbedDim: 4})
	ctx := context.Background()
	cache := m.MakeCache()

	merged := NewTensor(4, 4)
	logits, err := m.Forward(ctx, nil, &merged, cache)
	if err != nil {
		t.Fatalf("Forward (prompt): %v", err)
	}
	if argmax(logits) != 7 {
		t.Fatalf("first Forward argmax = %d, want 7", argmax(logits))
	}

	logits, err = m.Forward(ctx, []int{7}, nil, cache)
	if err != nil {
		t.Fatalf("Forward (step 1): %v", err)
	}
	if argmax(logits) != 9 {
		t.Fatalf("second Forward argmax = %d, want 9", argmax(logits))
	}

	logits, err = m.Forward(ctx, []int{9}, nil, cache)
	if err != nil {
		t.Fatalf("Forward (step 2): %v", err)
	}
	if !EOS[argmax(logits)] {
		t.Fatalf("third Forward argmax = %d, want an EOS id", argmax(logits))
	}

	if cache.Len() != 6 {
		t.Errorf("cache.Len() = %d, want 6 (4 + 1 + 1)", cache.Len())
	}
}

func TestMockForwardRespectsCancellation(t *testing.T) {
	m := NewMock(MockConfig{StepDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Forward(ctx, []int{1}, nil, m.MakeCache()); err == nil {
		t.Fatalf("expected Forward to return an error for a cancelled context")
	}
}

func TestMockTokenizerDecodeSkipsEOS(t *testing.T) {
	var eosID int
	for id := range EOS {
		eosID = id
		break
	}
	tok := mockTokenizer{}
	text, err := tok.Decode([]int{1, eosID, 2})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "tok1 tok2" {
		t.Errorf("text = %q, want %q", text, "tok1 tok2")
	}
}

func argmax(t Tensor) int {
	row := t.Row(t.Rows - 1)
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
