package hosted

import (
	"context"
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

func TestBackendForwardReplaysTranscript(t *testing.T) {
	called := 0
	b := New(func(ctx context.Context, wav []byte, language string) (string, error) {
		called++
		if language != "English" {
			t.Errorf("language = %q, want English", language)
		}
		return "hello world", nil
	}, Config{})

	b.Feed(make([]float32, 1600))

	ctx := context.Background()
	mel := model.NewTensor(8, model.NumMelBins)
	features, err := b.Encode(ctx, mel)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if features.Rows != 2 {
		t.Fatalf("Encode rows = %d, want 2", features.Rows)
	}

	prompt, err := b.BuildPrompt(ctx, features.Rows, "English")
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	embeds, err := b.EmbedTokens(ctx, prompt)
	if err != nil {
		t.Fatalf("EmbedTokens: %v", err)
	}
	merged, err := b.MergeAudioFeatures(ctx, embeds, features, prompt)
	if err != nil {
		t.Fatalf("MergeAudioFeatures: %v", err)
	}

	cache := b.MakeCache()
	logits, err := b.Forward(ctx, nil, &merged, cache)
	if err != nil {
		t.Fatalf("Forward (first): %v", err)
	}
	if called != 1 {
		t.Fatalf("transcribe called %d times, want 1", called)
	}

	var tokens []int
	for i := 0; i < 5; i++ {
		tok := argmax(logits.Row(0))
		if model.EOS[tok] {
			break
		}
		tokens = append(tokens, tok)

		logits, err = b.Forward(ctx, []int{tok}, nil, cache)
		if err != nil {
			t.Fatalf("Forward (gen %d): %v", i, err)
		}
	}

	text, err := b.Tokenizer().Decode(tokens)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hello world" {
		t.Errorf("decoded text = %q, want %q", text, "hello world")
	}
	if called != 1 {
		t.Errorf("transcribe called %d times across the pass, want 1", called)
	}
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
