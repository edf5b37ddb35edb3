package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func init() {
	Register("mock", func(opts map[string]string) (Model, error) {
		return NewMock(MockConfig{}), nil
	})
}

// MockConfig parameterizes Mock, the deterministic backend used by the test
// suite for the scenarios in spec section 8 (S1-S6): it never loads real
// weights, so tests can assert exact token sequences and exercise
// cancellation without a GPU.
type MockConfig struct {
	// Script is indexed by KV-cache position: each Forward call emits
	// Script[cache.Len()] as it stands before the call, then advances the
	// cache by one position per input row, so a multi-row prompt call skips
	// the entries for its remaining rows. Past the end it emits EOS; an
	// empty Script immediately emits EOS.
	Script []int
	// StepDelay is slept at the start of every Forward call (context-aware),
	// letting tests simulate a slow decode for cancellation scenarios (S5).
	StepDelay time.Duration
	// EmbedDim is the embedding width E used for EmbedTokens/MergeAudioFeatures.
	EmbedDim int
}

// Mock is a deterministic Model implementation with no real neural math: it
// exists purely to drive DecodeEngine and Session through known sequences.
type Mock struct {
	cfg MockConfig
	tok mockTokenizer
}

// NewMock constructs a Mock backend. A zero MockConfig emits EOS on the
// first forward step and uses an embedding width of 8.
func NewMock(cfg MockConfig) *Mock {
	if cfg.EmbedDim == 0 {
		cfg.EmbedDim = 8
	}
	return &Mock{cfg: cfg}
}

func (m *Mock) Encode(ctx context.Context, mel Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	// One encoded audio token per 4 mel frames, at least 1 if any frames
	// were given — a simple, deterministic stand-in for a real encoder's
	// temporal downsampling ratio.
	ta := mel.Rows / 4
	if mel.Rows > 0 && ta == 0 {
		ta = 1
	}
	out := NewTensor(ta, m.cfg.EmbedDim)
	for i := range out.Data {
		out.Data[i] = 0.01 * float32(i%97)
	}
	return out, nil
}

func (m *Mock) BuildPrompt(ctx context.Context, numAudioTokens int, language string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := make([]int, numAudioTokens+2)
	prompt[0] = -1 // BOS placeholder
	for i := 0; i < numAudioTokens; i++ {
		prompt[1+i] = -2 // audio-feature placeholder slot
	}
	prompt[len(prompt)-1] = -3 // language-tag placeholder
	return prompt, nil
}

func (m *Mock) EmbedTokens(ctx context.Context, tokenIDs []int) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	out := NewTensor(len(tokenIDs), m.cfg.EmbedDim)
	for i, id := range tokenIDs {
		for j := 0; j < m.cfg.EmbedDim; j++ {
			out.Data[i*m.cfg.EmbedDim+j] = float32(id%11) * 0.1
		}
	}
	return out, nil
}

func (m *Mock) MergeAudioFeatures(ctx context.Context, inputsEmbeds, audioFeatures Tensor, inputIDs []int) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	out := Tensor{Rows: inputsEmbeds.Rows, Cols: inputsEmbeds.Cols, Data: append([]float32(nil), inputsEmbeds.Data...)}
	audioRow := 0
	for i, id := range inputIDs {
		if id == -2 && audioRow < audioFeatures.Rows {
			copy(out.Row(i), audioFeatures.Row(audioRow))
			audioRow++
		}
	}
	return out, nil
}

func (m *Mock) Forward(ctx context.Context, inputIDs []int, inputEmbeddings *Tensor, cache KvCache) (Tensor, error) {
	if m.cfg.StepDelay > 0 {
		select {
		case <-time.After(m.cfg.StepDelay):
		case <-ctx.Done():
			return Tensor{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	mc, ok := cache.(*mockCache)
	if !ok {
		return Tensor{}, fmt.Errorf("asr/model: mock.Forward called with foreign cache type")
	}
	next := mc.nextToken(m.cfg.Script)
	const vocab = 151700
	logits := NewTensor(1, vocab)
	logits.Data[next] = 100.0 // overwhelming argmax at `next`
	mc.advance(inputIDs, inputEmbeddings)
	return logits, nil
}

func (m *Mock) MakeCache() KvCache {
	return &mockCache{}
}

func (m *Mock) Tokenizer() Tokenizer {
	return m.tok
}

type mockCache struct {
	steps int
}

func (c *mockCache) Len() int { return c.steps }

func (c *mockCache) nextToken(script []int) int {
	if c.steps >= len(script) {
		for id := range EOS {
			return id
		}
	}
	return script[c.steps]
}

func (c *mockCache) advance(inputIDs []int, inputEmbeddings *Tensor) {
	switch {
	case inputEmbeddings != nil:
		c.steps += inputEmbeddings.Rows
	default:
		c.steps += len(inputIDs)
	}
}

// mockTokenizer renders token ids as "tok<id>" space-joined, good enough for
// assertions comparing detokenized text shape without needing a real
// vocabulary.
type mockTokenizer struct{}

func (mockTokenizer) Decode(tokenIDs []int) (string, error) {
	parts := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if EOS[id] {
			continue
		}
		parts = append(parts, fmt.Sprintf("tok%d", id))
	}
	return strings.Join(parts, " "), nil
}
