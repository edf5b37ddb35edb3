// Package model defines the external collaborator interfaces the decode
// engine depends on (spec section 6): the acoustic encoder, the
// autoregressive LM, its KV cache, and the tokenizer. Core packages
// (pkg/asr/decode, pkg/asr/session) only ever import this package's
// interfaces, never a concrete backend — genaimodel, openaimodel, and
// onnxmodel are swappable implementations registered under a Registry.
package model

import "context"

// Named constants replacing the spec's magic numbers (section 9).
const (
	// SampleRate is the fixed audio sample rate in Hz the whole pipeline
	// assumes at its boundary.
	SampleRate = 16000
	// NumMelBins is the default mel filterbank width (M).
	NumMelBins = 128
	// EncoderTokensPerSecond (named "13.0" in the spec) estimates decode
	// budget from T_a: windowedSeconds ~= T_a / EncoderTokensPerSecond.
	EncoderTokensPerSecond = 13.0
	// MinDecodeBudget is the floor on the per-pass token budget.
	MinDecodeBudget = 24
	// BudgetTokensPerSecond (the spec's "10.0") scales windowedSeconds into
	// an estimated token budget.
	BudgetTokensPerSecond = 10.0
)

// EOS is the set of token ids that terminate a decode loop.
var EOS = map[int]bool{151645: true, 151643: true}

// Tensor is a row-major 2D float32 tensor, immutable once produced (spec
// section 9: "unchecked-send boxes" are re-architected away by making the
// tensor type itself safely shareable across goroutines).
type Tensor struct {
	Rows, Cols int
	Data       []float32
}

// NewTensor allocates a zeroed Rows x Cols tensor.
func NewTensor(rows, cols int) Tensor {
	return Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the i-th row as a slice view into Data.
func (t Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// KvCache is an opaque, backend-owned autoregressive cache. Only the
// backend that created it (via Model.MakeCache) knows how to interpret it.
type KvCache interface {
	// Len reports how many tokens of context the cache currently holds.
	Len() int
}

// Model is the external collaborator interface for one ASR backend: an
// acoustic encoder plus an autoregressive LM sharing the same embedding
// space. Every method must check ctx between expensive steps so the decode
// engine's cancellation checks (spec section 4.6) actually take effect.
type Model interface {
	// Encode runs the acoustic encoder over mel frames shaped [T, M] and
	// returns an encoded feature tensor [T_a, D].
	Encode(ctx context.Context, mel Tensor) (Tensor, error)

	// BuildPrompt returns a token sequence containing placeholder slots for
	// numAudioTokens audio features, conditioned on language.
	BuildPrompt(ctx context.Context, numAudioTokens int, language string) ([]int, error)

	// EmbedTokens maps token ids to embedding vectors, shape [L, E].
	EmbedTokens(ctx context.Context, tokenIDs []int) (Tensor, error)

	// MergeAudioFeatures splices audioFeatures into the placeholder slots of
	// inputsEmbeds identified by inputIDs, returning the merged [L, E] tensor.
	MergeAudioFeatures(ctx context.Context, inputsEmbeds, audioFeatures Tensor, inputIDs []int) (Tensor, error)

	// Forward runs one decoder step. Exactly one of inputIDs or
	// inputEmbeddings is non-nil/non-empty: a pure-token step supplies
	// inputIDs, the first merged-audio step supplies inputEmbeddings. It
	// returns logits shaped [L, V] and mutates cache in place.
	Forward(ctx context.Context, inputIDs []int, inputEmbeddings *Tensor, cache KvCache) (logits Tensor, err error)

	// MakeCache returns a fresh, empty KvCache for one decode pass.
	MakeCache() KvCache

	// Tokenizer returns the bound detokenizer, or nil if unavailable (spec
	// section 7: an unavailable tokenizer makes a decode pass a no-op,
	// never a fatal error).
	Tokenizer() Tokenizer
}

// Tokenizer detokenizes model output into display text.
type Tokenizer interface {
	Decode(tokenIDs []int) (string, error)
}
