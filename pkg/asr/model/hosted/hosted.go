// Package hosted implements the model.Model collaborator interface on top
// of a one-shot hosted transcription call (Gemini or an OpenAI-compatible
// chat completion endpoint), shared by pkg/asr/model/genaimodel and
// pkg/asr/model/openaimodel.
//
// The acoustic encoder and the autoregressive LM in spec section 6 assume a
// backend that exposes per-token logits over a shared KV cache. A hosted
// chat completion endpoint exposes neither: it returns a finished
// transcript in one round trip. Backend bridges that gap the way
// model.Mock bridges it for tests: the first Forward call of a decode pass
// (the one carrying inputEmbeddings) makes the one real network call over
// the audio buffered so far and tokenizes the result into a token tape.
// Every later Forward call in the same pass (prefix replay or generation)
// just advances one step through that tape; since prefix-replay tokens are
// themselves a prefix of the same stable word vocabulary, by the time the
// generation loop starts the tape cursor has naturally advanced past the
// confirmed prefix and lands on its first new word.
//
// Since model.Model.Encode only ever sees mel frames, not the original
// waveform, Backend cannot derive request audio from Encode's argument.
// Instead Feed is called by the host alongside Session.FeedAudio,
// buffering the same raw samples so TranscribeFunc has real audio to send.
package hosted

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
	"github.com/haivivi/giztoy-asr/pkg/asr/model/wavcodec"
)

// TranscribeFunc performs the one real network call: given buffered WAV
// audio and the active language, it returns the backend's best transcript
// for all audio buffered so far.
type TranscribeFunc func(ctx context.Context, wav []byte, language string) (string, error)

// Config tunes the bridging behavior; it never affects the network call
// itself.
type Config struct {
	// EmbedDim sizes the placeholder embedding vectors BuildPrompt/EmbedTokens
	// produce; hosted backends never actually consume them.
	EmbedDim int
	// SampleRate is the rate Feed's samples arrive at (spec section 6: 16kHz
	// at the pipeline boundary).
	SampleRate int
}

// Backend adapts a TranscribeFunc to model.Model. Its methods assume the
// session-level invariant that only one decode pass is ever in flight at a
// time (spec section 4.5's isDecoding guard), the same assumption
// model.Mock relies on.
type Backend struct {
	transcribe TranscribeFunc
	cfg        Config
	tok        wordTokenizer

	mu           sync.Mutex
	audio        []float32
	lastLanguage string
}

// New constructs a Backend calling fn for its one real transcription per
// decode pass.
func New(fn TranscribeFunc, cfg Config) *Backend {
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 8
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = model.SampleRate
	}
	return &Backend{transcribe: fn, cfg: cfg}
}

// Feed appends newly-fed audio samples; the host calls this alongside
// Session.FeedAudio whenever a hosted backend is selected.
func (b *Backend) Feed(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, samples...)
}

// Encode mean-pools mel frames in groups of 4 into a feature tensor purely
// for window/budget bookkeeping (spec section 4.2's T_a); the hosted call
// never consumes these features.
func (b *Backend) Encode(ctx context.Context, mel model.Tensor) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	if mel.Rows == 0 {
		return model.Tensor{}, nil
	}
	ta := mel.Rows / 4
	if ta == 0 {
		ta = 1
	}
	out := model.NewTensor(ta, mel.Cols)
	for i := 0; i < ta; i++ {
		lo := i * 4
		hi := lo + 4
		if hi > mel.Rows {
			hi = mel.Rows
		}
		dst := out.Row(i)
		n := 0
		for r := lo; r < hi; r++ {
			src := mel.Row(r)
			for c, v := range src {
				dst[c] += v
			}
			n++
		}
		if n > 0 {
			for c := range dst {
				dst[c] /= float32(n)
			}
		}
	}
	return out, nil
}

const (
	bosToken       = -1
	audioSlotToken = -2
	langTagToken   = -3
)

// BuildPrompt returns the placeholder ids model.Mock uses, ordered BOS,
// language tag, then one audio slot per frame (Mock puts the language tag
// last); the actual token ids never reach the network call, since Forward's first
// step ignores inputIDs in favor of the buffered audio. The language is
// captured for that call.
func (b *Backend) BuildPrompt(ctx context.Context, numAudioTokens int, language string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.lastLanguage = language
	b.mu.Unlock()

	prompt := make([]int, 0, numAudioTokens+2)
	prompt = append(prompt, bosToken, langTagToken)
	for i := 0; i < numAudioTokens; i++ {
		prompt = append(prompt, audioSlotToken)
	}
	return prompt, nil
}

// EmbedTokens returns zeroed placeholder embeddings; hosted backends never
// read them.
func (b *Backend) EmbedTokens(ctx context.Context, tokenIDs []int) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	return model.NewTensor(len(tokenIDs), b.cfg.EmbedDim), nil
}

// MergeAudioFeatures returns inputsEmbeds unchanged; the splice has no
// effect once Forward's first call diverts to the real network call.
func (b *Backend) MergeAudioFeatures(ctx context.Context, inputsEmbeds, audioFeatures model.Tensor, inputIDs []int) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	return inputsEmbeds, nil
}

// Forward makes the real transcription call on the first step of a decode
// pass (inputEmbeddings != nil) and tokenizes the result into this cache's
// replay tape; every later step argmax-replays the next tape entry.
func (b *Backend) Forward(ctx context.Context, inputIDs []int, inputEmbeddings *model.Tensor, cache model.KvCache) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	rc, ok := cache.(*replayCache)
	if !ok {
		return model.Tensor{}, fmt.Errorf("asr/model/hosted: cache not created by this backend")
	}

	if inputEmbeddings != nil && !rc.started {
		b.mu.Lock()
		wav := wavcodec.Encode(b.audio, b.cfg.SampleRate)
		language := b.lastLanguage
		b.mu.Unlock()

		text, err := b.transcribe(ctx, wav, language)
		if err != nil {
			return model.Tensor{}, fmt.Errorf("asr/model/hosted: transcribe: %w", err)
		}
		rc.tape = b.tok.encode(text)
		rc.started = true
	}

	// calls advances by exactly one per Forward invocation (the first call
	// included), so the k-th call's logits are always forced at tape[k-1]:
	// the replay loop and the first generation argmax line up on the same
	// cursor without decode.Decode needing to know which phase it is in.
	rc.calls++

	vocab := b.tok.vocabSize()
	logits := model.NewTensor(1, vocab)
	row := logits.Row(0)
	row[rc.nextTokenIndex(vocab)] = 100.0
	return logits, nil
}

// MakeCache returns a fresh replay cache scoped to one decode pass.
func (b *Backend) MakeCache() model.KvCache {
	return &replayCache{}
}

// Tokenizer returns the bound whitespace detokenizer.
func (b *Backend) Tokenizer() model.Tokenizer {
	return &b.tok
}

type replayCache struct {
	started bool
	tape    []int
	calls   int
}

func (c *replayCache) Len() int { return c.calls }

// nextTokenIndex returns the vocab index to place the forced logit at: the
// tape entry at the current call index if one exists, otherwise an EOS id.
func (c *replayCache) nextTokenIndex(vocab int) int {
	idx := c.calls - 1
	if idx >= 0 && idx < len(c.tape) {
		tok := c.tape[idx]
		if tok >= 0 && tok < vocab {
			return tok
		}
	}
	for eos := range model.EOS {
		if eos < vocab {
			return eos
		}
	}
	return vocab - 1
}

// wordTokenizer is a trivial whitespace "tokenizer" used only to shuttle a
// hosted backend's finished transcript through the token-tape replay
// mechanism; its ids have no relationship to any real model's vocabulary,
// but are stable across calls so a later decode pass's confirmed-prefix
// replay lines up with a fresh transcription of the same growing audio.
type wordTokenizer struct {
	mu     sync.Mutex
	words  []string
	lookup map[string]int
}

func (t *wordTokenizer) encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lookup == nil {
		t.lookup = make(map[string]int)
	}
	fields := strings.Fields(text)
	ids := make([]int, 0, len(fields)+1)
	for _, w := range fields {
		id, ok := t.lookup[w]
		if !ok {
			id = len(t.words)
			t.words = append(t.words, w)
			t.lookup[w] = id
		}
		ids = append(ids, id)
	}
	for eos := range model.EOS {
		ids = append(ids, eos)
		break
	}
	return ids
}

func (t *wordTokenizer) vocabSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := 151646
	if len(t.words) > size {
		size = len(t.words) + 1
	}
	return size
}

// Decode implements model.Tokenizer.
func (t *wordTokenizer) Decode(tokenIDs []int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if model.EOS[id] {
			continue
		}
		if id < 0 || id >= len(t.words) {
			continue
		}
		parts = append(parts, t.words[id])
	}
	return strings.Join(parts, " "), nil
}
