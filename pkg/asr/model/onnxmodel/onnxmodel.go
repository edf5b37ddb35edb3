// Package onnxmodel implements model.Model over real ONNX Runtime sessions
// via a cgo binding to the ONNX Runtime C API (ort.go, adapted from the
// teacher's generic pkg/onnx wrapper down to this package's own needs), for
// an on-device encoder/decoder pair exported the way HuggingFace Optimum
// exports a causal LM: a
// "prefill" graph that takes inputs_embeds and produces an initial KV
// cache, and a "step" graph that takes a single input_id plus the previous
// cache and produces the next logits and an updated cache. This is the
// genuine autoregressive backend the model.Model interface (spec section 6)
// was designed for; pkg/asr/model/hosted's replay trick exists only because
// hosted chat APIs cannot do this.
//
// ortTensor only wraps float32 OrtValues (no integer tensor type), so
// input_ids are passed as a float32 tensor of id values.
package onnxmodel

import (
	"context"
	"fmt"
	"os"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

func init() {
	model.Register("onnx", func(opts map[string]string) (model.Model, error) {
		cfg := Config{
			EncoderPath:     opts["encoder_path"],
			EmbedTokensPath: opts["embed_tokens_path"],
			PrefillPath:     opts["prefill_path"],
			StepPath:        opts["step_path"],
		}
		return New(cfg)
	})
}

// Config names the four ONNX graphs this backend loads and the shapes
// needed to build cache tensors between steps.
type Config struct {
	EncoderPath     string
	EmbedTokensPath string
	PrefillPath     string
	StepPath        string

	// NumLayers is the decoder's transformer layer count, each contributing
	// one key/value tensor pair to the KV cache.
	NumLayers int
	// EmbedDim is the embedding width E for BuildPrompt/EmbedTokens.
	EmbedDim int
	// VocabSize bounds the logits row returned by Forward.
	VocabSize int
}

func (c *Config) applyDefaults() {
	if c.NumLayers <= 0 {
		c.NumLayers = 24
	}
	if c.EmbedDim <= 0 {
		c.EmbedDim = 896
	}
	if c.VocabSize <= 0 {
		c.VocabSize = 151936
	}
}

// Backend adapts four ONNX Runtime sessions to model.Model.
type Backend struct {
	cfg Config
	env *ortEnv

	encoder     *ortSession
	embedTokens *ortSession
	prefill     *ortSession
	step        *ortSession

	tok vocabTokenizer
}

// New loads all four ONNX graphs named in cfg into a single ONNX Runtime
// environment.
func New(cfg Config) (*Backend, error) {
	cfg.applyDefaults()
	env, err := newOrtEnv("giztoy-asr")
	if err != nil {
		return nil, fmt.Errorf("asr/model/onnxmodel: create env: %w", err)
	}

	encoder, err := loadSession(env, cfg.EncoderPath)
	if err != nil {
		return nil, err
	}
	embedTokens, err := loadSession(env, cfg.EmbedTokensPath)
	if err != nil {
		return nil, err
	}
	prefill, err := loadSession(env, cfg.PrefillPath)
	if err != nil {
		return nil, err
	}
	step, err := loadSession(env, cfg.StepPath)
	if err != nil {
		return nil, err
	}

	return &Backend{
		cfg:         cfg,
		env:         env,
		encoder:     encoder,
		embedTokens: embedTokens,
		prefill:     prefill,
		step:        step,
	}, nil
}

func loadSession(env *ortEnv, path string) (*ortSession, error) {
	if path == "" {
		return nil, fmt.Errorf("asr/model/onnxmodel: missing model path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("asr/model/onnxmodel: read %s: %w", path, err)
	}
	sess, err := env.NewSession(data)
	if err != nil {
		return nil, fmt.Errorf("asr/model/onnxmodel: load %s: %w", path, err)
	}
	return sess, nil
}

// Close releases every session and the shared environment.
func (b *Backend) Close() error {
	b.encoder.Close()
	b.embedTokens.Close()
	b.prefill.Close()
	b.step.Close()
	return b.env.Close()
}

// Encode runs the encoder graph over mel frames, producing [T_a, D] audio
// features.
func (b *Backend) Encode(ctx context.Context, mel model.Tensor) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	if mel.Rows == 0 {
		return model.Tensor{}, nil
	}
	in, err := newOrtTensor([]int64{1, int64(mel.Rows), int64(mel.Cols)}, mel.Data)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: encode input tensor: %w", err)
	}
	defer in.Close()
	outs, err := b.encoder.Run([]string{"input_features"}, []*ortTensor{in}, []string{"audio_features"})
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: run encoder: %w", err)
	}
	defer outs[0].Close()
	return tensorFromONNX(outs[0], b.cfg.EmbedDim)
}

const (
	bosToken       = -1
	audioSlotToken = -2
	langTagToken   = -3
)

// BuildPrompt mirrors model.Mock's placeholder-slot scheme (this module's
// own pattern, not the teacher's): BOS, one audio slot per encoded frame,
// then a language tag. MergeAudioFeatures replaces the audio slots with the
// real encoder output below; all three placeholder ids are negative, so
// EmbedTokens never sends them to the embedding graph and leaves their rows
// zero.
func (b *Backend) BuildPrompt(ctx context.Context, numAudioTokens int, language string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := make([]int, 0, numAudioTokens+2)
	prompt = append(prompt, bosToken)
	for i := 0; i < numAudioTokens; i++ {
		prompt = append(prompt, audioSlotToken)
	}
	prompt = append(prompt, langTagToken)
	return prompt, nil
}

// EmbedTokens runs the embedding graph for every non-placeholder id; the
// negative placeholder ids (BOS, audio slots, language tag) get a zero row
// here. MergeAudioFeatures later fills the audio slots; the BOS and
// language-tag rows stay zero.
func (b *Backend) EmbedTokens(ctx context.Context, tokenIDs []int) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	out := model.NewTensor(len(tokenIDs), b.cfg.EmbedDim)
	real := make([]float32, 0, len(tokenIDs))
	realRows := make([]int, 0, len(tokenIDs))
	for i, id := range tokenIDs {
		if id < 0 {
			continue
		}
		real = append(real, float32(id))
		realRows = append(realRows, i)
	}
	if len(real) == 0 {
		return out, nil
	}

	in, err := newOrtTensor([]int64{1, int64(len(real))}, real)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: embed input tensor: %w", err)
	}
	defer in.Close()
	outs, err := b.embedTokens.Run([]string{"input_ids"}, []*ortTensor{in}, []string{"inputs_embeds"})
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: run embed_tokens: %w", err)
	}
	defer outs[0].Close()
	embedded, err := tensorFromONNX(outs[0], b.cfg.EmbedDim)
	if err != nil {
		return model.Tensor{}, err
	}
	for j, row := range realRows {
		copy(out.Row(row), embedded.Row(j))
	}
	return out, nil
}

// MergeAudioFeatures splices audioFeatures rows into the audio placeholder
// slots of inputsEmbeds, the same splice model.Mock performs, since this is
// pure tensor bookkeeping with no learned weights of its own.
func (b *Backend) MergeAudioFeatures(ctx context.Context, inputsEmbeds, audioFeatures model.Tensor, inputIDs []int) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	out := model.Tensor{Rows: inputsEmbeds.Rows, Cols: inputsEmbeds.Cols, Data: append([]float32(nil), inputsEmbeds.Data...)}
	audioRow := 0
	for i, id := range inputIDs {
		if id == audioSlotToken && audioRow < audioFeatures.Rows {
			copy(out.Row(i), audioFeatures.Row(audioRow))
			audioRow++
		}
	}
	return out, nil
}

// Forward runs the prefill graph on the first call of a pass (inputEmbeddings
// set, cache empty) and the step graph on every later call, threading the
// KV cache tensors returned by one call into the next.
func (b *Backend) Forward(ctx context.Context, inputIDs []int, inputEmbeddings *model.Tensor, cache model.KvCache) (model.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, err
	}
	oc, ok := cache.(*onnxCache)
	if !ok {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: cache not created by this backend")
	}

	if inputEmbeddings != nil && !oc.started {
		return b.runPrefill(*inputEmbeddings, oc)
	}
	return b.runStep(inputIDs, oc)
}

func (b *Backend) runPrefill(embeds model.Tensor, oc *onnxCache) (model.Tensor, error) {
	in, err := newOrtTensor([]int64{1, int64(embeds.Rows), int64(embeds.Cols)}, embeds.Data)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: prefill input tensor: %w", err)
	}
	defer in.Close()

	outputNames := []string{"logits"}
	for i := 0; i < b.cfg.NumLayers; i++ {
		outputNames = append(outputNames, fmt.Sprintf("present.%d.key", i), fmt.Sprintf("present.%d.value", i))
	}
	outs, err := b.prefill.Run([]string{"inputs_embeds"}, []*ortTensor{in}, outputNames)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: run prefill: %w", err)
	}
	return b.collectStep(outs, oc, embeds.Rows)
}

func (b *Backend) runStep(inputIDs []int, oc *onnxCache) (model.Tensor, error) {
	ids := make([]float32, len(inputIDs))
	for i, id := range inputIDs {
		ids[i] = float32(id)
	}
	in, err := newOrtTensor([]int64{1, int64(len(ids))}, ids)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: step input tensor: %w", err)
	}
	defer in.Close()

	inputNames := []string{"input_ids"}
	inputs := []*ortTensor{in}
	for i, layer := range oc.layers {
		inputNames = append(inputNames, fmt.Sprintf("past_key_values.%d.key", i), fmt.Sprintf("past_key_values.%d.value", i))
		inputs = append(inputs, layer[0], layer[1])
	}

	outputNames := []string{"logits"}
	for i := 0; i < b.cfg.NumLayers; i++ {
		outputNames = append(outputNames, fmt.Sprintf("present.%d.key", i), fmt.Sprintf("present.%d.value", i))
	}
	outs, err := b.step.Run(inputNames, inputs, outputNames)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: run step: %w", err)
	}
	return b.collectStep(outs, oc, len(inputIDs))
}

// collectStep extracts logits from outs[0], replaces oc's cached KV tensors
// with outs[1:], closing the previous generation, and advances oc.calls.
func (b *Backend) collectStep(outs []*ortTensor, oc *onnxCache, stepLen int) (model.Tensor, error) {
	logits, err := tensorFromONNX(outs[0], b.cfg.VocabSize)
	outs[0].Close()
	if err != nil {
		return model.Tensor{}, err
	}

	for i := 0; i < b.cfg.NumLayers; i++ {
		newKey, newVal := outs[1+2*i], outs[2+2*i]
		if oc.started {
			oc.layers[i][0].Close()
			oc.layers[i][1].Close()
		}
		oc.layers[i][0] = newKey
		oc.layers[i][1] = newVal
	}
	oc.started = true
	oc.calls += stepLen
	// logits is only meaningful for the last position of a multi-row step
	// (the prefill call); Decode only ever reads Row(Rows-1).
	return logits, nil
}

// tensorFromONNX converts an ortTensor to a model.Tensor with the given
// column width, inferring row count from the total element count.
func tensorFromONNX(t *ortTensor, cols int) (model.Tensor, error) {
	data, err := t.FloatData()
	if err != nil {
		return model.Tensor{}, fmt.Errorf("asr/model/onnxmodel: read tensor data: %w", err)
	}
	if cols == 0 || len(data)%cols != 0 {
		return model.Tensor{Rows: 1, Cols: len(data), Data: data}, nil
	}
	return model.Tensor{Rows: len(data) / cols, Cols: cols, Data: data}, nil
}

// MakeCache returns a fresh cache scoped to one decode pass, sized for
// NumLayers key/value pairs.
func (b *Backend) MakeCache() model.KvCache {
	return &onnxCache{layers: make([][2]*ortTensor, b.cfg.NumLayers)}
}

// Tokenizer returns the bound vocabulary-file detokenizer.
func (b *Backend) Tokenizer() model.Tokenizer {
	return &b.tok
}

type onnxCache struct {
	started bool
	layers  [][2]*ortTensor
	calls   int
}

func (c *onnxCache) Len() int { return c.calls }

// vocabTokenizer detokenizes ids against an optional newline-delimited
// vocabulary file (one token string per line, line number == id); with no
// file loaded it falls back to "tok<id>" the way model.Mock's tokenizer
// does, so the backend is usable in tests without a real vocab on disk.
type vocabTokenizer struct {
	words []string
}

// LoadVocab reads a newline-delimited vocabulary file into t.
func (t *vocabTokenizer) LoadVocab(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("asr/model/onnxmodel: read vocab: %w", err)
	}
	var words []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			words = append(words, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		words = append(words, string(data[start:]))
	}
	t.words = words
	return nil
}

func (t *vocabTokenizer) Decode(tokenIDs []int) (string, error) {
	parts := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if model.EOS[id] {
			continue
		}
		if id >= 0 && id < len(t.words) {
			parts = append(parts, t.words[id])
			continue
		}
		parts = append(parts, fmt.Sprintf("tok%d", id))
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out, nil
}
