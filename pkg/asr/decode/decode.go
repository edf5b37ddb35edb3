// Package decode implements the DecodeEngine (spec section 4.3): a
// stateless helper that builds a prompt around an encoded audio feature,
// replays a confirmed token prefix through the model, and runs a greedy
// autoregressive loop until EOS or a budget is exhausted. It never mutates
// session state; every call returns a pure result.
package decode

import (
	"context"
	"math"
	"time"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

// Config carries the decode-affecting StreamingConfig fields (spec section 6).
type Config struct {
	Language         string
	MaxTokensPerPass int
	Temperature      float32
}

// Result is the pure output of one decode pass.
type Result struct {
	// Tokens is the new emission, excluding the replayed confirmed prefix.
	Tokens []int
	// DecodeTime is the wall-clock duration of the pass.
	DecodeTime time.Duration
}

// Decode runs one full decode pass over encoded (shape [T_a, D]), replaying
// confirmedPrefix through the model before generating new tokens. Returns
// an empty Result immediately if T_a == 0 or the model's tokenizer is
// unbound (spec section 7: an unavailable tokenizer makes a pass a no-op,
// not a fatal error).
func Decode(ctx context.Context, m model.Model, encoded model.Tensor, confirmedPrefix []int, cfg Config) (Result, error) {
	start := time.Now()
	if encoded.Rows == 0 {
		return Result{}, nil
	}
	if m.Tokenizer() == nil {
		return Result{}, nil
	}

	ta := encoded.Rows

	prompt, err := m.BuildPrompt(ctx, ta, cfg.Language)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	promptEmbeds, err := m.EmbedTokens(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	merged, err := m.MergeAudioFeatures(ctx, promptEmbeds, encoded, prompt)
	if err != nil {
		return Result{}, err
	}

	cache := m.MakeCache()

	logits, err := m.Forward(ctx, nil, &merged, cache)
	if err != nil {
		return Result{}, err
	}

	// Prefix replay: feed each confirmed token as a single-token forward
	// pass so the cache reflects prompt + confirmedPrefix.
	for _, tok := range confirmedPrefix {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		logits, err = m.Forward(ctx, []int{tok}, nil, cache)
		if err != nil {
			return Result{}, err
		}
	}

	estimated := int(math.Ceil((float64(ta) / model.EncoderTokensPerSecond) * model.BudgetTokensPerSecond))
	if estimated < model.MinDecodeBudget {
		estimated = model.MinDecodeBudget
	}
	maxTokens := cfg.MaxTokensPerPass
	floor := len(confirmedPrefix) + 24
	if estimated > floor {
		floor = estimated
	}
	if floor < maxTokens {
		maxTokens = floor
	}

	var emitted []int
	remaining := maxTokens - len(confirmedPrefix)
	for i := 0; i < remaining; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		next := argmax(logits.Row(logits.Rows-1), cfg.Temperature)
		if model.EOS[next] {
			break
		}
		emitted = append(emitted, next)

		logits, err = m.Forward(ctx, []int{next}, nil, cache)
		if err != nil {
			return Result{}, err
		}
	}

	return Result{Tokens: emitted, DecodeTime: time.Since(start)}, nil
}

// argmax returns the index of the largest value in row, scaling by
// temperature first if it is greater than zero (spec section 4.3: pure
// scaling, argmax is still taken — temperature only matters once a future
// extension replaces argmax with sampling).
func argmax(row []float32, temperature float32) int {
	best := 0
	bestVal := row[0]
	if temperature > 0 {
		bestVal /= temperature
	}
	for i := 1; i < len(row); i++ {
		v := row[i]
		if temperature > 0 {
			v /= temperature
		}
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}
