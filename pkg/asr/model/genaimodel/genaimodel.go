// Package genaimodel wires a Gemini model.Model backend through
// pkg/asr/model/hosted, grounded in haivivi-giztoy/pkg/cortex's
// runGenaiTextGenerate and pkg/genx/gemini.go: genai.NewClient with an API
// key, genai.NewPartFromBytes for the WAV payload, Models.GenerateContent
// for the one real call per decode pass.
package genaimodel

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
	"github.com/haivivi/giztoy-asr/pkg/asr/model/hosted"
)

func init() {
	model.Register("genai", func(opts map[string]string) (model.Model, error) {
		apiKey := opts["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("asr/model/genaimodel: missing api_key option")
		}
		modelName := opts["model"]
		if modelName == "" {
			modelName = "gemini-2.0-flash"
		}
		return New(apiKey, modelName)
	})
}

// New constructs a genai-backed model.Model.
func New(apiKey, modelName string) (model.Model, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("asr/model/genaimodel: create client: %w", err)
	}

	return hosted.New(func(ctx context.Context, wav []byte, language string) (string, error) {
		prompt := "Transcribe the speech in this audio verbatim."
		if language != "" {
			prompt += " The spoken language is " + language + "."
		}

		contents := []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromBytes(wav, "audio/wav"),
			},
		}}

		resp, err := client.Models.GenerateContent(ctx, modelName, contents, nil)
		if err != nil {
			return "", fmt.Errorf("asr/model/genaimodel: generate content: %w", err)
		}

		var sb strings.Builder
		if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				sb.WriteString(part.Text)
			}
		}
		return sb.String(), nil
	}, hosted.Config{}), nil
}
