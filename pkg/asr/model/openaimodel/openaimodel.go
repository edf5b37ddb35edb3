// Package openaimodel wires an OpenAI-compatible chat completion model.Model
// backend through pkg/asr/model/hosted, grounded in
// haivivi-giztoy/pkg/cortex's newOpenAIClient (client construction) and
// pkg/genx/openai.go's convUserMessage (sending WAV audio as an
// InputAudioContentPart) and json.go's jsonrepair fallback (repairing a
// malformed structured response).
package openaimodel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
	"github.com/haivivi/giztoy-asr/pkg/asr/model/hosted"
)

func init() {
	model.Register("openai", func(opts map[string]string) (model.Model, error) {
		apiKey := opts["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("asr/model/openaimodel: missing api_key option")
		}
		modelName := opts["model"]
		if modelName == "" {
			modelName = "gpt-4o-audio-preview"
		}
		return New(apiKey, opts["base_url"], modelName), nil
	})
}

// transcriptResponse is the structured JSON this backend asks the model to
// respond with, so the language the model heard can be cross-checked against
// the language BuildPrompt captured.
type transcriptResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// New constructs an OpenAI-compatible chat completion model.Model. baseURL
// may be empty to use the default OpenAI endpoint.
func New(apiKey, baseURL, modelName string) model.Model {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return hosted.New(func(ctx context.Context, wav []byte, language string) (string, error) {
		prompt := "Transcribe the speech in this audio verbatim. " +
			"Respond with a single JSON object: {\"text\": \"<transcript>\", \"language\": \"<spoken language>\"}."
		if language != "" {
			prompt += fmt.Sprintf(" The expected spoken language is %s.", language)
		}

		contents := []openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(prompt),
			openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   base64.StdEncoding.EncodeToString(wav),
				Format: "wav",
			}),
		}

		params := openai.ChatCompletionNewParams{
			Model: modelName,
			Messages: []openai.ChatCompletionMessageParamUnion{
				{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfArrayOfContentParts: contents,
						},
					},
				},
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			},
		}

		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("asr/model/openaimodel: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("asr/model/openaimodel: no choices returned")
		}
		content := resp.Choices[0].Message.Content

		var parsed transcriptResponse
		if err := unmarshalRepairingJSON([]byte(content), &parsed); err != nil {
			// Fall back to the raw content: some OpenAI-compatible endpoints
			// ignore ResponseFormat and just return the transcript text.
			return content, nil
		}
		return parsed.Text, nil
	}, hosted.Config{})
}

// unmarshalRepairingJSON mirrors genx's unmarshalJSON: retry through
// jsonrepair once if the first parse fails on malformed JSON.
func unmarshalRepairingJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
