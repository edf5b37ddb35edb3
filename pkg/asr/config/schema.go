package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema returns the JSON Schema a config Document must satisfy, used to
// validate hand-edited YAML before it reaches ToSessionConfig. Mirrors the
// registry-of-schemas pattern haivivi-giztoy/pkg/cortex uses for its own
// config documents, scaled down to the single document this package owns.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"backend":                  {Type: "string"},
			"language":                 {Type: "string"},
			"decodeIntervalSeconds":    {Type: "number", Minimum: ptr(0.0)},
			"delayPreset":              {Type: "string", Enum: []any{"Low", "Medium", "High"}},
			"maxTokensPerPass":         {Type: "integer", Minimum: ptr(1.0)},
			"temperature":              {Type: "number", Minimum: ptr(0.0)},
			"maxCachedWindows":         {Type: "integer", Minimum: ptr(1.0)},
			"finalizeCompletedWindows": {Type: "boolean"},
			"windowSize":               {Type: "integer", Minimum: ptr(1.0)},
		},
		Required: []string{"backend"},
	}
}

func ptr(v float64) *float64 { return &v }

// Validate checks doc against Schema(). It round-trips through JSON because
// jsonschema.Resolved.Validate operates on decoded JSON values, not on
// arbitrary Go structs with yaml tags.
func Validate(doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("asr/config: encode for validation: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("asr/config: decode for validation: %w", err)
	}

	resolved, err := Schema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("asr/config: resolve schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("asr/config: invalid config: %w", err)
	}
	return nil
}
