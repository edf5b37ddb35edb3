// Package config loads and validates StreamingConfig documents (spec
// section 6) from YAML, following the load/save pattern of
// haivivi-giztoy/pkg/cli's Config type: a plain struct with yaml tags,
// defaults applied by a constructor, and a thin Load/Save pair around
// github.com/goccy/go-yaml.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/giztoy-asr/pkg/asr/session"
)

// Document is the on-disk YAML shape of a StreamingConfig, one level above
// session.Config: it additionally names the model backend to load, since
// that choice lives outside the session's own options (spec section 6 only
// describes StreamingConfig, not backend selection).
type Document struct {
	Backend string            `yaml:"backend" json:"backend,omitempty"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`

	Language                 string  `yaml:"language" json:"language"`
	DecodeIntervalSeconds    float64 `yaml:"decodeIntervalSeconds" json:"decodeIntervalSeconds"`
	DelayPreset              string  `yaml:"delayPreset" json:"delayPreset"`
	MaxTokensPerPass         int     `yaml:"maxTokensPerPass" json:"maxTokensPerPass"`
	Temperature              float32 `yaml:"temperature" json:"temperature"`
	MaxCachedWindows         int     `yaml:"maxCachedWindows" json:"maxCachedWindows"`
	FinalizeCompletedWindows bool    `yaml:"finalizeCompletedWindows" json:"finalizeCompletedWindows"`
	WindowSize               int     `yaml:"windowSize" json:"windowSize"`
}

// Default returns a Document populated from session.DefaultConfig, with
// Backend defaulting to "mock".
func Default() Document {
	d := session.DefaultConfig()
	return Document{
		Backend:                  "mock",
		Language:                 d.Language,
		DecodeIntervalSeconds:    d.DecodeIntervalSeconds,
		DelayPreset:              "Medium",
		MaxTokensPerPass:         d.MaxTokensPerPass,
		Temperature:              d.Temperature,
		MaxCachedWindows:         d.MaxCachedWindows,
		FinalizeCompletedWindows: d.FinalizeCompletedWindows,
		WindowSize:               d.WindowSize,
	}
}

// Load reads and parses a Document from path, applying defaults for zero
// fields not present in the file.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("asr/config: read %s: %w", path, err)
	}
	doc := Default()
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("asr/config: parse %s: %w", path, err)
	}
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Save writes doc to path as YAML.
func Save(path string, doc Document) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("asr/config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("asr/config: write %s: %w", path, err)
	}
	return nil
}

// ToSessionConfig converts a validated Document into a session.Config.
func (d Document) ToSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Language = d.Language
	cfg.DecodeIntervalSeconds = d.DecodeIntervalSeconds
	cfg.DelayPreset = parseDelayPreset(d.DelayPreset)
	cfg.MaxTokensPerPass = d.MaxTokensPerPass
	cfg.Temperature = d.Temperature
	cfg.MaxCachedWindows = d.MaxCachedWindows
	cfg.FinalizeCompletedWindows = d.FinalizeCompletedWindows
	if d.WindowSize > 0 {
		cfg.WindowSize = d.WindowSize
	}
	return cfg
}

func parseDelayPreset(s string) session.DelayPreset {
	switch s {
	case "Low":
		return session.DelayLow
	case "High":
		return session.DelayHigh
	default:
		return session.DelayMedium
	}
}
