package openaimodel

import (
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

func TestUnmarshalRepairingJSONValid(t *testing.T) {
	var parsed transcriptResponse
	if err := unmarshalRepairingJSON([]byte(`{"text":"hello world","language":"en"}`), &parsed); err != nil {
		t.Fatalf("unmarshalRepairingJSON: %v", err)
	}
	if parsed.Text != "hello world" || parsed.Language != "en" {
		t.Errorf("parsed = %+v, want {hello world en}", parsed)
	}
}

func TestUnmarshalRepairingJSONRepairsTrailingComma(t *testing.T) {
	var parsed transcriptResponse
	err := unmarshalRepairingJSON([]byte(`{"text":"hello world","language":"en",}`), &parsed)
	if err != nil {
		t.Fatalf("unmarshalRepairingJSON: %v", err)
	}
	if parsed.Text != "hello world" {
		t.Errorf("parsed.Text = %q, want %q", parsed.Text, "hello world")
	}
}

func TestUnmarshalRepairingJSONUnrepairable(t *testing.T) {
	var parsed transcriptResponse
	if err := unmarshalRepairingJSON([]byte(`not json at all`), &parsed); err == nil {
		t.Fatalf("expected an error for unrepairable input")
	}
}

func TestInitRegistersBackend(t *testing.T) {
	found := false
	for _, id := range model.Registered() {
		if id == model.BackendID("openai") {
			found = true
		}
	}
	if !found {
		t.Fatalf(`expected "openai" backend to be registered by init()`)
	}
}

func TestRegisteredFactoryRequiresAPIKey(t *testing.T) {
	if _, err := model.New("openai", map[string]string{}); err == nil {
		t.Fatalf("expected an error when api_key is missing")
	}
}
