package genaimodel

import (
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

func TestInitRegistersBackend(t *testing.T) {
	found := false
	for _, id := range model.Registered() {
		if id == model.BackendID("genai") {
			found = true
		}
	}
	if !found {
		t.Fatalf(`expected "genai" backend to be registered by init()`)
	}
}

func TestRegisteredFactoryRequiresAPIKey(t *testing.T) {
	if _, err := model.New("genai", map[string]string{}); err == nil {
		t.Fatalf("expected an error when api_key is missing")
	}
}
