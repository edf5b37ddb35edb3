package model

import (
	"fmt"
	"sync"
)

// BackendID names a registered Model factory, e.g. "onnx", "genai",
// "openai", "mock". The pattern mirrors haivivi-giztoy's
// pkg/onnx.RegisterModel/LoadModel registry: backends self-register from an
// init() in their own package, and callers look one up by name rather than
// importing it directly, keeping cmd/giztoy-asr's backend choice a runtime
// flag instead of a build-time import graph.
type BackendID string

// Factory constructs a Model from a free-form options map (backend-specific
// keys such as "api_key", "model", "base_url", "encoder_path").
type Factory func(opts map[string]string) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[BackendID]Factory)
)

// Register adds a backend factory under id. Called from each backend
// package's init().
func Register(id BackendID, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = f
}

// New constructs a Model using the factory registered under id.
func New(id BackendID, opts map[string]string) (Model, error) {
	registryMu.RLock()
	f, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asr/model: backend %q not registered", id)
	}
	return f(opts)
}

// Registered lists the currently registered backend ids.
func Registered() []BackendID {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]BackendID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
