package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/session"
)

func TestDefaultMatchesSessionDefaults(t *testing.T) {
	d := Default()
	if d.Backend != "mock" {
		t.Errorf("Backend = %q, want mock", d.Backend)
	}
	want := session.DefaultConfig()
	if d.Language != want.Language || d.MaxTokensPerPass != want.MaxTokensPerPass || d.WindowSize != want.WindowSize {
		t.Errorf("Default() did not mirror session.DefaultConfig(): %+v vs %+v", d, want)
	}
}

func TestToSessionConfigParsesDelayPreset(t *testing.T) {
	cases := map[string]session.DelayPreset{
		"Low":    session.DelayLow,
		"Medium": session.DelayMedium,
		"High":   session.DelayHigh,
		"":       session.DelayMedium,
		"bogus":  session.DelayMedium,
	}
	for raw, want := range cases {
		d := Default()
		d.DelayPreset = raw
		got := d.ToSessionConfig()
		if got.DelayPreset != want {
			t.Errorf("DelayPreset %q -> %v, want %v", raw, got.DelayPreset, want)
		}
	}
}

func TestToSessionConfigKeepsDefaultWindowSizeWhenUnset(t *testing.T) {
	d := Default()
	d.WindowSize = 0
	got := d.ToSessionConfig()
	if got.WindowSize != session.DefaultConfig().WindowSize {
		t.Errorf("WindowSize = %d, want the session default when Document.WindowSize is 0", got.WindowSize)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	d := Default()
	d.Language = "French"
	d.MaxTokensPerPass = 128

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, d); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Language != "French" || loaded.MaxTokensPerPass != 128 {
		t.Fatalf("loaded = %+v, want Language=French MaxTokensPerPass=128", loaded)
	}
}

func TestLoadRejectsInvalidDelayPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("backend: mock\ndelayPreset: Extreme\nmaxTokensPerPass: 64\nmaxCachedWindows: 4\nwindowSize: 125\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject an out-of-enum delayPreset")
	}
}

func TestValidateRejectsMissingBackend(t *testing.T) {
	d := Default()
	d.Backend = ""
	if err := Validate(d); err == nil {
		t.Fatalf("expected Validate to reject an empty backend")
	}
}

func TestValidateAcceptsDefault(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) = %v, want nil", err)
	}
}
