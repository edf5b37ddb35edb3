package model

import "testing"

func TestNewTensorRow(t *testing.T) {
	tn := NewTensor(3, 2)
	if tn.Rows != 3 || tn.Cols != 2 || len(tn.Data) != 6 {
		t.Fatalf("NewTensor(3, 2) = %+v, want Rows=3 Cols=2 len(Data)=6", tn)
	}

	copy(tn.Row(1), []float32{1, 2})
	if tn.Data[2] != 1 || tn.Data[3] != 2 {
		t.Errorf("Row(1) did not write into the underlying Data slice: %v", tn.Data)
	}
	if tn.Row(0)[0] != 0 || tn.Row(2)[0] != 0 {
		t.Errorf("writing Row(1) leaked into neighboring rows: %v", tn.Data)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	const id BackendID = "test-model-registry-roundtrip"
	Register(id, func(opts map[string]string) (Model, error) {
		return nil, nil
	})

	found := false
	for _, got := range Registered() {
		if got == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("Registered() did not include %q after Register", id)
	}

	if _, err := New(id, nil); err != nil {
		t.Fatalf("New(%q): %v", id, err)
	}
	if _, err := New("nonexistent-backend-id", nil); err == nil {
		t.Fatalf("expected New to fail for an unregistered backend id")
	}
}
