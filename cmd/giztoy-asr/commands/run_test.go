package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/giztoy-asr/pkg/asr/events"
)

func TestOpenCheckpointStoreDefaultsToMemory(t *testing.T) {
	flagCheckpointDir = ""
	store, err := openCheckpointStore()
	if err != nil {
		t.Fatalf("openCheckpointStore: %v", err)
	}
	defer store.Close()
}

func TestOpenCheckpointStoreUsesBadgerDirWhenSet(t *testing.T) {
	flagCheckpointDir = filepath.Join(t.TempDir(), "badger")
	defer func() { flagCheckpointDir = "" }()

	store, err := openCheckpointStore()
	if err != nil {
		t.Fatalf("openCheckpointStore: %v", err)
	}
	defer store.Close()
}

func TestWriteLogRecordEncodesEachEventKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	writeLogRecord(f, 1, events.DisplayUpdate{ConfirmedText: "hi", ProvisionalText: "there"})
	writeLogRecord(f, 2, events.Confirmed{Text: "hi there"})
	writeLogRecord(f, 3, events.Stats{EncodedWindowCount: 2, TotalAudioSeconds: 1.5})
	writeLogRecord(f, 4, events.Ended{FullText: "hi there"})
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			break
		}
		records = append(records, rec)
	}

	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	if records[0]["kind"] != "display_update" || records[0]["confirmedText"] != "hi" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1]["kind"] != "confirmed" || records[1]["text"] != "hi there" {
		t.Errorf("record 1 = %+v", records[1])
	}
	if records[2]["kind"] != "stats" || records[2]["encodedWindowCount"].(float64) != 2 {
		t.Errorf("record 2 = %+v", records[2])
	}
	if records[3]["kind"] != "ended" || records[3]["fullText"] != "hi there" {
		t.Errorf("record 3 = %+v", records[3])
	}
}
