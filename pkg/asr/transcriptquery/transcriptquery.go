// Package transcriptquery runs gojq expressions over a saved JSONL event
// log, grounded in haivivi-giztoy/pkg/genx/agentcfg's JQExpr (pre-parse a
// jq expression with github.com/itchyny/gojq, Run it against a decoded
// value, marshal the first result back to JSON).
package transcriptquery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// Record is one line of a saved event log: a JSON object carrying the
// event's Kind plus whichever of the events.Event fields that kind sets
// (see transport/wsserver.WireEvent for the same field set, JSON-tagged
// here instead of msgpack-tagged since the log is meant to be grep/jq-able).
type Record struct {
	Seq  int    `json:"seq"`
	Kind string `json:"kind"`

	ConfirmedText   string `json:"confirmedText,omitempty"`
	ProvisionalText string `json:"provisionalText,omitempty"`
	Text            string `json:"text,omitempty"`

	EncodedWindowCount int     `json:"encodedWindowCount,omitempty"`
	TotalAudioSeconds  float64 `json:"totalAudioSeconds,omitempty"`
	TokensPerSecond    float64 `json:"tokensPerSecond,omitempty"`
	RealTimeFactor     float64 `json:"realTimeFactor,omitempty"`
	PeakMemoryGB       float64 `json:"peakMemoryGB,omitempty"`

	FullText string `json:"fullText,omitempty"`
}

// ReadRecords decodes one Record per line from r, skipping blank lines.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("asr/transcriptquery: decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("asr/transcriptquery: scan: %w", err)
	}
	return records, nil
}

// Run evaluates expr (a jq expression) against records, returning one
// formatted JSON line per jq result, the way `gojq '.[] | select(...)'`
// would over a JSON array of the same records.
func Run(expr string, records []Record) ([]string, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("asr/transcriptquery: invalid jq expression %q: %w", expr, err)
	}

	input := make([]any, len(records))
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("asr/transcriptquery: marshal record %d: %w", i, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("asr/transcriptquery: decode record %d: %w", i, err)
		}
		input[i] = v
	}

	iter := query.Run(input)
	var out []string
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if e, ok := v.(error); ok {
			return nil, fmt.Errorf("asr/transcriptquery: jq error: %w", e)
		}
		line, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("asr/transcriptquery: marshal result: %w", err)
		}
		out = append(out, string(line))
	}
	return out, nil
}
