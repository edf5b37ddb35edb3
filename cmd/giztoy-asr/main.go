// Command giztoy-asr runs a streaming ASR session against a raw PCM file or
// a microphone, and can replay a saved event log through a jq expression.
//
// Usage:
//
//	giztoy-asr run --source file --input audio.pcm --backend mock
//	giztoy-asr run --source mic --backend genai --api-key $GEMINI_API_KEY
//	giztoy-asr query --log session.jsonl '.[] | select(.kind == "confirmed")'
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/giztoy-asr/cmd/giztoy-asr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
