package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "giztoy-asr",
	Short: "Streaming ASR session runner",
	Long: `giztoy-asr drives a streaming automatic speech recognition session
from a raw PCM file or microphone audio source, rendering live transcript
updates, and can replay a saved event log through a jq expression.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queryCmd)
}
