package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztoy-asr/pkg/asr/transcriptquery"
)

var flagQueryLogPath string

var queryCmd = &cobra.Command{
	Use:   "query <jq-expression>",
	Short: "Run a jq expression over a saved JSONL event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&flagQueryLogPath, "log", "", "path to the JSONL event log produced by `run --log` (required)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if flagQueryLogPath == "" {
		return fmt.Errorf("--log is required")
	}
	f, err := os.Open(flagQueryLogPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	records, err := transcriptquery.ReadRecords(f)
	if err != nil {
		return err
	}

	results, err := transcriptquery.Run(args[0], records)
	if err != nil {
		return err
	}
	for _, line := range results {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
