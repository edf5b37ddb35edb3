package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/haivivi/giztoy-asr/pkg/asr/config"
	"github.com/haivivi/giztoy-asr/pkg/asr/events"
	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/micsrc"
	"github.com/haivivi/giztoy-asr/pkg/asr/ingest/resample"
	"github.com/haivivi/giztoy-asr/pkg/asr/model"
	"github.com/haivivi/giztoy-asr/pkg/asr/persistence/kv"
	"github.com/haivivi/giztoy-asr/pkg/asr/session"

	_ "github.com/haivivi/giztoy-asr/pkg/asr/model/genaimodel"
	_ "github.com/haivivi/giztoy-asr/pkg/asr/model/onnxmodel"
	_ "github.com/haivivi/giztoy-asr/pkg/asr/model/openaimodel"
)

var (
	flagConfigFile    string
	flagSource        string
	flagInput         string
	flagInputRate     int
	flagBackend       string
	flagAPIKey        string
	flagBaseURL       string
	flagModelName     string
	flagLogPath       string
	flagCheckpointDir string

	flagOnnxEncoderPath     string
	flagOnnxEmbedTokensPath string
	flagOnnxPrefillPath     string
	flagOnnxStepPath        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a streaming ASR session against a file or microphone",
	RunE:  runSession,
}

func init() {
	runCmd.Flags().StringVar(&flagConfigFile, "config", "", "StreamingConfig YAML file")
	runCmd.Flags().StringVar(&flagSource, "source", "mic", "audio source: file or mic")
	runCmd.Flags().StringVar(&flagInput, "input", "", "path to a raw 16-bit PCM mono file (source=file)")
	runCmd.Flags().IntVar(&flagInputRate, "input-rate", 16000, "sample rate of --input in Hz")
	runCmd.Flags().StringVar(&flagBackend, "backend", "mock", "model backend: mock, genai, openai, or onnx")
	runCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key for the genai/openai backend")
	runCmd.Flags().StringVar(&flagBaseURL, "base-url", "", "base URL override for the openai backend")
	runCmd.Flags().StringVar(&flagModelName, "model", "", "model name override for the genai/openai backend")
	runCmd.Flags().StringVar(&flagLogPath, "log", "", "append a JSONL transcriptquery.Record log here")
	runCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", "", "Badger directory for confirmed-text checkpoints (in-memory if empty)")
	runCmd.Flags().StringVar(&flagOnnxEncoderPath, "onnx-encoder", "", "path to the encoder ONNX graph (backend=onnx)")
	runCmd.Flags().StringVar(&flagOnnxEmbedTokensPath, "onnx-embed-tokens", "", "path to the embed_tokens ONNX graph (backend=onnx)")
	runCmd.Flags().StringVar(&flagOnnxPrefillPath, "onnx-prefill", "", "path to the prefill decoder ONNX graph (backend=onnx)")
	runCmd.Flags().StringVar(&flagOnnxStepPath, "onnx-step", "", "path to the step decoder ONNX graph (backend=onnx)")
}

func runSession(cmd *cobra.Command, args []string) error {
	doc := config.Default()
	if flagConfigFile != "" {
		loaded, err := config.Load(flagConfigFile)
		if err != nil {
			return err
		}
		doc = loaded
	}
	if flagBackend != "" {
		doc.Backend = flagBackend
	}

	opts := map[string]string{
		"api_key":           flagAPIKey,
		"base_url":          flagBaseURL,
		"model":             flagModelName,
		"encoder_path":      flagOnnxEncoderPath,
		"embed_tokens_path": flagOnnxEmbedTokensPath,
		"prefill_path":      flagOnnxPrefillPath,
		"step_path":         flagOnnxStepPath,
	}
	m, err := model.New(model.BackendID(doc.Backend), opts)
	if err != nil {
		return fmt.Errorf("build backend %q: %w", doc.Backend, err)
	}

	store, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess := session.New(m, doc.ToSessionConfig())
	checkpoints := kv.New(store, sess.ID)

	var logFile *os.File
	if flagLogPath != "" {
		logFile, err = os.OpenFile(flagLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feedDone := make(chan error, 1)
	go func() { feedDone <- feedSource(ctx, sess) }()

	styles := newDisplayStyles()
	seq := 0
	for {
		ev, err := sess.Events().Next()
		if err != nil {
			break
		}
		seq++
		renderEvent(styles, ev)
		if logFile != nil {
			writeLogRecord(logFile, seq, ev)
		}
		if confirmed, ok := ev.(events.Confirmed); ok {
			if err := checkpoints.Append(ctx, confirmed.Text); err != nil {
				slog.Warn("asr: checkpoint append failed", "err", err)
			}
		}
		if _, ok := ev.(events.Ended); ok {
			break
		}
	}

	if err := <-feedDone; err != nil {
		return err
	}
	return nil
}

func openCheckpointStore() (kv.Store, error) {
	if flagCheckpointDir == "" {
		return kv.NewMemory(nil), nil
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: flagCheckpointDir})
}

func feedSource(ctx context.Context, sess *session.Session) error {
	switch flagSource {
	case "file":
		return feedFile(ctx, sess)
	case "mic":
		return feedMic(ctx, sess)
	default:
		sess.Stop()
		return fmt.Errorf("unknown --source %q (want file or mic)", flagSource)
	}
}

func feedFile(ctx context.Context, sess *session.Session) error {
	if flagInput == "" {
		sess.Cancel()
		return fmt.Errorf("--input is required when --source=file")
	}
	f, err := os.Open(flagInput)
	if err != nil {
		sess.Cancel()
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	src, err := resample.New(f, resample.Format{SampleRate: flagInputRate, Stereo: false})
	if err != nil {
		sess.Cancel()
		return fmt.Errorf("build resampler: %w", err)
	}
	defer src.Close()

	buf := make([]float32, 1600)
	for {
		select {
		case <-ctx.Done():
			sess.Stop()
			return nil
		default:
		}
		n, err := src.ReadSamples(buf)
		if n > 0 {
			sess.FeedAudio(buf[:n])
		}
		if err != nil {
			sess.Stop()
			return nil
		}
	}
}

func feedMic(ctx context.Context, sess *session.Session) error {
	src, err := micsrc.New(100 * time.Millisecond)
	if err != nil {
		sess.Cancel()
		return fmt.Errorf("open microphone: %w", err)
	}
	defer src.Close()

	buf := make([]float32, 1600)
	for {
		select {
		case <-ctx.Done():
			sess.Stop()
			return nil
		default:
		}
		n, err := src.ReadSamples(buf)
		if n > 0 {
			sess.FeedAudio(buf[:n])
		}
		if err != nil {
			sess.Stop()
			return nil
		}
	}
}

type displayStyles struct {
	confirmed lipgloss.Style
	provis    lipgloss.Style
	stats     lipgloss.Style
}

func newDisplayStyles() displayStyles {
	return displayStyles{
		confirmed: lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f")),
		provis:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		stats:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Italic(true),
	}
}

func renderEvent(s displayStyles, ev events.Event) {
	switch e := ev.(type) {
	case events.DisplayUpdate:
		fmt.Printf("\r%s%s", s.confirmed.Render(e.ConfirmedText), s.provis.Render(e.ProvisionalText))
	case events.Stats:
		fmt.Printf("\n%s\n", s.stats.Render(fmt.Sprintf(
			"windows=%d audio=%.1fs tok/s=%.1f rtf=%.2f mem=%.2fGB",
			e.EncodedWindowCount, e.TotalAudioSeconds, e.TokensPerSecond, e.RealTimeFactor, e.PeakMemoryGB)))
	case events.Ended:
		fmt.Printf("\n%s\n", s.confirmed.Render(e.FullText))
	}
}

func writeLogRecord(f *os.File, seq int, ev events.Event) {
	rec := map[string]any{"seq": seq}
	switch e := ev.(type) {
	case events.DisplayUpdate:
		rec["kind"] = "display_update"
		rec["confirmedText"] = e.ConfirmedText
		rec["provisionalText"] = e.ProvisionalText
	case events.Confirmed:
		rec["kind"] = "confirmed"
		rec["text"] = e.Text
	case events.Stats:
		rec["kind"] = "stats"
		rec["encodedWindowCount"] = e.EncodedWindowCount
		rec["totalAudioSeconds"] = e.TotalAudioSeconds
		rec["tokensPerSecond"] = e.TokensPerSecond
		rec["realTimeFactor"] = e.RealTimeFactor
		rec["peakMemoryGB"] = e.PeakMemoryGB
	case events.Ended:
		rec["kind"] = "ended"
		rec["fullText"] = e.FullText
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f.Write(line)
	f.Write([]byte("\n"))
}
