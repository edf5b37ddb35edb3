// Package session implements the StreamingInferenceSession (spec section
// 4.5): the orchestrator that coordinates the MelFeaturizer, WindowedEncoder,
// DecodeEngine, and PromotionLedger in lockstep, owning the scheduling
// policy, decode concurrency, and stop/cancel state machine.
//
// Concurrency model follows spec section 5: sessionLock guards the mutable
// session fields and the featurizer/encoder; sharedLock guards the ledger
// fields (isDecoding is a separate atomic flag), held only briefly while merging a decode
// result so the heavy forward pass never blocks the feed thread. This
// mirrors haivivi-giztoy/pkg/doubaospeech/asr_v2.go's ASRV2Session: a
// recv-side mutex plus a sync.Once-guarded close, generalized here to two
// locks of different granularity instead of one.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/giztoy-asr/pkg/asr/clock"
	"github.com/haivivi/giztoy-asr/pkg/asr/decode"
	"github.com/haivivi/giztoy-asr/pkg/asr/encoder"
	"github.com/haivivi/giztoy-asr/pkg/asr/events"
	"github.com/haivivi/giztoy-asr/pkg/asr/featurizer"
	"github.com/haivivi/giztoy-asr/pkg/asr/ledger"
	"github.com/haivivi/giztoy-asr/pkg/asr/melfft"
	"github.com/haivivi/giztoy-asr/pkg/asr/model"
	"github.com/google/uuid"
)

// DelayPreset re-exports ledger.DelayPreset so callers need not import both
// packages to build a Config.
type DelayPreset = ledger.DelayPreset

const (
	DelayLow    = ledger.DelayLow
	DelayMedium = ledger.DelayMedium
	DelayHigh   = ledger.DelayHigh
)

// Config is StreamingConfig (spec section 6), with its named defaults.
type Config struct {
	Language                 string
	DecodeIntervalSeconds    float64
	DelayPreset              DelayPreset
	MaxTokensPerPass         int
	Temperature              float32
	MaxCachedWindows         int
	FinalizeCompletedWindows bool

	// WindowSize (W) is the encoder's native receptive field in mel frames.
	// Not in the spec's options table (it is a model property, not a
	// runtime tuning knob), but must be supplied since this module has no
	// fixed acoustic encoder of its own.
	WindowSize int

	Mel featurizer.Config
}

// DefaultConfig returns spec section 6's default StreamingConfig values.
func DefaultConfig() Config {
	return Config{
		Language:              "English",
		DecodeIntervalSeconds: 0.4,
		DelayPreset:           DelayMedium,
		MaxTokensPerPass:      256,
		Temperature:           0,
		MaxCachedWindows:      4,
		WindowSize:            125,
		Mel:                   featurizer.DefaultConfig(),
	}
}

func (c Config) delay() time.Duration {
	return time.Duration(c.DelayPreset.Milliseconds()) * time.Millisecond
}

// state is the session's lifecycle phase.
type state int32

const (
	stateActive state = iota
	stateStopping
	stateEnded
	stateCancelled
)

// Session is the StreamingInferenceSession. Create with New; feed audio
// with FeedAudio from any goroutine; read TranscriptionEvents from Events.
type Session struct {
	ID string

	cfg      Config
	model    model.Model
	clock    clock.Clock
	memProbe MemoryProbe
	log      *slog.Logger

	// sessionLock guards everything below up to "shared state", including
	// the featurizer and encoder (spec section 5).
	sessionLock          sync.Mutex
	state                atomic.Int32
	totalSamplesFed      int
	hasNewEncoderContent bool
	lastDecodeTime       *time.Time
	frozenWindowCount    int
	completedText        string

	// totalDecodeNanos and totalDecodedTokens accumulate across every
	// decode.Result this session produces, backing statsLocked's
	// TokensPerSecond/RealTimeFactor. Atomic since decode passes run
	// outside sessionLock during the heavy forward pass (spec section 5).
	totalDecodeNanos   atomic.Int64
	totalDecodedTokens atomic.Int64

	featurizer *featurizer.Featurizer
	encoder    *encoder.Encoder

	// isDecoding is a CAS-style flag; acquired via atomic.Bool.
	isDecoding atomic.Bool

	// sharedLock guards the ledger fields only.
	sharedLock sync.Mutex
	ledgerState ledger.State

	cancel    context.CancelFunc
	decodeCtx context.Context

	decodeWG sync.WaitGroup

	sink      *events.Sink
	stream    *events.Stream
	closeOnce sync.Once
}

// New constructs a Session bound to the given model and config. The model
// handle is shared and immutable from the session's point of view (spec
// section 9: no back-references, the model never points back at the
// session).
func New(m model.Model, cfg Config) *Session {
	return NewWithOptions(m, cfg, clock.Real, slog.Default(), NewRuntimeMemoryProbe())
}

// NewWithOptions is New with injectable collaborators, used by tests to
// supply a clock.Fake, a *slog.Logger writing to a test buffer, and a
// MemoryProbe (typically NoopMemoryProbe, for deterministic Stats events).
func NewWithOptions(m model.Model, cfg Config, c clock.Clock, logger *slog.Logger, probe MemoryProbe) *Session {
	ctx, cancelFn := context.WithCancel(context.Background())

	bank := melfft.FilterBank(cfg.Mel.NumMels, cfg.Mel.NFft, cfg.Mel.SampleRate, cfg.Mel.LowFreqHz, cfg.Mel.HighFreqHz)

	s := &Session{
		ID:         uuid.NewString(),
		cfg:        cfg,
		model:      m,
		clock:      c,
		memProbe:   probe,
		log:        logger,
		featurizer: featurizer.New(cfg.Mel, bank),
		encoder:    encoder.New(encoder.Config{WindowSize: cfg.WindowSize, MaxCachedWindows: cfg.MaxCachedWindows}, m),
		cancel:     cancelFn,
		decodeCtx:  ctx,
		stream:     events.NewStream(),
	}
	s.sink = s.stream.Sink()
	return s
}

// Events returns the session's event stream.
func (s *Session) Events() *events.Stream {
	return s.stream
}

func (s *Session) currentState() state {
	return state(s.state.Load())
}

// FeedAudio appends samples to the featurizer and encoder, then consults the
// scheduling predicate (spec section 4.5). Safe to call from any goroutine;
// never blocks on decode.
func (s *Session) FeedAudio(samples []float32) {
	if s.currentState() != stateActive {
		return
	}

	s.sessionLock.Lock()
	s.totalSamplesFed += len(samples)

	frames := s.featurizer.Process(samples)
	newWindows := 0
	if len(frames) > 0 {
		n, err := s.encoder.Feed(s.decodeCtx, frames)
		if err != nil {
			s.log.Warn("asr: encoder feed failed", "err", err)
		}
		newWindows = n
	}
	if len(frames) > 0 || s.encoder.HasPendingFrames() {
		s.hasNewEncoderContent = true
	}

	now := s.clock()
	shouldDecode, isBoundaryFinalize := s.schedulingPredicate(now, newWindows)
	s.sessionLock.Unlock()

	if shouldDecode {
		s.maybeLaunchDecode(isBoundaryFinalize)
	}
}

// schedulingPredicate must be called with sessionLock held. The second
// return reports whether this decision was reached purely because
// finalizeCompletedWindows && newWindows > 0 (a boundary finalize pass),
// which must not update lastDecodeTime (spec section 4.5).
func (s *Session) schedulingPredicate(now time.Time, newWindows int) (shouldDecode, isBoundaryFinalize bool) {
	if !s.hasNewEncoderContent {
		return false, false
	}
	if s.cfg.FinalizeCompletedWindows && newWindows > 0 {
		return true, true
	}
	if s.lastDecodeTime == nil {
		return true, false
	}
	if now.Sub(*s.lastDecodeTime).Seconds() >= s.cfg.DecodeIntervalSeconds {
		return true, false
	}
	return false, false
}

// maybeLaunchDecode attempts to acquire isDecoding and, if successful,
// spawns a detached decode task. isBoundaryFinalize controls whether
// lastDecodeTime is updated for this pass (it is not, for boundary
// finalize passes triggered purely by window completion).
func (s *Session) maybeLaunchDecode(isBoundaryFinalize bool) {
	if !s.isDecoding.CompareAndSwap(false, true) {
		return
	}

	s.sessionLock.Lock()
	s.hasNewEncoderContent = false
	if !isBoundaryFinalize {
		now := s.clock()
		s.lastDecodeTime = &now
	}
	s.sessionLock.Unlock()

	s.decodeWG.Add(1)
	go func() {
		defer s.decodeWG.Done()
		defer s.isDecoding.Store(false)
		s.runDecodePass(s.decodeCtx)
	}()
}

func (s *Session) runDecodePass(ctx context.Context) {
	if s.cfg.FinalizeCompletedWindows {
		s.runFinalizePass(ctx)
		return
	}
	s.runStreamingPass(ctx)
}

// runFinalizePass implements boundary-finalize mode (spec section 4.5).
func (s *Session) runFinalizePass(ctx context.Context) {
	s.sessionLock.Lock()
	drained := s.encoder.DrainNewlyEncodedWindows()
	s.sessionLock.Unlock()

	for i, idx := range drained {
		if ctx.Err() != nil {
			return
		}

		s.sharedLock.Lock()
		hasLedgerContent := len(s.ledgerState.ConfirmedTokenIDs) > 0 || len(s.ledgerState.ProvisionalTokenIDs) > 0
		s.sharedLock.Unlock()

		var text string
		var ok bool
		if i == 0 && hasLedgerContent {
			// Open question (a), spec section 9: the first drained window
			// in a pass reuses the current streaming ledger's text rather
			// than re-decoding this window from scratch, even though that
			// ledger may have accumulated against a different partial
			// window than idx. Implemented literally as specified: no
			// silent fix.
			var err error
			text, err = s.detokenizeLedgerLocked()
			ok = err == nil
			if err != nil {
				s.log.Warn("asr: detokenize failed", "err", err)
			}
		} else {
			text, ok = s.finalizeWindowText(ctx, idx)
		}
		// The raw frames backing idx are never revisited once this pass has
		// drained it, win or lose: free them now rather than leaking memory
		// on every decode/detokenize failure path above.
		s.encoder.Finalize(idx)
		if !ok {
			continue
		}

		s.sessionLock.Lock()
		s.frozenWindowCount++
		completed := appendText(s.ledgerTextSnapshotLocked(), text)
		s.setCompletedTextLocked(completed)
		s.resetLedgerLocked()
		s.sessionLock.Unlock()

		s.sink.Emit(events.Confirmed{Text: completed})
		s.sink.Emit(events.DisplayUpdate{ConfirmedText: completed, ProvisionalText: ""})
	}
	if len(drained) > 0 {
		s.sink.Emit(s.statsLocked())
	}
}

// finalizeWindowText decodes and detokenizes window idx in isolation (no
// confirmed prefix), for runFinalizePass's non-reused-ledger branch.
func (s *Session) finalizeWindowText(ctx context.Context, idx int) (string, bool) {
	feature, ok := s.encoder.Window(ctx, idx)
	if !ok {
		return "", false
	}
	res, err := decode.Decode(ctx, s.model, feature, nil, s.decodeConfig())
	if err != nil {
		s.log.Warn("asr: finalize decode failed", "window", idx, "err", err)
		return "", false
	}
	s.recordDecodeStats(res)
	tok := s.model.Tokenizer()
	if tok == nil {
		return "", false
	}
	text, err := tok.Decode(res.Tokens)
	if err != nil {
		s.log.Warn("asr: detokenize failed", "err", err)
		return "", false
	}
	return text, true
}

// runStreamingPass implements streaming mode (spec section 4.5).
func (s *Session) runStreamingPass(ctx context.Context) {
	s.sessionLock.Lock()
	newWindows := s.encoder.DrainNewlyEncodedWindows()
	if len(newWindows) > 0 {
		s.freezeCompletedWindowsLocked(newWindows)
		// Streaming mode never calls Window for these indices (the freeze
		// above reads straight from the ledger instead), so their raw
		// frames would otherwise sit in rawByIndex forever.
		for _, idx := range newWindows {
			s.encoder.Finalize(idx)
		}
	}
	feature, ok, err := func() (model.Tensor, bool, error) {
		return s.encoder.EncodePending(ctx)
	}()
	s.sessionLock.Unlock()

	if err != nil {
		s.log.Warn("asr: encode pending failed", "err", err)
		return
	}
	if !ok {
		return
	}

	s.sharedLock.Lock()
	confirmedPrefix := append([]int(nil), s.ledgerState.ConfirmedTokenIDs...)
	s.sharedLock.Unlock()

	res, err := decode.Decode(ctx, s.model, feature, confirmedPrefix, s.decodeConfig())
	if err != nil {
		s.log.Warn("asr: decode failed", "err", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.recordDecodeStats(res)

	allTokens := append(append([]int(nil), confirmedPrefix...), res.Tokens...)

	s.sharedLock.Lock()
	now := s.clock()
	newConfirmed, newProvisional, newFirstSeen, promoted := ledger.Merge(
		s.ledgerState.ConfirmedTokenIDs, s.ledgerState.ProvisionalTokenIDs, s.ledgerState.ProvisionalFirstSeen,
		allTokens, now, s.cfg.delay())
	s.ledgerState.ConfirmedTokenIDs = newConfirmed
	s.ledgerState.ProvisionalTokenIDs = newProvisional
	s.ledgerState.ProvisionalFirstSeen = newFirstSeen
	s.sharedLock.Unlock()

	tok := s.model.Tokenizer()
	if tok == nil {
		return
	}

	if promoted > 0 {
		s.sessionLock.Lock()
		confirmedText, derr := tok.Decode(newConfirmed)
		full := appendText(s.completedTextLocked(), confirmedText)
		s.sessionLock.Unlock()
		if derr == nil {
			s.sink.Emit(events.Confirmed{Text: full})
		}
	}

	provisionalText, derr := tok.Decode(newProvisional)
	if derr != nil {
		return
	}
	s.sessionLock.Lock()
	completed := s.completedTextLocked()
	s.sessionLock.Unlock()
	s.sink.Emit(events.DisplayUpdate{ConfirmedText: completed, ProvisionalText: provisionalText})
	s.sink.Emit(s.statsLocked())
}

// freezeCompletedWindowsLocked must be called with sessionLock held. Per
// open question (b), spec section 9, it detokenizes confirmed++provisional
// directly, without running ledger.Merge and so without the promotion
// delay. This is a deliberate boundary trade-off preserved unchanged: the
// freeze is irreversible regardless, so there is nothing left to protect by
// delaying it.
func (s *Session) freezeCompletedWindowsLocked(windows []int) {
	for range windows {
		s.sharedLock.Lock()
		all := append(append([]int(nil), s.ledgerState.ConfirmedTokenIDs...), s.ledgerState.ProvisionalTokenIDs...)
		s.sharedLock.Unlock()

		tok := s.model.Tokenizer()
		if tok == nil {
			continue
		}
		text, err := tok.Decode(all)
		if err != nil {
			continue
		}
		s.frozenWindowCount++
		completed := appendText(s.completedTextLocked(), text)
		s.setCompletedTextLocked(completed)
		s.resetLedgerLocked()
	}
}

func (s *Session) decodeConfig() decode.Config {
	return decode.Config{Language: s.cfg.Language, MaxTokensPerPass: s.cfg.MaxTokensPerPass, Temperature: s.cfg.Temperature}
}

func (s *Session) resetLedgerLocked() {
	s.sharedLock.Lock()
	s.ledgerState = ledger.State{}
	s.sharedLock.Unlock()
}

func (s *Session) detokenizeLedgerLocked() (string, error) {
	s.sharedLock.Lock()
	all := append(append([]int(nil), s.ledgerState.ConfirmedTokenIDs...), s.ledgerState.ProvisionalTokenIDs...)
	s.sharedLock.Unlock()
	tok := s.model.Tokenizer()
	if tok == nil {
		return "", errNoTokenizer
	}
	return tok.Decode(all)
}

func (s *Session) ledgerTextSnapshotLocked() string {
	return s.completedTextLocked()
}

// completedTextLocked reads the frozen transcript prefix; always called
// with sessionLock held.
func (s *Session) completedTextLocked() string {
	return s.completedText
}

func (s *Session) setCompletedTextLocked(text string) {
	s.completedText = text
}

// recordDecodeStats accumulates one decode.Result's cost into the session's
// running totals. Called without sessionLock held (decode runs on the heavy
// forward-pass path, outside the lock guarding FeedAudio), hence atomics
// rather than the sessionLock fields around it.
func (s *Session) recordDecodeStats(res decode.Result) {
	s.totalDecodeNanos.Add(int64(res.DecodeTime))
	s.totalDecodedTokens.Add(int64(len(res.Tokens)))
}

// statsLocked builds the Stats event (spec section 6). TokensPerSecond is
// decoded tokens divided by wall-clock time spent decoding; RealTimeFactor
// is decode time divided by audio duration covered so far (>1 means decoding
// is running slower than real time). Both read zero, rather than dividing by
// zero, before any decode pass has completed.
func (s *Session) statsLocked() events.Stats {
	s.sessionLock.Lock()
	totalSeconds := float64(s.totalSamplesFed) / float64(s.cfg.Mel.SampleRate)
	windowCount := s.encoder.EncodedWindowCount()
	s.sessionLock.Unlock()

	decodeSeconds := time.Duration(s.totalDecodeNanos.Load()).Seconds()
	tokens := s.totalDecodedTokens.Load()

	var tokensPerSecond, realTimeFactor float64
	if decodeSeconds > 0 {
		tokensPerSecond = float64(tokens) / decodeSeconds
		if totalSeconds > 0 {
			realTimeFactor = decodeSeconds / totalSeconds
		}
	}

	return events.Stats{
		EncodedWindowCount: windowCount,
		TotalAudioSeconds:  totalSeconds,
		TokensPerSecond:    tokensPerSecond,
		RealTimeFactor:     realTimeFactor,
		PeakMemoryGB:       s.memProbe(),
	}
}

// Stop transitions the session to Stopping, drains the in-flight decode,
// performs a final one-shot decode over any remaining pending features,
// and emits Ended. Safe to call once; subsequent calls are no-ops.
func (s *Session) Stop() {
	if !s.state.CompareAndSwap(int32(stateActive), int32(stateStopping)) {
		return
	}

	s.decodeWG.Wait()
	if s.currentState() == stateCancelled {
		return
	}

	s.sessionLock.Lock()
	flushed := s.featurizer.Flush()
	if len(flushed) > 0 {
		if _, err := s.encoder.Feed(s.decodeCtx, flushed); err != nil {
			s.log.Warn("asr: flush feed failed", "err", err)
		}
	}

	if s.cfg.FinalizeCompletedWindows {
		drained := s.encoder.DrainNewlyEncodedWindows()
		s.sessionLock.Unlock()
		for _, idx := range drained {
			if s.currentState() == stateCancelled {
				return
			}
			text, ok := s.finalizeWindowText(s.decodeCtx, idx)
			s.encoder.Finalize(idx)
			if !ok {
				continue
			}
			s.sessionLock.Lock()
			completed := appendText(s.completedTextLocked(), text)
			s.setCompletedTextLocked(completed)
			s.resetLedgerLocked()
			s.sessionLock.Unlock()
			s.sink.Emit(events.Confirmed{Text: completed})
		}
		s.sessionLock.Lock()
	}

	feature, ok, err := s.encoder.EncodePending(s.decodeCtx)
	s.sessionLock.Unlock()
	if err != nil {
		s.log.Warn("asr: final encode pending failed", "err", err)
	}

	if s.currentState() == stateCancelled {
		return
	}

	if ok {
		s.sharedLock.Lock()
		confirmedPrefix := append([]int(nil), s.ledgerState.ConfirmedTokenIDs...)
		s.sharedLock.Unlock()

		res, err := decode.Decode(s.decodeCtx, s.model, feature, confirmedPrefix, s.decodeConfig())
		if err == nil && s.currentState() != stateCancelled {
			s.recordDecodeStats(res)
			allTokens := append(append([]int(nil), confirmedPrefix...), res.Tokens...)
			s.sharedLock.Lock()
			s.ledgerState.ConfirmedTokenIDs = allTokens
			s.ledgerState.ProvisionalTokenIDs = nil
			s.ledgerState.ProvisionalFirstSeen = nil
			s.sharedLock.Unlock()
			s.sink.Emit(s.statsLocked())
		}
	} else {
		// No pending features: promote all provisional into confirmed as-is.
		s.sharedLock.Lock()
		s.ledgerState.ConfirmedTokenIDs = append(s.ledgerState.ConfirmedTokenIDs, s.ledgerState.ProvisionalTokenIDs...)
		s.ledgerState.ProvisionalTokenIDs = nil
		s.ledgerState.ProvisionalFirstSeen = nil
		s.sharedLock.Unlock()
	}

	if s.currentState() == stateCancelled {
		return
	}

	tok := s.model.Tokenizer()
	var confirmedText string
	if tok != nil {
		s.sharedLock.Lock()
		confirmedText, _ = tok.Decode(s.ledgerState.ConfirmedTokenIDs)
		s.sharedLock.Unlock()
	}

	s.sessionLock.Lock()
	fullText := appendText(s.completedTextLocked(), confirmedText)
	s.sessionLock.Unlock()

	s.state.Store(int32(stateEnded))
	s.sink.Emit(events.Ended{FullText: fullText})
	s.closeOnce.Do(func() { s.sink.Close() })
}

// Cancel transitions immediately to Cancelled, cancels any in-flight decode,
// and closes the event channel without an Ended event.
func (s *Session) Cancel() {
	prev := state(s.state.Swap(int32(stateCancelled)))
	if prev == stateCancelled || prev == stateEnded {
		s.state.Store(int32(prev))
		return
	}
	s.cancel()
	s.sessionLock.Lock()
	s.featurizer.Reset()
	s.encoder.Reset()
	s.sessionLock.Unlock()
	s.closeOnce.Do(func() { s.sink.Close() })
}

// errNoTokenizer marks a decode pass that could not detokenize because the
// model has no tokenizer bound (spec section 7: treated as a no-op, not a
// fatal session error).
var errNoTokenizer = errors.New("asr/session: tokenizer unavailable")

// appendText implements the spec section 4.7 concatenation rule: if segment
// is empty, base is unchanged; if base is empty, base becomes segment;
// otherwise a single space is inserted unless either side already ends/
// starts with whitespace.
func appendText(base, segment string) string {
	if segment == "" {
		return base
	}
	if base == "" {
		return segment
	}
	lastBase := rune(base[len(base)-1])
	firstSeg := rune(segment[0])
	if isSpace(lastBase) || isSpace(firstSeg) {
		return base + segment
	}
	return base + " " + segment
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
