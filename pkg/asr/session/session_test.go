package session

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haivivi/giztoy-asr/pkg/asr/clock"
	"github.com/haivivi/giztoy-asr/pkg/asr/events"
	"github.com/haivivi/giztoy-asr/pkg/asr/featurizer"
	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMelConfig() featurizer.Config {
	return featurizer.Config{SampleRate: 16000, NFft: 8, HopLength: 4, NumMels: 4, LowFreqHz: 20, HighFreqHz: 7000}
}

func makeSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i%5) * 0.1
	}
	return s
}

// schedulingPredicate is a pure decision over session fields (spec section
// 4.5); these cases drive it directly rather than through a full decode.

func TestSchedulingPredicateNoContentNoDecode(t *testing.T) {
	s := NewWithOptions(model.NewMock(model.MockConfig{}), DefaultConfig(), clock.Real, testLogger(), NoopMemoryProbe)
	s.hasNewEncoderContent = false
	ok, boundary := s.schedulingPredicate(time.Now(), 0)
	if ok || boundary {
		t.Fatalf("schedulingPredicate = (%v,%v), want (false,false) with no new content", ok, boundary)
	}
}

func TestSchedulingPredicateFirstContentAlwaysDecodes(t *testing.T) {
	s := NewWithOptions(model.NewMock(model.MockConfig{}), DefaultConfig(), clock.Real, testLogger(), NoopMemoryProbe)
	s.hasNewEncoderContent = true
	ok, boundary := s.schedulingPredicate(time.Now(), 0)
	if !ok || boundary {
		t.Fatalf("schedulingPredicate = (%v,%v), want (true,false) on first content with no lastDecodeTime", ok, boundary)
	}
}

func TestSchedulingPredicateBoundaryFinalizeIgnoresInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FinalizeCompletedWindows = true
	s := NewWithOptions(model.NewMock(model.MockConfig{}), cfg, clock.Real, testLogger(), NoopMemoryProbe)
	s.hasNewEncoderContent = true
	now := time.Now()
	s.lastDecodeTime = &now
	ok, boundary := s.schedulingPredicate(now, 1)
	if !ok || !boundary {
		t.Fatalf("schedulingPredicate = (%v,%v), want (true,true) when a window just completed", ok, boundary)
	}
}

func TestSchedulingPredicateRespectsDecodeInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecodeIntervalSeconds = 5
	s := NewWithOptions(model.NewMock(model.MockConfig{}), cfg, clock.Real, testLogger(), NoopMemoryProbe)
	s.hasNewEncoderContent = true
	t0 := time.Unix(0, 0)
	s.lastDecodeTime = &t0

	if ok, _ := s.schedulingPredicate(t0.Add(1*time.Second), 0); ok {
		t.Fatalf("schedulingPredicate before the interval elapsed = true, want false")
	}
	if ok, _ := s.schedulingPredicate(t0.Add(6*time.Second), 0); !ok {
		t.Fatalf("schedulingPredicate after the interval elapsed = false, want true")
	}
}

func newStreamingSession(script []int) (*Session, *clock.Fake) {
	cfg := Config{
		Language:                 "English",
		DecodeIntervalSeconds:    0,
		DelayPreset:              DelayLow,
		MaxTokensPerPass:         64,
		Temperature:              0,
		MaxCachedWindows:         4,
		FinalizeCompletedWindows: false,
		WindowSize:               100, // large enough that no window ever completes in these tests
		Mel:                      testMelConfig(),
	}
	fake := clock.NewFake(time.Unix(1000, 0))
	m := model.NewMock(model.MockConfig{Script: script, EmbedDim: 4})
	return NewWithOptions(m, cfg, fake.Now, testLogger(), NoopMemoryProbe), fake
}

func TestFeedAudioEmitsProvisionalOnFirstDecode(t *testing.T) {
	s, _ := newStreamingSession([]int{42})

	s.FeedAudio(makeSamples(20))
	s.decodeWG.Wait()

	s.sharedLock.Lock()
	provisional := append([]int(nil), s.ledgerState.ProvisionalTokenIDs...)
	confirmed := append([]int(nil), s.ledgerState.ConfirmedTokenIDs...)
	s.sharedLock.Unlock()

	if len(confirmed) != 0 {
		t.Fatalf("ConfirmedTokenIDs = %v, want empty before the promotion delay elapses", confirmed)
	}
	if len(provisional) != 1 || provisional[0] != 42 {
		t.Fatalf("ProvisionalTokenIDs = %v, want [42]", provisional)
	}

	ev, err := s.stream.Next()
	if err != nil {
		t.Fatalf("Next (1): %v", err)
	}
	if _, ok := ev.(events.DisplayUpdate); !ok {
		t.Fatalf("Next (1) = %#v, want a DisplayUpdate", ev)
	}
}

func TestFeedAudioPromotesAfterDelayElapses(t *testing.T) {
	s, fake := newStreamingSession([]int{42})

	s.FeedAudio(makeSamples(20))
	s.decodeWG.Wait()
	// Drain the first pass's events (DisplayUpdate, Stats).
	s.stream.Next()
	s.stream.Next()

	fake.Advance(300 * time.Millisecond) // past DelayLow (200ms)
	s.FeedAudio(makeSamples(20))
	s.decodeWG.Wait()

	s.sharedLock.Lock()
	confirmed := append([]int(nil), s.ledgerState.ConfirmedTokenIDs...)
	provisional := append([]int(nil), s.ledgerState.ProvisionalTokenIDs...)
	s.sharedLock.Unlock()

	if len(confirmed) != 1 || confirmed[0] != 42 {
		t.Fatalf("ConfirmedTokenIDs = %v, want [42] once the delay has elapsed", confirmed)
	}
	if len(provisional) != 0 {
		t.Fatalf("ProvisionalTokenIDs = %v, want empty after promotion", provisional)
	}

	ev, err := s.stream.Next()
	if err != nil {
		t.Fatalf("Next (Confirmed): %v", err)
	}
	conf, ok := ev.(events.Confirmed)
	if !ok || conf.Text != "tok42" {
		t.Fatalf("Next (Confirmed) = %#v, want Confirmed{tok42}", ev)
	}
}

func TestStopFlushesResidualAndEmitsEnded(t *testing.T) {
	s, _ := newStreamingSession([]int{7})

	// Fewer samples than NFft(8): Process buffers a residual but returns no
	// frames, so FeedAudio does not itself trigger a decode pass.
	s.FeedAudio(makeSamples(5))

	s.Stop()

	if s.currentState() != stateEnded {
		t.Fatalf("state = %v, want stateEnded after Stop", s.currentState())
	}

	ev, err := s.stream.Next()
	if err != nil {
		t.Fatalf("Next (Stats): %v", err)
	}
	stats, ok := ev.(events.Stats)
	if !ok {
		t.Fatalf("Next (Stats) = %#v, want a Stats event", ev)
	}
	if stats.TokensPerSecond <= 0 {
		t.Fatalf("Stats.TokensPerSecond = %v, want > 0 after a decode pass emitted tokens", stats.TokensPerSecond)
	}
	if stats.RealTimeFactor <= 0 {
		t.Fatalf("Stats.RealTimeFactor = %v, want > 0 after a decode pass", stats.RealTimeFactor)
	}
	if stats.PeakMemoryGB != 0 {
		t.Fatalf("Stats.PeakMemoryGB = %v, want 0 with NoopMemoryProbe", stats.PeakMemoryGB)
	}

	ev, err = s.stream.Next()
	if err != nil {
		t.Fatalf("Next (Ended): %v", err)
	}
	ended, ok := ev.(events.Ended)
	if !ok || ended.FullText != "tok7" {
		t.Fatalf("Next (Ended) = %#v, want Ended{tok7}", ev)
	}

	if _, err := s.stream.Next(); err != events.ErrIteratorDone {
		t.Fatalf("Next after Ended = %v, want ErrIteratorDone", err)
	}
}

func TestStatsUsesInjectedMemoryProbe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mel = testMelConfig()
	probe := func() float64 { return 1.5 }
	s := NewWithOptions(model.NewMock(model.MockConfig{}), cfg, clock.Real, testLogger(), probe)

	stats := s.statsLocked()
	if stats.PeakMemoryGB != 1.5 {
		t.Fatalf("Stats.PeakMemoryGB = %v, want 1.5 from the injected probe", stats.PeakMemoryGB)
	}
	if stats.TokensPerSecond != 0 || stats.RealTimeFactor != 0 {
		t.Fatalf("Stats = %#v, want TokensPerSecond and RealTimeFactor at 0 before any decode pass", stats)
	}
}

func TestCancelClosesStreamWithoutEnded(t *testing.T) {
	s, _ := newStreamingSession([]int{7})

	s.Cancel()

	if s.currentState() != stateCancelled {
		t.Fatalf("state = %v, want stateCancelled", s.currentState())
	}

	if _, err := s.stream.Next(); err != events.ErrIteratorDone {
		t.Fatalf("Next after Cancel = %v, want ErrIteratorDone (no Ended was ever emitted)", err)
	}

	// FeedAudio must be a no-op once cancelled.
	s.FeedAudio(makeSamples(20))
}

func TestCancelAfterStopDoesNotReopenTheSession(t *testing.T) {
	s, _ := newStreamingSession([]int{7})
	s.FeedAudio(makeSamples(5))
	s.Stop()

	s.Cancel()

	if s.currentState() != stateEnded {
		t.Fatalf("state = %v, want stateEnded to remain after a post-Stop Cancel", s.currentState())
	}
}

func TestFinalizeModeEmitsConfirmedPerCompletedWindow(t *testing.T) {
	cfg := Config{
		Language:                 "English",
		DecodeIntervalSeconds:    0,
		DelayPreset:              DelayLow,
		MaxTokensPerPass:         64,
		Temperature:              0,
		MaxCachedWindows:         4,
		FinalizeCompletedWindows: true,
		WindowSize:               2,
		Mel:                      testMelConfig(),
	}
	fake := clock.NewFake(time.Unix(1000, 0))
	m := model.NewMock(model.MockConfig{Script: []int{5}, EmbedDim: 4})
	s := NewWithOptions(m, cfg, fake.Now, testLogger(), NoopMemoryProbe)

	// NFft=8, HopLength=4: 12 samples produce exactly 2 frames, one complete
	// WindowSize=2 window.
	s.FeedAudio(makeSamples(12))
	s.decodeWG.Wait()

	if s.frozenWindowCount != 1 {
		t.Fatalf("frozenWindowCount = %d, want 1", s.frozenWindowCount)
	}
	if s.completedText != "tok5" {
		t.Fatalf("completedText = %q, want tok5", s.completedText)
	}

	ev, err := s.stream.Next()
	if err != nil {
		t.Fatalf("Next (Confirmed): %v", err)
	}
	conf, ok := ev.(events.Confirmed)
	if !ok || conf.Text != "tok5" {
		t.Fatalf("Next (Confirmed) = %#v, want Confirmed{tok5}", ev)
	}

	ev, err = s.stream.Next()
	if err != nil {
		t.Fatalf("Next (DisplayUpdate): %v", err)
	}
	du, ok := ev.(events.DisplayUpdate)
	if !ok || du.ConfirmedText != "tok5" || du.ProvisionalText != "" {
		t.Fatalf("Next (DisplayUpdate) = %#v, want {tok5,\"\"}", ev)
	}
}
