// Package encoder implements the WindowedEncoder (spec section 4.2): it
// batches mel frames into fixed-size windows, invokes the external acoustic
// encoder once per completed window, and caches results with bounded
// least-recently-used eviction. The pending partial window is re-encoded
// fresh on every call and is never cached. A completed window's raw mel
// frames stay retained until the caller calls Finalize, so an LRU eviction
// can never lose a window outright: Window recomputes it on a cache miss.
package encoder

import (
	"container/list"
	"context"

	"github.com/haivivi/giztoy-asr/pkg/asr/featurizer"
	"github.com/haivivi/giztoy-asr/pkg/asr/model"
)

// Config parameterizes the encoder.
type Config struct {
	WindowSize       int // W, frames per encoder window
	MaxCachedWindows int // bounded LRU cache capacity
}

// DefaultConfig mirrors spec section 6's maxCachedWindows default of 4; W is
// left to the caller since it is the acoustic encoder's native receptive
// field, not a pipeline-wide constant.
func DefaultConfig(windowSize int) Config {
	return Config{WindowSize: windowSize, MaxCachedWindows: 4}
}

// Encoder is the WindowedEncoder. Not safe for concurrent use; the Session
// serializes all calls under sessionLock (spec section 5).
type Encoder struct {
	cfg   Config
	model model.Model

	pending []featurizer.Frame

	encodedWindowCount int
	newlyEncoded       []int

	cache   map[int]*list.Element
	lru     *list.List // front = most recently used
	nextIdx int

	// rawByIndex retains a copy of every completed window's raw mel frames
	// until Finalize(idx) is called, so a Window lookup can recompute an
	// LRU-evicted feature instead of losing it: a single Feed call can
	// complete more windows than MaxCachedWindows before the session ever
	// gets a chance to drain and finalize them, which would otherwise evict
	// a window's only encoded copy before anything read it.
	rawByIndex map[int][]featurizer.Frame
}

type cacheEntry struct {
	index   int
	feature model.Tensor
}

// New constructs an Encoder backed by m for completed-window encoding.
func New(cfg Config, m model.Model) *Encoder {
	return &Encoder{
		cfg:        cfg,
		model:      m,
		cache:      make(map[int]*list.Element),
		lru:        list.New(),
		rawByIndex: make(map[int][]featurizer.Frame),
	}
}

// Feed appends frames to the pending-window buffer. Every time the buffer
// reaches WindowSize frames, it slices a window, hands it to the external
// encoder, stores the result in the cache, increments EncodedWindowCount,
// and enqueues the window's index into the newly-encoded queue. Returns the
// number of complete windows produced by this call.
func (e *Encoder) Feed(ctx context.Context, frames []featurizer.Frame) (int, error) {
	e.pending = append(e.pending, frames...)

	produced := 0
	for len(e.pending) >= e.cfg.WindowSize {
		window := e.pending[:e.cfg.WindowSize]
		feature, err := e.encode(ctx, window)
		if err != nil {
			return produced, err
		}
		idx := e.nextIdx
		e.nextIdx++
		raw := make([]featurizer.Frame, len(window))
		copy(raw, window)
		e.rawByIndex[idx] = raw
		e.store(idx, feature)
		e.encodedWindowCount++
		e.newlyEncoded = append(e.newlyEncoded, idx)
		produced++

		rest := make([]featurizer.Frame, len(e.pending)-e.cfg.WindowSize)
		copy(rest, e.pending[e.cfg.WindowSize:])
		e.pending = rest
	}
	return produced, nil
}

// HasPendingFrames reports whether the pending buffer is non-empty.
func (e *Encoder) HasPendingFrames() bool {
	return len(e.pending) > 0
}

// EncodePending runs the external encoder on a freshly copied pending
// buffer if it has at least one frame, without committing it to the cache.
// Returns the zero Tensor and false if the pending buffer is empty.
func (e *Encoder) EncodePending(ctx context.Context) (model.Tensor, bool, error) {
	if len(e.pending) == 0 {
		return model.Tensor{}, false, nil
	}
	copied := make([]featurizer.Frame, len(e.pending))
	copy(copied, e.pending)
	feature, err := e.encode(ctx, copied)
	if err != nil {
		return model.Tensor{}, false, err
	}
	return feature, true, nil
}

// DrainNewlyEncodedWindows returns and clears the queue of window indices
// encoded since the last drain, in index order.
func (e *Encoder) DrainNewlyEncodedWindows() []int {
	if len(e.newlyEncoded) == 0 {
		return nil
	}
	out := e.newlyEncoded
	e.newlyEncoded = nil
	return out
}

// Window returns the encoded feature for index idx: a cache hit if it is
// still resident, or a fresh recompute from the retained raw frames if LRU
// eviction dropped it first (spec section 4.2's recompute-on-demand
// allowance). Returns false only once the caller has called Finalize(idx)
// or the encoder has been Reset, since no trace of the window survives
// either of those.
func (e *Encoder) Window(ctx context.Context, idx int) (model.Tensor, bool) {
	if el, ok := e.cache[idx]; ok {
		e.lru.MoveToFront(el)
		return el.Value.(*cacheEntry).feature, true
	}

	raw, ok := e.rawByIndex[idx]
	if !ok {
		return model.Tensor{}, false
	}
	feature, err := e.encode(ctx, raw)
	if err != nil {
		return model.Tensor{}, false
	}
	e.store(idx, feature)
	return feature, true
}

// Finalize releases the retained raw frames for idx, once the session has
// consumed its transcript and will never revisit it. Safe to call on an
// index that was never produced or already finalized.
func (e *Encoder) Finalize(idx int) {
	delete(e.rawByIndex, idx)
}

// EncodedWindowCount reports the total number of completed windows encoded
// so far.
func (e *Encoder) EncodedWindowCount() int {
	return e.encodedWindowCount
}

// Reset clears the pending buffer, cache, and newly-encoded queue.
func (e *Encoder) Reset() {
	e.pending = nil
	e.cache = make(map[int]*list.Element)
	e.lru = list.New()
	e.rawByIndex = make(map[int][]featurizer.Frame)
	e.newlyEncoded = nil
	e.encodedWindowCount = 0
	e.nextIdx = 0
}

// CacheLen reports the current cache size, for invariant 6 ("cache bound")
// assertions in tests.
func (e *Encoder) CacheLen() int {
	return e.lru.Len()
}

func (e *Encoder) encode(ctx context.Context, frames []featurizer.Frame) (model.Tensor, error) {
	numMels := 0
	if len(frames) > 0 {
		numMels = len(frames[0])
	}
	mel := model.NewTensor(len(frames), numMels)
	for i, f := range frames {
		copy(mel.Row(i), f)
	}
	return e.model.Encode(ctx, mel)
}

func (e *Encoder) store(idx int, feature model.Tensor) {
	el := e.lru.PushFront(&cacheEntry{index: idx, feature: feature})
	e.cache[idx] = el
	for e.lru.Len() > e.cfg.MaxCachedWindows {
		oldest := e.lru.Back()
		if oldest == nil {
			break
		}
		e.lru.Remove(oldest)
		delete(e.cache, oldest.Value.(*cacheEntry).index)
	}
}
