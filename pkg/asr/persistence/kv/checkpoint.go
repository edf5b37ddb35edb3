// Package kv persists a durable, crash-safe transcript checkpoint log on
// top of the Store abstraction defined in store.go (Badger-backed in
// production via NewBadger, in-memory for tests via NewMemory) — folded
// in directly from the teacher's generic pkg/kv package, since Checkpointer
// is the only caller of Store in this module. It is a SUPPLEMENTED feature
// (SPEC_FULL.md item 1): the core session.Session never requires it — a
// Checkpointer is an optional collaborator a host wires in to survive a
// process crash mid-session.
package kv

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Checkpointer appends confirmed-text snapshots to a Store, keyed by
// session ID and a monotonically increasing sequence number.
type Checkpointer struct {
	store     Store
	sessionID string
	seq       int
}

// New constructs a Checkpointer scoped to one session ID.
func New(store Store, sessionID string) *Checkpointer {
	return &Checkpointer{store: store, sessionID: sessionID}
}

// Append records the confirmed text after a Confirmed event, under key
// ["asr", "checkpoint", sessionID, seq].
func (c *Checkpointer) Append(ctx context.Context, text string) error {
	key := c.key(c.seq)
	c.seq++
	return c.store.Set(ctx, key, []byte(text))
}

// Latest returns the most recently appended checkpoint text, or ("", false)
// if none has been recorded yet.
func (c *Checkpointer) Latest(ctx context.Context) (string, bool, error) {
	if c.seq == 0 {
		return "", false, nil
	}
	val, err := c.store.Get(ctx, c.key(c.seq-1))
	if err != nil {
		if err == ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return string(val), true, nil
}

func (c *Checkpointer) key(seq int) Key {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return Key{"asr", "checkpoint", c.sessionID, fmt.Sprintf("%x", b)}
}
