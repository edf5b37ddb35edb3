// Package storage archives full transcripts to a FileStore (local disk or
// S3-compatible object storage, see local.go/s3.go) when a session ends.
// Adapted from the teacher's generic pkg/storage package, folded directly
// into this one since Archiver is the only caller of FileStore in this
// module. A SUPPLEMENTED feature (SPEC_FULL.md item 1): optional, off by
// default, never required by session.Session itself.
package storage

import (
	"context"
	"fmt"
)

// Archiver uploads final transcripts under a per-session path.
type Archiver struct {
	store FileStore
}

// New constructs an Archiver backed by store. Use NewLocal for on-disk
// archiving or NewS3 for an S3-compatible object store.
func New(store FileStore) *Archiver {
	return &Archiver{store: store}
}

// Archive writes fullText to "<sessionID>/transcript.txt", overwriting any
// previous archive for that session.
func (a *Archiver) Archive(ctx context.Context, sessionID, fullText string) error {
	path := fmt.Sprintf("%s/transcript.txt", sessionID)
	w, err := a.store.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("asr/persistence/storage: open %s: %w", path, err)
	}
	if _, err := w.Write([]byte(fullText)); err != nil {
		w.Close()
		return fmt.Errorf("asr/persistence/storage: write %s: %w", path, err)
	}
	return w.Close()
}
