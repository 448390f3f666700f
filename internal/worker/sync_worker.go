package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cassa/internal/amqp"
	"cassa/internal/storage"
	"cassa/internal/store"
)

// Mirror receives stored snapshots, typically the Google Sheets client.
type Mirror interface {
	Mirror(ctx context.Context, snap store.Snapshot) error
}

// SyncWorker copies snapshots from SQLite to the mirror.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	mirror    Mirror
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, mirror Mirror, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleSnapshotSaved processes one snapshot.saved message. The latest
// stored revision is mirrored, so a burst of messages collapses into one
// write; messages for revisions already mirrored are acknowledged untouched.
func (w *SyncWorker) HandleSnapshotSaved(ctx context.Context, msg *amqp.SnapshotSavedMessage) error {
	slog.InfoContext(ctx, "Processing snapshot message",
		"household", msg.Household,
		"revision", msg.Revision)

	synced, err := w.storage.SyncedRevision(ctx, msg.Household)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Message for unknown household, dropping",
			"household", msg.Household)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sync state: %w", err)
	}
	if msg.Revision <= synced {
		slog.DebugContext(ctx, "Revision already mirrored",
			"household", msg.Household,
			"revision", msg.Revision,
			"synced_revision", synced)
		return nil
	}

	snap, err := w.storage.Load(ctx, msg.Household)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return w.syncSnapshot(ctx, snap)
}

// ProcessPending mirrors households whose latest revision has not been
// mirrored yet. It backs up the message path when messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.sweep(ctx, w.batchSize)
	return err
}

// StartupSyncCheck runs a larger sweep when the worker starts, to catch up
// after downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending snapshots found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.storage.PendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending snapshots: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending snapshots", "count", len(pending))
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncSnapshot(ctx, p.Snapshot); err != nil {
			slog.ErrorContext(ctx, "Failed to sync snapshot",
				"household", p.Household,
				"revision", p.Revision,
				"previous_error", p.SyncError,
				"error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncSnapshot(ctx context.Context, snap store.Snapshot) error {
	if err := w.mirror.Mirror(ctx, snap); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, snap.Household, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "household", snap.Household, "error", markErr)
		}
		return fmt.Errorf("mirror snapshot: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, snap.Household, snap.Revision); err != nil {
		// The mirror has the data; the next sweep rewrites it at worst.
		slog.ErrorContext(ctx, "Failed to mark as synced", "household", snap.Household, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced snapshot",
		"household", snap.Household,
		"revision", snap.Revision,
		"bytes", len(snap.Document))
	return nil
}

// PruneHistory trims the snapshot history of every household down to keep
// revisions.
func (w *SyncWorker) PruneHistory(ctx context.Context, keep int64) (int64, error) {
	households, err := w.storage.Households(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, h := range households {
		n, err := w.storage.PruneHistory(ctx, h, keep)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", h, err)
		}
		total += n
	}
	if total > 0 {
		slog.InfoContext(ctx, "Pruned snapshot history", "rows", total, "keep", keep)
	}
	return total, nil
}
