package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cassa/internal/store"

	_ "modernc.org/sqlite"
)

// Pending is a stored snapshot whose latest revision has not reached the mirror.
type Pending struct {
	store.Snapshot
	SyncedRevision int64
	SyncError      string
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps the revision counter monotonic.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements store.SnapshotReader
func (r *SQLiteRepository) Load(ctx context.Context, household string) (store.Snapshot, error) {
	var (
		snap    store.Snapshot
		doc     string
		updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT household, revision, document, updated_at FROM snapshots WHERE household = ?`,
		household).Scan(&snap.Household, &snap.Revision, &doc, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, store.ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap.Document = []byte(doc)
	snap.UpdatedAt = parseTime(updated)
	return snap, nil
}

// Save implements store.SnapshotWriter. The whole document is replaced and
// the previous one kept in snapshot_history.
func (r *SQLiteRepository) Save(ctx context.Context, household string, document []byte) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var rev int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO snapshots (household, revision, document, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (household) DO UPDATE SET
			revision   = snapshots.revision + 1,
			document   = excluded.document,
			updated_at = excluded.updated_at
		RETURNING revision`,
		household, string(document), now).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_history (household, revision, document, created_at) VALUES (?, ?, ?, ?)`,
		household, rev, string(document), now); err != nil {
		return 0, fmt.Errorf("record history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot saved to SQLite",
		"household", household,
		"revision", rev,
		"bytes", len(document))

	return rev, nil
}

// Revision returns the stored document of a specific revision.
func (r *SQLiteRepository) Revision(ctx context.Context, household string, rev int64) (store.Snapshot, error) {
	var (
		doc     string
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT document, created_at FROM snapshot_history WHERE household = ? AND revision = ?`,
		household, rev).Scan(&doc, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, store.ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load revision: %w", err)
	}
	return store.Snapshot{
		Household: household,
		Revision:  rev,
		Document:  []byte(doc),
		UpdatedAt: parseTime(created),
	}, nil
}

// PendingSync returns up to limit households whose latest revision has not
// been mirrored, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]Pending, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT household, revision, document, updated_at, synced_revision, COALESCE(sync_error, '')
		FROM snapshots
		WHERE synced_revision < revision
		ORDER BY updated_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var (
			p       Pending
			doc     string
			updated string
		)
		if err := rows.Scan(&p.Household, &p.Revision, &doc, &updated, &p.SyncedRevision, &p.SyncError); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.Document = []byte(doc)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced records that rev reached the mirror. Older revisions never
// move the marker backwards.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, household string, rev int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE snapshots
		SET synced_revision = MAX(synced_revision, ?), sync_error = NULL
		WHERE household = ?`, rev, household)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkSyncError stores the last mirror failure for household.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, household string, syncErr error) error {
	msg := "unknown error"
	if syncErr != nil {
		msg = syncErr.Error()
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE snapshots SET sync_error = ? WHERE household = ?`, msg, household); err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	return nil
}

// SyncedRevision returns the last revision of household known to be mirrored.
func (r *SQLiteRepository) SyncedRevision(ctx context.Context, household string) (int64, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx,
		`SELECT synced_revision FROM snapshots WHERE household = ?`, household).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("synced revision: %w", err)
	}
	return rev, nil
}

// Households lists every stored household.
func (r *SQLiteRepository) Households(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT household FROM snapshots ORDER BY household`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PruneHistory drops history rows older than keep revisions behind the head.
func (r *SQLiteRepository) PruneHistory(ctx context.Context, household string, keep int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM snapshot_history
		WHERE household = ?
		AND revision <= (SELECT revision FROM snapshots WHERE household = ?) - ?`,
		household, household, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
