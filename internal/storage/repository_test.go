package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cassa/internal/store"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "cassa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if _, err := repo.Load(ctx, "home"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i, doc := range []string{`{"v":1}`, `{"v":2}`, `{"v":3}`} {
		rev, err := repo.Save(ctx, "home", []byte(doc))
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if rev != int64(i+1) {
			t.Fatalf("save %d: revision = %d", i, rev)
		}
	}

	snap, err := repo.Load(ctx, "home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Revision != 3 || string(snap.Document) != `{"v":3}` || snap.UpdatedAt.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	old, err := repo.Revision(ctx, "home", 2)
	if err != nil || string(old.Document) != `{"v":2}` {
		t.Fatalf("history lookup: %+v %v", old, err)
	}

	if _, err := repo.Save(ctx, "other", []byte(`{}`)); err != nil {
		t.Fatalf("second household: %v", err)
	}
	if snap, _ := repo.Load(ctx, "other"); snap.Revision != 1 {
		t.Fatalf("households share a counter: %d", snap.Revision)
	}
}

func TestSQLiteRepository_SyncBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	repo.Save(ctx, "home", []byte(`{"v":1}`))
	repo.Save(ctx, "home", []byte(`{"v":2}`))
	repo.Save(ctx, "away", []byte(`{"v":1}`))

	pending, err := repo.PendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	if err := repo.MarkSyncError(ctx, "home", errors.New("quota")); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	pending, _ = repo.PendingSync(ctx, 10)
	for _, p := range pending {
		if p.Household == "home" && p.SyncError != "quota" {
			t.Errorf("sync error not stored: %+v", p)
		}
	}

	if err := repo.MarkSynced(ctx, "home", 2); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkSynced(ctx, "home", 1); err != nil {
		t.Fatalf("mark older: %v", err)
	}
	if rev, err := repo.SyncedRevision(ctx, "home"); err != nil || rev != 2 {
		t.Fatalf("synced revision = %d, %v", rev, err)
	}
	if hs, _ := repo.Households(ctx); len(hs) != 2 || hs[0] != "away" {
		t.Fatalf("unexpected households %v", hs)
	}
	pending, _ = repo.PendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Household != "away" {
		t.Fatalf("expected only away pending, got %+v", pending)
	}

	repo.Save(ctx, "home", []byte(`{"v":3}`))
	pending, _ = repo.PendingSync(ctx, 1)
	if len(pending) != 1 {
		t.Fatalf("limit ignored: %d", len(pending))
	}

	if err := repo.MarkSynced(ctx, "nobody", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_PruneHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for range 5 {
		repo.Save(ctx, "home", []byte(`{}`))
	}
	n, err := repo.PruneHistory(ctx, "home", 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 3 {
		t.Fatalf("pruned %d rows, want 3", n)
	}
	if _, err := repo.Revision(ctx, "home", 3); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revision 3 should be gone")
	}
	if _, err := repo.Revision(ctx, "home", 4); err != nil {
		t.Fatalf("revision 4 should remain: %v", err)
	}
}
