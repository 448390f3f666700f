package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cassa/internal/amqp"
	"cassa/internal/storage"
	"cassa/internal/store"
)

type fakeMirror struct {
	mu   sync.Mutex
	got  []store.Snapshot
	fail error
}

func (m *fakeMirror) Mirror(_ context.Context, snap store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.got = append(m.got, snap)
	return nil
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "cassa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHandleSnapshotSaved(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{}
	w := NewSyncWorker(repo, mirror, 0)

	repo.Save(ctx, "home", []byte(`{"v":1}`))
	repo.Save(ctx, "home", []byte(`{"v":2}`))

	// An older message still mirrors the latest revision.
	require.NoError(t, w.HandleSnapshotSaved(ctx, amqp.NewSnapshotSavedMessage("home", 1)))
	require.Equal(t, 1, mirror.count())
	assert.Equal(t, int64(2), mirror.got[0].Revision)
	assert.Equal(t, `{"v":2}`, string(mirror.got[0].Document))

	synced, err := repo.SyncedRevision(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, int64(2), synced)

	// Already mirrored.
	require.NoError(t, w.HandleSnapshotSaved(ctx, amqp.NewSnapshotSavedMessage("home", 2)))
	assert.Equal(t, 1, mirror.count())

	// Unknown households are acknowledged rather than requeued.
	assert.NoError(t, w.HandleSnapshotSaved(ctx, amqp.NewSnapshotSavedMessage("nobody", 1)))
}

func TestHandleSnapshotSaved_MirrorFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{fail: errors.New("quota exceeded")}
	w := NewSyncWorker(repo, mirror, 10)

	repo.Save(ctx, "home", []byte(`{}`))
	err := w.HandleSnapshotSaved(ctx, amqp.NewSnapshotSavedMessage("home", 1))
	require.Error(t, err)

	pending, err := repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "quota exceeded", pending[0].SyncError)
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{}
	w := NewSyncWorker(repo, mirror, 1)

	repo.Save(ctx, "home", []byte(`{}`))
	repo.Save(ctx, "away", []byte(`{}`))

	require.NoError(t, w.ProcessPending(ctx))
	assert.Equal(t, 1, mirror.count(), "batch size bounds the sweep")

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Equal(t, 2, mirror.count())

	pending, err := repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Equal(t, 2, mirror.count())
}

func TestPruneHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	w := NewSyncWorker(repo, &fakeMirror{}, 10)

	for range 4 {
		repo.Save(ctx, "home", []byte(`{}`))
	}
	repo.Save(ctx, "away", []byte(`{}`))

	n, err := w.PruneHistory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPoller(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{}
	p := NewPoller(NewSyncWorker(repo, mirror, 10), PollerConfig{PollInterval: 10 * time.Millisecond})

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx))

	repo.Save(ctx, "home", []byte(`{}`))
	assert.Eventually(t, func() bool { return mirror.count() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(stopCtx))
}
