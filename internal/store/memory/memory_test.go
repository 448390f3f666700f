package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cassa/internal/store"
)

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Load(ctx, "home"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := []byte(`{"version":1}`)
	rev, err := s.Save(ctx, "home", doc)
	if err != nil || rev != 1 {
		t.Fatalf("unexpected save: rev=%d err=%v", rev, err)
	}
	doc[0] = 'X'

	rev, _ = s.Save(ctx, "home", []byte(`{"version":1,"log":[]}`))
	if rev != 2 {
		t.Fatalf("revision not bumped: %d", rev)
	}

	snap, err := s.Load(ctx, "home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Revision != 2 || string(snap.Document) != `{"version":1,"log":[]}` {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if _, err := s.Save(ctx, " ", doc); err == nil {
		t.Fatalf("expected empty household to be rejected")
	}
}

func TestNewFromDirSeeds(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromDir(dir)
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if _, err := s.Load(context.Background(), "home"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected empty store")
	}

	if err := os.WriteFile(filepath.Join(dir, "home.json"), []byte(`{"log":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = NewFromDir(dir)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap, err := s.Load(context.Background(), "home")
	if err != nil || snap.Revision != 1 {
		t.Fatalf("seeded snapshot missing: %+v %v", snap, err)
	}
}
