package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cassa/internal/store"
)

// Store keeps snapshots in process memory. Nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	items map[string]store.Snapshot
}

func New() *Store {
	return &Store{items: map[string]store.Snapshot{}}
}

// NewFromDir seeds the store from every <household>.json file in base. A
// missing directory yields an empty store.
func NewFromDir(base string) (*Store, error) {
	s := New()
	files, err := filepath.Glob(filepath.Join(base, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", f, err)
		}
		household := strings.TrimSuffix(filepath.Base(f), ".json")
		if _, err := s.Save(context.Background(), household, data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load returns the latest snapshot of household.
func (s *Store) Load(_ context.Context, household string) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[household]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	snap.Document = append([]byte(nil), snap.Document...)
	return snap, nil
}

// Save replaces the document and bumps the revision.
func (s *Store) Save(_ context.Context, household string, document []byte) (int64, error) {
	if strings.TrimSpace(household) == "" {
		return 0, fmt.Errorf("household cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rev := s.items[household].Revision + 1
	s.items[household] = store.Snapshot{
		Household: household,
		Revision:  rev,
		Document:  append([]byte(nil), document...),
		UpdatedAt: time.Now().UTC(),
	}
	return rev, nil
}
