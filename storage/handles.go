// Package storage provides persistence for reference database handles and
// archived tool output.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures
package storage

import (
	"context"
	"sync"

	"github.com/armon/go-radix"
	"github.com/richinex/biotools/model"
)

// HandleStore records what is known about each reference database.
// Implementations must be safe for concurrent use.
type HandleStore interface {
	// Get returns the handle for name, or false if nothing is recorded.
	Get(ctx context.Context, name string) (model.DatabaseHandle, bool, error)

	// Put creates or replaces the handle for handle.Name.
	Put(ctx context.Context, handle model.DatabaseHandle) error

	// List returns handles whose name starts with prefix, sorted by name.
	List(ctx context.Context, prefix string) ([]model.DatabaseHandle, error)
}

// MemoryHandleStore keeps handles in a radix tree.
// Listing walks the tree, so results come back in name order.
type MemoryHandleStore struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// NewMemoryHandleStore creates an empty in-memory store.
func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{tree: radix.New()}
}

// Get returns the handle for name.
func (s *MemoryHandleStore) Get(ctx context.Context, name string) (model.DatabaseHandle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.tree.Get(name)
	if !ok {
		return model.DatabaseHandle{}, false, nil
	}
	return v.(model.DatabaseHandle), true, nil
}

// Put stores a copy of handle.
func (s *MemoryHandleStore) Put(ctx context.Context, handle model.DatabaseHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Insert(handle.Name, handle)
	return nil
}

// List returns handles under prefix in name order.
func (s *MemoryHandleStore) List(ctx context.Context, prefix string) ([]model.DatabaseHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := []model.DatabaseHandle{}
	s.tree.WalkPrefix(prefix, func(key string, v interface{}) bool {
		handles = append(handles, v.(model.DatabaseHandle))
		return false
	})
	return handles, nil
}
