package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
)

// FilterFunc reports whether an item belongs to a listing
type FilterFunc[T any] func(item T) bool

// SortFunc orders a listing
type SortFunc[T any] func(i, j T) bool

// InMemoryStore implements a generic in-memory store. Items are cloned on the
// way in and out so callers never share state with the store, the same way
// rows read from Postgres are independent copies.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	clone func(T) T
}

// NewInMemoryStore creates a new InMemoryStore
func NewInMemoryStore[T any](clone func(T) T) *InMemoryStore[T] {
	if clone == nil {
		clone = func(item T) T { return item }
	}
	return &InMemoryStore[T]{
		items: make(map[string]T),
		clone: clone,
	}
}

// Create adds a new item to the store
func (s *InMemoryStore[T]) Create(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewError("item already exists").
			WithHintf("Item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}

	s.items[id] = s.clone(item)
	return nil
}

// Get retrieves an item by ID
func (s *InMemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[id]; exists {
		return s.clone(item), nil
	}

	var zero T
	return zero, notFound(id)
}

// Find returns the first item matching filterFn
func (s *InMemoryStore[T]) Find(ctx context.Context, filterFn FilterFunc[T]) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if filterFn(item) {
			return s.clone(item), true
		}
	}
	var zero T
	return zero, false
}

// List retrieves items matching filterFn, sorted and paged
func (s *InMemoryStore[T]) List(ctx context.Context, page *types.QueryFilter, filterFn FilterFunc[T], sortFn SortFunc[T]) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, 0)
	for _, item := range s.items {
		if filterFn == nil || filterFn(item) {
			result = append(result, s.clone(item))
		}
	}

	if sortFn != nil {
		desc := page != nil && page.GetOrder() == types.OrderDesc
		sort.SliceStable(result, func(i, j int) bool {
			if desc {
				return sortFn(result[j], result[i])
			}
			return sortFn(result[i], result[j])
		})
	}

	if page == nil || page.Limit == nil {
		return result
	}
	start := page.GetOffset()
	if start >= len(result) {
		return []T{}
	}
	end := start + page.GetLimit()
	if end > len(result) {
		end = len(result)
	}
	return result[start:end]
}

// Count returns the total number of items matching the filter
func (s *InMemoryStore[T]) Count(ctx context.Context, filterFn FilterFunc[T]) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if filterFn == nil || filterFn(item) {
			count++
		}
	}
	return count
}

// Update replaces an existing item
func (s *InMemoryStore[T]) Update(ctx context.Context, id string, item T) error {
	_, err := s.Mutate(ctx, id, func(T) (T, error) { return item, nil })
	return err
}

// Mutate runs a read-modify-write of one item while holding the store lock.
// The stored item is left untouched when fn fails.
func (s *InMemoryStore[T]) Mutate(ctx context.Context, id string, fn func(current T) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	current, exists := s.items[id]
	if !exists {
		return zero, notFound(id)
	}

	next, err := fn(s.clone(current))
	if err != nil {
		return zero, err
	}
	s.items[id] = s.clone(next)
	return s.clone(next), nil
}

// Insert adds item unless one matching conflict exists, atomically
func (s *InMemoryStore[T]) Insert(ctx context.Context, id string, item T, conflict FilterFunc[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return false
	}
	for _, existing := range s.items {
		if conflict != nil && conflict(existing) {
			return false
		}
	}
	s.items[id] = s.clone(item)
	return true
}

// Clear removes all items from the store
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

func notFound(id string) error {
	return ierr.NewError("item not found").
		WithHintf("Item %s not found", id).
		WithReportableDetails(map[string]any{"id": id}).
		Mark(ierr.ErrNotFound)
}

func cloneMetadata(m types.Metadata) types.Metadata {
	if m == nil {
		return nil
	}
	out := make(types.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
