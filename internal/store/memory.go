package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"itemsvc/internal/item"
)

// Memory is an in-process Store. It is safe for concurrent use and is
// intended for tests and local development.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item.Item
	down  atomic.Bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item.Item)}
}

// SetAvailable toggles whether Ping and the other operations succeed,
// simulating an unreachable backend.
func (s *Memory) SetAvailable(ok bool) {
	s.down.Store(!ok)
}

func (s *Memory) check() error {
	if s.down.Load() {
		return item.ErrUnavailable
	}
	return nil
}

func (s *Memory) List(_ context.Context, q item.Query) ([]item.Item, int, error) {
	if err := s.check(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	all := make([]item.Item, 0, len(s.items))
	for _, it := range s.items {
		all = append(all, it)
	}
	s.mu.RUnlock()

	page, total := q.Apply(all)
	return page, total, nil
}

func (s *Memory) Get(_ context.Context, id string) (item.Item, error) {
	if err := s.check(); err != nil {
		return item.Item{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return item.Item{}, item.ErrNotFound
	}
	return it, nil
}

func (s *Memory) Create(_ context.Context, f item.Fields) (item.Item, error) {
	if err := s.check(); err != nil {
		return item.Item{}, err
	}

	it, err := item.New(f, item.Now())
	if err != nil {
		return item.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
	return it, nil
}

func (s *Memory) Update(_ context.Context, id string, f item.Fields) (item.Item, error) {
	if err := s.check(); err != nil {
		return item.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[id]
	if !ok {
		return item.Item{}, item.ErrNotFound
	}
	updated, err := existing.Apply(f, item.Now())
	if err != nil {
		return item.Item{}, err
	}
	s.items[id] = updated
	return updated, nil
}

func (s *Memory) Delete(_ context.Context, id string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *Memory) BulkCreate(_ context.Context, fs []item.Fields) ([]item.Item, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	items, err := item.NewBatch(fs, item.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
	return items, nil
}

// Ping takes the read lock, so a store wedged behind a writer reports
// unavailable once ctx is done.
func (s *Memory) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	for !s.mu.TryRLock() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", item.ErrUnavailable, ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}
	s.mu.RUnlock()
	return nil
}

func (s *Memory) Close() error { return nil }
