package storage

import (
	"context"
	"sync"
)

// memStore is the process-memory backend. Records survive only for the
// lifetime of the process; insertion order is tracked per keyspace so List
// is stable.
type memStore struct {
	mu     sync.RWMutex
	closed bool
	data   map[string]map[string][]byte
	order  map[string][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{
		data:  map[string]map[string][]byte{},
		order: map[string][]string{},
	}
}

func (s *memStore) Get(ctx context.Context, keyspace, id string) ([]byte, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.data[keyspace][id]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *memStore) Put(ctx context.Context, keyspace, id string, value []byte) error {
	_ = ctx
	cp := make([]byte, len(value))
	copy(cp, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	ks := s.data[keyspace]
	if ks == nil {
		ks = map[string][]byte{}
		s.data[keyspace] = ks
	}
	if _, exists := ks[id]; !exists {
		s.order[keyspace] = append(s.order[keyspace], id)
	}
	ks[id] = cp
	return nil
}

func (s *memStore) Delete(ctx context.Context, keyspace, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	ks := s.data[keyspace]
	if _, ok := ks[id]; !ok {
		return false, nil
	}
	delete(ks, id)
	ord := s.order[keyspace]
	for i, k := range ord {
		if k == id {
			s.order[keyspace] = append(ord[:i], ord[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *memStore) List(ctx context.Context, keyspace string) ([][]byte, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ks := s.data[keyspace]
	out := make([][]byte, 0, len(ks))
	for _, id := range s.order[keyspace] {
		v, ok := ks[id]
		if !ok {
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
