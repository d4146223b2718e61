package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Every write bumps a per-key version;
// an optimistic transaction commits only if the watched key's version is
// unchanged at commit time.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	hashes   map[string]map[string]string
	versions map[string]uint64
	closed   bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		hashes:   make(map[string]map[string]string),
		versions: make(map[string]uint64),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.hashes, key)
	s.values[key] = value
	s.versions[key]++
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		_, isValue := s.values[k]
		_, isHash := s.hashes[k]
		if !isValue && !isHash {
			continue
		}
		delete(s.values, k)
		delete(s.hashes, k)
		s.versions[k]++
	}
	return nil
}

// ScanPrefix iterates over a sorted snapshot of matching keys.
func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix string, fn func(key string) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(fields) == 0 {
		return nil
	}
	delete(s.values, key)
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	s.versions[key]++
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) WithOptimisticTransaction(_ context.Context, watchKey string, body func(tx Tx) error) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, ErrClosed
	}
	watched := s.versions[watchKey]
	s.mu.RUnlock()

	tx := &memoryTx{store: s}
	if err := body(tx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if s.versions[watchKey] != watched {
		return true, nil
	}
	for _, w := range tx.writes {
		delete(s.hashes, w.key)
		s.values[w.key] = w.value
		s.versions[w.key]++
	}
	return false, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	writes []pendingWrite
}

func (t *memoryTx) Get(ctx context.Context, key string) (string, bool, error) {
	return t.store.Get(ctx, key)
}

func (t *memoryTx) Set(key, value string) {
	t.writes = append(t.writes, pendingWrite{key: key, value: value})
}
