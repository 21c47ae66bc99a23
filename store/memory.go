package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It mirrors the Redis
// semantics the cache components rely on and is used in tests and for
// single-process runs without Redis.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]*memoryItem
}

type memoryItem struct {
	value     []byte
	list      [][]byte
	isList    bool
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for TTL expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:   time.Now,
		items: make(map[string]*memoryItem),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// lookup returns the live item at key, dropping it if it has expired.
// Callers must hold mu.
func (s *MemoryStore) lookup(key string) (*memoryItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if !it.expiresAt.IsZero() && s.now().After(it.expiresAt) {
		delete(s.items, key)
		return nil, false
	}
	return it, true
}

// Set implements Setter
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

// Get implements Getter
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if it.isList {
		return nil, false, fmt.Errorf("memory get %q: %w", key, errWrongType)
	}
	return append([]byte(nil), it.value...), true, nil
}

// Incr implements Counter. Like INCRBY it keeps an existing TTL.
func (s *MemoryStore) Incr(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		it = &memoryItem{value: []byte("0")}
		s.items[key] = it
	}
	if it.isList {
		return 0, fmt.Errorf("memory incrby %q: %w", key, errWrongType)
	}
	n, err := strconv.ParseInt(string(it.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memory incrby %q: %w", key, errNotInteger)
	}
	if (delta > 0 && n > math.MaxInt64-delta) || (delta < 0 && n < math.MinInt64-delta) {
		return 0, fmt.Errorf("memory incrby %q: %w", key, errOverflow)
	}
	n += delta
	it.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Append implements Lister
func (s *MemoryStore) Append(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		it = &memoryItem{isList: true}
		s.items[key] = it
	}
	if !it.isList {
		return fmt.Errorf("memory rpush %q: %w", key, errWrongType)
	}
	it.list = append(it.list, append([]byte(nil), value...))
	return nil
}

// List implements Lister
func (s *MemoryStore) List(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return [][]byte{}, nil
	}
	if !it.isList {
		return nil, fmt.Errorf("memory lrange %q: %w", key, errWrongType)
	}
	out := make([][]byte, len(it.list))
	for i, v := range it.list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

// FlushAll implements Store
func (s *MemoryStore) FlushAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*memoryItem)
	return nil
}

// Ping implements Store
func (s *MemoryStore) Ping(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
