package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// Config holds cache store configuration
type Config struct {
	TTL        time.Duration
	MaxEntries int
	Clock      domain.Clock
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
}

// Store is a bounded, time-boxed key/value cache. Entries expire lazily on read
// and the oldest-inserted entry is evicted when capacity is exceeded.
// It has no knowledge of job status; callers decide what is safe to insert.
type Store[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	clock      domain.Clock
	entries    map[K]*list.Element
	order      *list.List // front is oldest insertion
}

// New creates a new Store
func New[K comparable, V any](cfg Config) *Store[K, V] {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}

	return &Store[K, V]{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		clock:      clock,
		entries:    make(map[K]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key. An entry at or past its TTL is a miss and is removed.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	elem, ok := s.entries[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if s.clock.Now().Sub(e.insertedAt) >= s.ttl {
		s.removeElement(elem)
		return zero, false
	}

	return e.value, true
}

// Put stores value under key. Re-putting a key refreshes its value and insertion time.
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if elem, ok := s.entries[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.insertedAt = now
		s.order.MoveToBack(elem)
		return
	}

	s.entries[key] = s.order.PushBack(&entry[K, V]{key: key, value: value, insertedAt: now})

	for s.maxEntries > 0 && s.order.Len() > s.maxEntries {
		s.removeElement(s.order.Front())
	}
}

// Delete removes key if present
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.removeElement(elem)
	}
}

// DeleteFunc removes every entry whose key matches and returns how many were removed
func (s *Store[K, V]) DeleteFunc(match func(K) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		if match(elem.Value.(*entry[K, V]).key) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Size returns the number of stored entries, including expired ones not yet read
func (s *Store[K, V]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.order.Len()
}

func (s *Store[K, V]) removeElement(elem *list.Element) {
	e := s.order.Remove(elem).(*entry[K, V])
	delete(s.entries, e.key)
}
