// Package store holds observable application values. Each consumer
// subscribes under its own key and gets at most one active callback.
package store

import "sync"

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Store is a value with keyed change notification.
type Store[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[string]subscription[T]
	order  []string
	nextID uint64
}

// New returns a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		value: initial,
		subs:  make(map[string]subscription[T]),
	}
}

func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value and notifies subscribers in subscription order.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	fns := s.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to a copy of the value, then behaves like Set.
func (s *Store[T]) Update(fn func(*T)) {
	s.mu.Lock()
	v := s.value
	fn(&v)
	s.value = v
	fns := s.snapshot()
	s.mu.Unlock()

	for _, f := range fns {
		f(v)
	}
}

func (s *Store[T]) snapshot() []func(T) {
	fns := make([]func(T), 0, len(s.order))
	for _, key := range s.order {
		fns = append(fns, s.subs[key].fn)
	}
	return fns
}

// Subscribe registers fn under key, replacing any earlier callback for the
// same key. The returned function removes this registration only; calling
// it more than once is harmless.
func (s *Store[T]) Subscribe(key string, fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if _, ok := s.subs[key]; !ok {
		s.order = append(s.order, key)
	}
	s.subs[key] = subscription[T]{id: id, fn: fn}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur, ok := s.subs[key]
		if !ok || cur.id != id {
			return
		}
		delete(s.subs, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Store[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
