// Package store provides keyed record storage for AP2 mandates and pending
// authorizations.
//
// Records are append-only: there is no delete operation. Every mutation goes
// through [Store.Update], which serializes read-modify-write cycles per key so
// that status checks and status writes for one mandate never interleave.
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"
)

var (
	// ErrNotFound is returned when no record exists for the requested id.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned by Put when the id is already taken.
	ErrDuplicate = errors.New("store: record already exists")
)

// Store is keyed storage for one record type.
type Store[T any] interface {
	// Put inserts a new record. Existing ids are never overwritten.
	Put(ctx context.Context, id string, record T) error
	// Get returns a copy of the record stored under id.
	Get(ctx context.Context, id string) (T, error)
	// Update atomically applies mutate to the record stored under id and
	// returns the stored result. If mutate returns an error the record is
	// left unchanged and the error is returned as is.
	Update(ctx context.Context, id string, mutate func(*T) error) (T, error)
}

const defaultStripes = 32

type stripe[T any] struct {
	mu      sync.Mutex
	records map[string]T
}

// Memory is a concurrency-safe in-memory [Store]. Keys are spread over a fixed
// set of lock stripes, so operations on different mandates rarely contend and
// operations on the same mandate are strictly serialized.
type Memory[T any] struct {
	seed    maphash.Seed
	stripes []*stripe[T]
	clone   func(T) T
}

// MemoryOption customizes a [Memory] store.
type MemoryOption[T any] func(*Memory[T])

// WithStripes sets the number of lock stripes.
func WithStripes[T any](n int) MemoryOption[T] {
	if n <= 0 {
		panic("store: stripe count must be positive")
	}
	return func(m *Memory[T]) {
		m.stripes = newStripes[T](n)
	}
}

// WithClone registers a deep-copy function applied whenever a record crosses
// the store boundary. Use it for record types holding slices or maps.
func WithClone[T any](fn func(T) T) MemoryOption[T] {
	return func(m *Memory[T]) {
		m.clone = fn
	}
}

// NewMemory builds an empty [Memory] store.
func NewMemory[T any](opts ...MemoryOption[T]) *Memory[T] {
	m := &Memory[T]{
		seed:    maphash.MakeSeed(),
		stripes: newStripes[T](defaultStripes),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

func newStripes[T any](n int) []*stripe[T] {
	stripes := make([]*stripe[T], n)
	for i := range stripes {
		stripes[i] = &stripe[T]{records: make(map[string]T)}
	}
	return stripes
}

func (m *Memory[T]) stripeFor(id string) *stripe[T] {
	h := maphash.String(m.seed, id)
	return m.stripes[h%uint64(len(m.stripes))]
}

func (m *Memory[T]) copyOf(record T) T {
	if m.clone == nil {
		return record
	}
	return m.clone(record)
}

// Put implements [Store].
func (m *Memory[T]) Put(ctx context.Context, id string, record T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.stripeFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	s.records[id] = m.copyOf(record)
	return nil
}

// Get implements [Store].
func (m *Memory[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s := m.stripeFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.copyOf(record), nil
}

// Update implements [Store]. The stripe lock is held while mutate runs, so
// mutate must not call back into the same store.
func (m *Memory[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s := m.stripeFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	working := m.copyOf(record)
	if err := mutate(&working); err != nil {
		return zero, err
	}
	s.records[id] = m.copyOf(working)
	return m.copyOf(working), nil
}
