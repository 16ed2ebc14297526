package registry

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{entries: map[string]Entry{}} }

func (r *MemoryRepo) Create(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.RegNumber]; ok {
		return ErrDuplicate
	}
	r.entries[e.RegNumber] = e
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.RegNumber]; !ok {
		return ErrNotFound
	}
	r.entries[e.RegNumber] = e
	return nil
}

func (r *MemoryRepo) Upsert(_ context.Context, e Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, exists := r.entries[e.RegNumber]
	if exists {
		e.CreatedAt = prev.CreatedAt
	}
	r.entries[e.RegNumber] = e
	return !exists, nil
}

func (r *MemoryRepo) Get(_ context.Context, regNumber string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[regNumber]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) List(_ context.Context, f ListFilter) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.ActiveOnly && !e.Active {
			continue
		}
		if f.Department != "" && e.Department != f.Department {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegNumber < out[j].RegNumber })
	return out, nil
}
