package voters

import (
	"context"
	"sort"
	"sync"
	"time"

	"election-platform/internal/rbac"
)

// MemoryRepo mirrors the Postgres uniqueness rules on username and reg number.
type MemoryRepo struct {
	mu         sync.Mutex
	identities map[string]Identity
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{identities: map[string]Identity{}} }

func (r *MemoryRepo) Create(_ context.Context, i Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.identities {
		if cur.Username == i.Username {
			return ErrUsernameTaken
		}
		if i.RegNumber != "" && cur.RegNumber == i.RegNumber {
			return ErrRegNumberTaken
		}
	}
	r.identities[i.ID] = i
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.identities[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return i, nil
}

func (r *MemoryRepo) find(match func(Identity) bool) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.identities {
		if match(i) {
			return i, nil
		}
	}
	return Identity{}, ErrNotFound
}

func (r *MemoryRepo) GetByUsername(_ context.Context, username string) (Identity, error) {
	return r.find(func(i Identity) bool { return i.Username == username })
}

func (r *MemoryRepo) GetByRegNumber(_ context.Context, regNumber string) (Identity, error) {
	if regNumber == "" {
		return Identity{}, ErrNotFound
	}
	return r.find(func(i Identity) bool { return i.RegNumber == regNumber })
}

func (r *MemoryRepo) update(id string, fn func(*Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.identities[id]
	if !ok {
		return ErrNotFound
	}
	fn(&i)
	r.identities[id] = i
	return nil
}

func (r *MemoryRepo) SetApproval(_ context.Context, id string, approved bool, now time.Time) error {
	return r.update(id, func(i *Identity) {
		i.Approved = approved
		i.UpdatedAt = now
	})
}

func (r *MemoryRepo) MarkCompleted(_ context.Context, id string, now time.Time) error {
	return r.update(id, func(i *Identity) {
		i.HasVoted = true
		i.UpdatedAt = now
	})
}

func (r *MemoryRepo) ResetCompleted(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, i := range r.identities {
		if !i.HasVoted {
			continue
		}
		i.HasVoted = false
		i.UpdatedAt = now
		r.identities[k] = i
		n++
	}
	return n, nil
}

func (r *MemoryRepo) List(_ context.Context, f ListFilter) ([]Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Identity, 0, len(r.identities))
	for _, i := range r.identities {
		if f.Role != "" && i.Role != f.Role {
			continue
		}
		if f.PendingOnly && i.Approved {
			continue
		}
		if f.CompletedOnly && !i.HasVoted {
			continue
		}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (r *MemoryRepo) Counts(_ context.Context) (Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c Counts
	for _, i := range r.identities {
		if i.Role == rbac.RoleAdmin {
			c.Admins++
			continue
		}
		if !i.Approved {
			c.PendingVoters++
			continue
		}
		c.ApprovedVoters++
		if i.HasVoted {
			c.CompletedVoters++
		}
	}
	return c, nil
}
