package election

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo mirrors the Postgres constraints: unique position names, unique
// (name, position) candidates, and restricted deletes.
type MemoryRepo struct {
	mu         sync.Mutex
	settings   *Settings
	positions  map[string]Position
	candidates map[string]Candidate
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{positions: map[string]Position{}, candidates: map[string]Candidate{}}
}

func (r *MemoryRepo) GetSettings(_ context.Context) (Settings, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings == nil {
		return Settings{}, false, nil
	}
	return *r.settings, true, nil
}

func (r *MemoryRepo) SaveSettings(_ context.Context, s Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = &s
	return nil
}

func (r *MemoryRepo) CreatePosition(_ context.Context, p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.positions {
		if cur.Name == p.Name {
			return ErrDuplicate
		}
	}
	r.positions[p.ID] = p
	return nil
}

func (r *MemoryRepo) UpdatePosition(_ context.Context, p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[p.ID]; !ok {
		return ErrNotFound
	}
	for _, cur := range r.positions {
		if cur.ID != p.ID && cur.Name == p.Name {
			return ErrDuplicate
		}
	}
	r.positions[p.ID] = p
	return nil
}

func (r *MemoryRepo) DeletePosition(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[id]; !ok {
		return ErrNotFound
	}
	for _, c := range r.candidates {
		if c.PositionID == id {
			return ErrInUse
		}
	}
	delete(r.positions, id)
	return nil
}

func (r *MemoryRepo) GetPosition(_ context.Context, id string) (Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[id]
	if !ok {
		return Position{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListPositions(_ context.Context, activeOnly bool) ([]Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Position, 0, len(r.positions))
	for _, p := range r.positions {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryRepo) CreateCandidate(_ context.Context, c Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[c.PositionID]; !ok {
		return ErrNotFound
	}
	if r.nameTakenLocked(c) {
		return ErrDuplicate
	}
	c.VoteCount = 0
	r.candidates[c.ID] = c
	return nil
}

func (r *MemoryRepo) UpdateCandidate(_ context.Context, c Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.candidates[c.ID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := r.positions[c.PositionID]; !ok {
		return ErrNotFound
	}
	if c.PositionID != cur.PositionID && cur.VoteCount > 0 {
		return ErrInUse
	}
	if r.nameTakenLocked(c) {
		return ErrDuplicate
	}
	c.VoteCount = cur.VoteCount
	r.candidates[c.ID] = c
	return nil
}

func (r *MemoryRepo) nameTakenLocked(c Candidate) bool {
	for _, cur := range r.candidates {
		if cur.ID != c.ID && cur.PositionID == c.PositionID && cur.Name == c.Name {
			return true
		}
	}
	return false
}

// DeleteCandidate refuses once votes exist, as the ballots foreign key does.
func (r *MemoryRepo) DeleteCandidate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return ErrNotFound
	}
	if c.VoteCount > 0 {
		return ErrInUse
	}
	delete(r.candidates, id)
	return nil
}

func (r *MemoryRepo) GetCandidate(_ context.Context, id string) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCandidates(_ context.Context, positionID string, activeOnly bool) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Candidate, 0)
	for _, c := range r.candidates {
		if positionID != "" && c.PositionID != positionID {
			continue
		}
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// IncrementVoteCount adds one to a candidate's counter while the candidate
// still belongs to positionID. In-memory ballot stores call it while holding
// their own write lock.
func (r *MemoryRepo) IncrementVoteCount(_ context.Context, candidateID, positionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[candidateID]
	if !ok || c.PositionID != positionID {
		return ErrNotFound
	}
	c.VoteCount++
	r.candidates[candidateID] = c
	return nil
}
