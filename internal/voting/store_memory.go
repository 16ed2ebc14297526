package voting

import (
	"context"
	"errors"
	"sort"
	"sync"

	"election-platform/internal/audit"
	"election-platform/internal/election"
	"election-platform/pkg/logger"
)

// VoteCounter bumps the denormalized candidate counter.
type VoteCounter interface {
	IncrementVoteCount(ctx context.Context, candidateID, positionID string) error
}

// MemoryStore is an in-process Store with the same uniqueness rules as the
// Postgres tables. One mutex makes each Record atomic.
type MemoryStore struct {
	mu      sync.Mutex
	counter VoteCounter
	audit   audit.Repository

	ballots    []Ballot
	byPosition map[[2]string]int // (voter id, position id) -> index into ballots
	byCand     map[[2]string]struct{}
	anonymized []AnonymizedBallot
	byHash     map[[2]string]struct{}
}

func NewMemoryStore(counter VoteCounter, auditRepo audit.Repository) *MemoryStore {
	return &MemoryStore{
		counter:    counter,
		audit:      auditRepo,
		byPosition: map[[2]string]int{},
		byCand:     map[[2]string]struct{}{},
		byHash:     map[[2]string]struct{}{},
	}
}

func (s *MemoryStore) Record(ctx context.Context, rec CastRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, a := rec.Ballot, rec.Anonymized
	posKey := [2]string{b.VoterID, b.PositionID}
	candKey := [2]string{b.VoterID, b.CandidateID}
	hashKey := [2]string{a.VoterHash, a.PositionID}
	if _, ok := s.byPosition[posKey]; ok {
		return false, ErrStorageConflict
	}
	if _, ok := s.byCand[candKey]; ok {
		return false, ErrStorageConflict
	}
	if _, ok := s.byHash[hashKey]; ok {
		return false, ErrStorageConflict
	}

	// The counter is the only step that can fail; do it before any insert.
	if s.counter != nil {
		if err := s.counter.IncrementVoteCount(ctx, b.CandidateID, b.PositionID); err != nil {
			if errors.Is(err, election.ErrNotFound) {
				return false, ErrNotFound
			}
			return false, err
		}
	}
	s.byPosition[posKey] = len(s.ballots)
	s.byCand[candKey] = struct{}{}
	s.ballots = append(s.ballots, b)
	s.byHash[hashKey] = struct{}{}
	s.anonymized = append(s.anonymized, a)

	if rec.Audit == nil || s.audit == nil {
		return false, nil
	}
	if err := s.audit.Append(ctx, *rec.Audit); err != nil {
		logger.From(ctx).Warn("vote audit insert failed", "err", err)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) FindBallot(_ context.Context, voterID, positionID string) (Ballot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byPosition[[2]string{voterID, positionID}]
	if !ok {
		return Ballot{}, false, nil
	}
	return s.ballots[i], true, nil
}

func (s *MemoryStore) BallotsByVoter(_ context.Context, voterID string) ([]Ballot, error) {
	return s.filterBallots(func(b Ballot) bool { return b.VoterID == voterID }), nil
}

func (s *MemoryStore) ListBallots(_ context.Context, positionID string) ([]Ballot, error) {
	return s.filterBallots(func(b Ballot) bool { return positionID == "" || b.PositionID == positionID }), nil
}

func (s *MemoryStore) filterBallots(keep func(Ballot) bool) []Ballot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ballot, 0)
	for _, b := range s.ballots {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CastAt.Before(out[j].CastAt) })
	return out
}

func (s *MemoryStore) CountByCandidate(_ context.Context, positionID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for _, b := range s.ballots {
		if positionID == "" || b.PositionID == positionID {
			out[b.CandidateID]++
		}
	}
	return out, nil
}

func (s *MemoryStore) CountByPosition(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for _, b := range s.ballots {
		out[b.PositionID]++
	}
	return out, nil
}

func (s *MemoryStore) CountAnonymized(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.anonymized)), nil
}

func (s *MemoryStore) ListAnonymized(_ context.Context, positionID string) ([]AnonymizedBallot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnonymizedBallot, 0)
	for _, a := range s.anonymized {
		if positionID == "" || a.PositionID == positionID {
			out = append(out, a)
		}
	}
	return out, nil
}

