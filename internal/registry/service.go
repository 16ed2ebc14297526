package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"election-platform/internal/audit"
	"election-platform/pkg/logger"
)

var (
	ErrNotFound        = errors.New("registry: entry not found")
	ErrDuplicate       = errors.New("registry: reg number already registered")
	ErrInvalidArgument = errors.New("registry: invalid argument")
)

// Auditor is the slice of audit.Service this package needs.
type Auditor interface {
	Record(ctx context.Context, actorID string, action audit.Action, description string) error
}

type Service struct {
	repo  Repository
	audit Auditor
	clock func() time.Time
}

func NewService(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, audit: auditor, clock: time.Now}
}

// NormalizeRegNumber is the canonical form used for storage and lookup.
func NormalizeRegNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (s *Service) Create(ctx context.Context, actorID string, e Entry) (Entry, error) {
	e.RegNumber = NormalizeRegNumber(e.RegNumber)
	e.FullName = strings.TrimSpace(e.FullName)
	if err := validate(e); err != nil {
		return Entry{}, err
	}
	now := s.clock().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if err := s.repo.Create(ctx, e); err != nil {
		return Entry{}, err
	}
	s.record(ctx, actorID, fmt.Sprintf("registry entry %s created", e.RegNumber))
	return e, nil
}

func (s *Service) Update(ctx context.Context, actorID, regNumber string, req UpdateRequest) (Entry, error) {
	cur, err := s.repo.Get(ctx, NormalizeRegNumber(regNumber))
	if err != nil {
		return Entry{}, err
	}
	next := req.apply(cur)
	next.FullName = strings.TrimSpace(next.FullName)
	if err := validate(next); err != nil {
		return Entry{}, err
	}
	next.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, next); err != nil {
		return Entry{}, err
	}
	s.record(ctx, actorID, fmt.Sprintf("registry entry %s updated", next.RegNumber))
	return next, nil
}

// SetActive toggles whether the entry grants eligibility. Takes effect on the
// next cast attempt; eligibility is never cached.
func (s *Service) SetActive(ctx context.Context, actorID, regNumber string, active bool) (Entry, error) {
	return s.Update(ctx, actorID, regNumber, UpdateRequest{Active: &active})
}

func (s *Service) Get(ctx context.Context, regNumber string) (Entry, error) {
	return s.repo.Get(ctx, NormalizeRegNumber(regNumber))
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, f)
}

// Lookup reports whether regNumber exists and is active.
func (s *Service) Lookup(ctx context.Context, regNumber string) (bool, error) {
	regNumber = NormalizeRegNumber(regNumber)
	if regNumber == "" {
		return false, nil
	}
	e, err := s.repo.Get(ctx, regNumber)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Active, nil
}

// Import upserts entries in order. Validation runs over the whole batch first
// so a bad row rejects the import before anything is written.
func (s *Service) Import(ctx context.Context, actorID string, entries []Entry) (ImportResult, error) {
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		entries[i].RegNumber = NormalizeRegNumber(entries[i].RegNumber)
		entries[i].FullName = strings.TrimSpace(entries[i].FullName)
		if err := validate(entries[i]); err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		if _, dup := seen[entries[i].RegNumber]; dup {
			return ImportResult{}, fmt.Errorf("row %d: %w: %s repeated in batch", i+1, ErrInvalidArgument, entries[i].RegNumber)
		}
		seen[entries[i].RegNumber] = struct{}{}
	}

	var res ImportResult
	now := s.clock().UTC()
	for _, e := range entries {
		e.CreatedAt, e.UpdatedAt = now, now
		created, err := s.repo.Upsert(ctx, e)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	s.record(ctx, actorID, fmt.Sprintf("registry import: %d created, %d updated", res.Created, res.Updated))
	return res, nil
}

func (s *Service) record(ctx context.Context, actorID, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, audit.ActionAdmin, description); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}

func validate(e Entry) error {
	if e.RegNumber == "" || e.FullName == "" {
		return ErrInvalidArgument
	}
	if e.YearOfStudy < 0 || e.YearOfStudy > 10 {
		return ErrInvalidArgument
	}
	return nil
}
