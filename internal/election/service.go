package election

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"election-platform/internal/audit"
	"election-platform/pkg/logger"
)

var (
	ErrNotFound        = errors.New("election: not found")
	ErrDuplicate       = errors.New("election: duplicate name")
	ErrInUse           = errors.New("election: still referenced")
	ErrInvalidArgument = errors.New("election: invalid argument")
	ErrInvalidWindow   = errors.New("election: voting start must not be after voting end")
)

type Auditor interface {
	Record(ctx context.Context, actorID string, action audit.Action, description string) error
}

// CompletionResetter clears voters' has-voted flags.
type CompletionResetter interface {
	ResetCompleted(ctx context.Context) error
}

// Service owns the election clock and ballot definitions.
type Service struct {
	repo       Repository
	audit      Auditor
	completion CompletionResetter
	clock      func() time.Time
}

func NewService(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, audit: auditor, clock: time.Now}
}

// SetCompletionResetter registers who to notify when a new active position
// makes every completed voter incomplete again.
func (s *Service) SetCompletionResetter(r CompletionResetter) {
	s.completion = r
}

// Settings returns the configured slot, or the zero (inactive) settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	st, _, err := s.repo.GetSettings(ctx)
	return st, err
}

// CurrentWindow reads the window fresh on every call.
func (s *Service) CurrentWindow(ctx context.Context) (Window, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return Window{}, err
	}
	return st.Window(), nil
}

type SettingsInput struct {
	Name             string     `json:"name"`
	Active           bool       `json:"is_active"`
	VotingStart      *time.Time `json:"voting_start,omitempty"`
	VotingEnd        *time.Time `json:"voting_end,omitempty"`
	ResultsPublished bool       `json:"results_published"`
}

// UpdateSettings replaces the settings slot.
func (s *Service) UpdateSettings(ctx context.Context, actorID string, in SettingsInput) (Settings, error) {
	if in.VotingStart != nil && in.VotingEnd != nil && in.VotingStart.After(*in.VotingEnd) {
		return Settings{}, ErrInvalidWindow
	}
	st := Settings{
		Name:             strings.TrimSpace(in.Name),
		Active:           in.Active,
		VotingStart:      utcPtr(in.VotingStart),
		VotingEnd:        utcPtr(in.VotingEnd),
		ResultsPublished: in.ResultsPublished,
		UpdatedAt:        s.clock().UTC(),
	}
	if err := s.repo.SaveSettings(ctx, st); err != nil {
		return Settings{}, err
	}
	s.record(ctx, actorID, audit.ActionAdmin, fmt.Sprintf("election settings updated: active=%t results_published=%t", st.Active, st.ResultsPublished))
	return st, nil
}

func (s *Service) CreatePosition(ctx context.Context, actorID string, in PositionInput) (Position, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Position{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	p := Position{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Order:       in.Order,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreatePosition(ctx, p); err != nil {
		return Position{}, err
	}
	s.record(ctx, actorID, audit.ActionPositionAdd, fmt.Sprintf("position %q added", p.Name))
	if p.Active {
		s.resetCompletion(ctx)
	}
	return p, nil
}

func (s *Service) UpdatePosition(ctx context.Context, actorID, id string, in PositionInput) (Position, error) {
	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return Position{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Position{}, ErrInvalidArgument
	}
	p.Name = name
	p.Description = strings.TrimSpace(in.Description)
	p.Order = in.Order
	activated := false
	if in.Active != nil {
		activated = *in.Active && !p.Active
		p.Active = *in.Active
	}
	p.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdatePosition(ctx, p); err != nil {
		return Position{}, err
	}
	s.record(ctx, actorID, audit.ActionPositionUpdate, fmt.Sprintf("position %q updated", p.Name))
	if activated {
		s.resetCompletion(ctx)
	}
	return p, nil
}

func (s *Service) DeletePosition(ctx context.Context, actorID, id string) error {
	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePosition(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionPositionDelete, fmt.Sprintf("position %q deleted", p.Name))
	return nil
}

func (s *Service) GetPosition(ctx context.Context, id string) (Position, error) {
	return s.repo.GetPosition(ctx, id)
}

func (s *Service) ListPositions(ctx context.Context, activeOnly bool) ([]Position, error) {
	return s.repo.ListPositions(ctx, activeOnly)
}

func (s *Service) CreateCandidate(ctx context.Context, actorID string, in CandidateInput) (Candidate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.PositionID == "" {
		return Candidate{}, ErrInvalidArgument
	}
	pos, err := s.repo.GetPosition(ctx, in.PositionID)
	if err != nil {
		return Candidate{}, err
	}
	now := s.clock().UTC()
	c := Candidate{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Name:       name,
		Bio:        strings.TrimSpace(in.Bio),
		PhotoRef:   strings.TrimSpace(in.PhotoRef),
		Active:     in.Active == nil || *in.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateCandidate(ctx, c); err != nil {
		return Candidate{}, err
	}
	s.record(ctx, actorID, audit.ActionCandidateAdd, fmt.Sprintf("candidate %q added to %q", c.Name, pos.Name))
	return c, nil
}

// UpdateCandidate edits a candidate. Moving a candidate that already has
// votes to another position is refused; its ballots would no longer match.
func (s *Service) UpdateCandidate(ctx context.Context, actorID, id string, in CandidateInput) (Candidate, error) {
	c, err := s.repo.GetCandidate(ctx, id)
	if err != nil {
		return Candidate{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Candidate{}, ErrInvalidArgument
	}
	if in.PositionID != "" && in.PositionID != c.PositionID {
		if c.VoteCount > 0 {
			return Candidate{}, ErrInUse
		}
		if _, err := s.repo.GetPosition(ctx, in.PositionID); err != nil {
			return Candidate{}, err
		}
		c.PositionID = in.PositionID
	}
	c.Name = name
	c.Bio = strings.TrimSpace(in.Bio)
	c.PhotoRef = strings.TrimSpace(in.PhotoRef)
	if in.Active != nil {
		c.Active = *in.Active
	}
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateCandidate(ctx, c); err != nil {
		return Candidate{}, err
	}
	s.record(ctx, actorID, audit.ActionCandidateUpdate, fmt.Sprintf("candidate %q updated", c.Name))
	return c, nil
}

func (s *Service) DeleteCandidate(ctx context.Context, actorID, id string) error {
	c, err := s.repo.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	if c.VoteCount > 0 {
		return ErrInUse
	}
	if err := s.repo.DeleteCandidate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionCandidateDelete, fmt.Sprintf("candidate %q deleted", c.Name))
	return nil
}

func (s *Service) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	return s.repo.GetCandidate(ctx, id)
}

func (s *Service) ListCandidates(ctx context.Context, positionID string, activeOnly bool) ([]Candidate, error) {
	return s.repo.ListCandidates(ctx, positionID, activeOnly)
}

// Ballot lists active positions with their active candidates.
func (s *Service) Ballot(ctx context.Context) ([]BallotSection, error) {
	positions, err := s.repo.ListPositions(ctx, true)
	if err != nil {
		return nil, err
	}
	candidates, err := s.repo.ListCandidates(ctx, "", true)
	if err != nil {
		return nil, err
	}
	byPosition := make(map[string][]Candidate, len(positions))
	for _, c := range candidates {
		byPosition[c.PositionID] = append(byPosition[c.PositionID], c)
	}
	out := make([]BallotSection, 0, len(positions))
	for _, p := range positions {
		cs := byPosition[p.ID]
		if cs == nil {
			cs = []Candidate{}
		}
		out = append(out, BallotSection{Position: p, Candidates: cs})
	}
	return out, nil
}

// resetCompletion is best-effort; a failure is logged.
func (s *Service) resetCompletion(ctx context.Context) {
	if s.completion == nil {
		return
	}
	if err := s.completion.ResetCompleted(ctx); err != nil {
		logger.From(ctx).Warn("reset voter completion failed", "err", err)
	}
}

func (s *Service) record(ctx context.Context, actorID string, action audit.Action, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, description); err != nil {
		logger.From(ctx).Warn("audit append failed", "action", string(action), "err", err)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
