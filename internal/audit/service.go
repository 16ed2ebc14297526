package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"election-platform/pkg/logger"
)

// Repository is the persistence contract for audit entries.
// It is append-only: there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Service records audit entries.
//
// Callers treat audit logging as best-effort: a failed Append is logged by the
// caller and never aborts the operation being audited.
type Service struct {
	repo      Repository
	publisher Publisher
	clock     func() time.Time
}

type Option func(*Service)

// WithPublisher forwards every recorded entry to p after it is stored.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Prepare validates e and fills ID, timestamp and origin from ctx without
// storing it. Used by stores that insert the entry inside their own transaction.
func (s *Service) Prepare(ctx context.Context, e Entry) (Entry, error) {
	if !e.Action.Valid() {
		return Entry{}, ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	o := OriginFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = o.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = o.UserAgent
	}
	return e, nil
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	e, err := s.Prepare(ctx, e)
	if err != nil {
		return err
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}
	s.Announce(ctx, e)
	return nil
}

// Record is Append for the common (actor, action, description) shape.
func (s *Service) Record(ctx context.Context, actorID string, action Action, description string) error {
	return s.Append(ctx, Entry{ActorID: actorID, Action: action, Description: description})
}

// Announce logs a stored entry and forwards it to the publisher.
// Publish failures are logged only.
func (s *Service) Announce(ctx context.Context, e Entry) {
	log := logger.From(ctx)
	log.Info("audit",
		"audit_id", e.ID,
		"action", string(e.Action),
		"actor_id", e.ActorID,
		"ip", e.IPAddress,
		"client", summarizeUserAgent(e.UserAgent),
	)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn("audit publish failed", "audit_id", e.ID, "err", err)
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if f.Action != "" && !f.Action.Valid() {
		return nil, ErrInvalidEntry
	}
	return s.repo.List(ctx, f)
}
