package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"election-platform/internal/audit"
	"election-platform/internal/election"
	"election-platform/internal/rbac"
	"election-platform/internal/voters"
	"election-platform/internal/voting"
	"election-platform/pkg/logger"
)

// ErrNotPublished is returned to non-admins before results are released.
var ErrNotPublished = errors.New("reporting: results not published")

type Catalog interface {
	Settings(ctx context.Context) (election.Settings, error)
	ListPositions(ctx context.Context, activeOnly bool) ([]election.Position, error)
	ListCandidates(ctx context.Context, positionID string, activeOnly bool) ([]election.Candidate, error)
}

type Tallier interface {
	Tally(ctx context.Context, positionID string) (voting.PositionTally, error)
	Summary(ctx context.Context) (voting.BallotSummary, error)
}

type VoterCounter interface {
	Counts(ctx context.Context) (voters.Counts, error)
}

type Auditor interface {
	Record(ctx context.Context, actorID string, action audit.Action, description string) error
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

// recentActivityLimit is how many audit entries the dashboard shows.
const recentActivityLimit = 10

// Service assembles read-only views over the election. It never writes
// ballots; the only side effect is the RESULTS_EXPORT audit entry.
type Service struct {
	catalog Catalog
	tallier Tallier
	voters  VoterCounter
	audit   Auditor
	clock   func() time.Time

	// tallyConcurrency bounds parallel per-position tallies.
	tallyConcurrency int
}

func NewService(catalog Catalog, tallier Tallier, counter VoterCounter, auditor Auditor) *Service {
	return &Service{
		catalog:          catalog,
		tallier:          tallier,
		voters:           counter,
		audit:            auditor,
		clock:            time.Now,
		tallyConcurrency: 4,
	}
}

// Results tallies every active position. Only admins may see results before
// they are published.
func (s *Service) Results(ctx context.Context, viewer rbac.Role) (Results, error) {
	st, err := s.catalog.Settings(ctx)
	if err != nil {
		return Results{}, err
	}
	if !st.ResultsPublished && !viewer.IsAdmin() {
		return Results{}, ErrNotPublished
	}
	positions, err := s.catalog.ListPositions(ctx, true)
	if err != nil {
		return Results{}, err
	}

	tallies := make([]voting.PositionTally, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.tallyConcurrency)
	for i, p := range positions {
		g.Go(func() error {
			t, err := s.tallier.Tally(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("tally %s: %w", p.Name, err)
			}
			tallies[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, err
	}

	return Results{
		ElectionName: st.Name,
		Published:    st.ResultsPublished,
		GeneratedAt:  s.clock().UTC(),
		Positions:    tallies,
	}, nil
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		st         election.Settings
		counts     voters.Counts
		positions  []election.Position
		candidates []election.Candidate
		summary    voting.BallotSummary
		recent     []audit.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { st, err = s.catalog.Settings(gctx); return })
	g.Go(func() (err error) { counts, err = s.voters.Counts(gctx); return })
	g.Go(func() (err error) { positions, err = s.catalog.ListPositions(gctx, true); return })
	g.Go(func() (err error) { candidates, err = s.catalog.ListCandidates(gctx, "", true); return })
	g.Go(func() (err error) { summary, err = s.tallier.Summary(gctx); return })
	if s.audit != nil {
		g.Go(func() (err error) { recent, err = s.audit.List(gctx, audit.Filter{Limit: recentActivityLimit}); return })
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	now := s.clock().UTC()
	d := Dashboard{
		ElectionName:      st.Name,
		WindowStatus:      string(st.Window().Status(now)),
		VotingStart:       st.VotingStart,
		VotingEnd:         st.VotingEnd,
		ResultsPublished:  st.ResultsPublished,
		ApprovedVoters:    counts.ApprovedVoters,
		PendingVoters:     counts.PendingVoters,
		CompletedVoters:   counts.CompletedVoters,
		Admins:            counts.Admins,
		Positions:         len(positions),
		Candidates:        len(candidates),
		BallotsCast:       summary.Identified,
		AnonymizedBallots: summary.Anonymized,
		VotesByPosition:   votesByPosition(positions, summary.ByPosition),
		RecentActivity:    recent,
		GeneratedAt:       now,
	}
	if counts.ApprovedVoters > 0 {
		d.TurnoutPercent = math.Round(float64(counts.CompletedVoters)*1000/float64(counts.ApprovedVoters)) / 10
	}
	return d, nil
}

func votesByPosition(positions []election.Position, counts map[string]int64) []PositionVotes {
	out := make([]PositionVotes, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionVotes{PositionID: p.ID, PositionName: p.Name, Votes: counts[p.ID]})
	}
	return out
}

var csvHeader = []string{"position", "candidate", "votes", "percentage"}

// ExportCSV writes the results as CSV and records a RESULTS_EXPORT entry.
func (s *Service) ExportCSV(ctx context.Context, actorID string, w io.Writer) error {
	res, err := s.Results(ctx, rbac.RoleAdmin)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range res.Positions {
		for _, r := range p.Results {
			row := []string{
				p.PositionName,
				r.CandidateName,
				strconv.FormatInt(r.VoteCount, 10),
				strconv.FormatFloat(r.Percentage, 'f', 1, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, actorID, audit.ActionResultsExport, fmt.Sprintf("exported results for %d positions", len(res.Positions))); err != nil {
			logger.From(ctx).Warn("audit append failed", "action", string(audit.ActionResultsExport), "err", err)
		}
	}
	return nil
}
