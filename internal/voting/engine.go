package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"election-platform/internal/audit"
	"election-platform/internal/election"
	"election-platform/internal/metrics"
	"election-platform/internal/voters"
	"election-platform/pkg/logger"
)

// Catalog is the read side of the election definition.
type Catalog interface {
	CurrentWindow(ctx context.Context) (election.Window, error)
	GetPosition(ctx context.Context, id string) (election.Position, error)
	GetCandidate(ctx context.Context, id string) (election.Candidate, error)
	ListPositions(ctx context.Context, activeOnly bool) ([]election.Position, error)
	ListCandidates(ctx context.Context, positionID string, activeOnly bool) ([]election.Candidate, error)
}

// Ledger flips the per-voter completion flag.
type Ledger interface {
	MarkCompleted(ctx context.Context, identityID string) error
}

type Sealer interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(token string, aad []byte) ([]byte, error)
}

type VoterHasher interface {
	Hash(voterID, regNumber string) string
}

// AuditTrail prepares VOTE entries for the store to write in its
// transaction, and announces them after commit.
type AuditTrail interface {
	Prepare(ctx context.Context, e audit.Entry) (audit.Entry, error)
	Announce(ctx context.Context, e audit.Entry)
}

type Deps struct {
	Catalog  Catalog
	Registry RegistryLookup
	Ledger   Ledger
	Store    Store
	Sealer   Sealer
	Hasher   VoterHasher
	Audit    AuditTrail
	Metrics  *metrics.Voting
}

// Engine casts, tallies and audits ballots.
//
// Order of checks for a cast:
//  1. candidate exists and is active
//  2. identity has the voter role
//  3. identity is eligible
//  4. voting window is open
//  5. no earlier ballot for the position
//
// Step 5 is a read and can race; the store's uniqueness constraints are what
// make concurrent duplicates fail.
type Engine struct {
	catalog     Catalog
	eligibility *Eligibility
	ledger      Ledger
	store       Store
	sealer      Sealer
	hasher      VoterHasher
	audit       AuditTrail
	metrics     *metrics.Voting
	tracer      trace.Tracer
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		catalog:     d.Catalog,
		eligibility: NewEligibility(d.Registry),
		ledger:      d.Ledger,
		store:       d.Store,
		sealer:      d.Sealer,
		hasher:      d.Hasher,
		audit:       d.Audit,
		metrics:     d.Metrics,
		tracer:      otel.Tracer("election-platform/internal/voting"),
	}
}

func (e *Engine) IsEligible(ctx context.Context, id voters.Identity) (bool, error) {
	return e.eligibility.IsEligible(ctx, id)
}

func (e *Engine) CurrentWindow(ctx context.Context) (election.Window, error) {
	return e.catalog.CurrentWindow(ctx)
}

// CastVote records voter's ballot for candidateID at now. Rejections are
// returned as the package's sentinel errors; an AlreadyVotedError names the
// earlier choice when it can be found.
func (e *Engine) CastVote(ctx context.Context, voter voters.Identity, candidateID string, now time.Time) (Receipt, error) {
	ctx, span := e.tracer.Start(ctx, "voting.CastVote", trace.WithAttributes(
		attribute.String("candidate.id", candidateID),
	))
	defer span.End()

	started := time.Now()
	r, err := e.castVote(ctx, voter, candidateID, now)
	e.metrics.ObserveCast(outcome(err), time.Since(started))

	span.SetAttributes(attribute.String("cast.outcome", outcome(err)))
	if err != nil && outcome(err) == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cast failed")
	}
	return r, err
}

func (e *Engine) castVote(ctx context.Context, voter voters.Identity, candidateID string, now time.Time) (Receipt, error) {
	cand, pos, err := e.resolveCandidate(ctx, candidateID)
	if err != nil {
		return Receipt{}, err
	}

	if !voter.IsVoter() {
		return Receipt{}, ErrForbidden
	}

	ok, err := e.eligibility.IsEligible(ctx, voter)
	if err != nil {
		return Receipt{}, fmt.Errorf("eligibility: %w", err)
	}
	if !ok {
		return Receipt{}, ErrNotEligible
	}

	w, err := e.catalog.CurrentWindow(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("election window: %w", err)
	}
	switch w.Status(now) {
	case election.StatusInactive:
		return Receipt{}, ErrNoActiveElection
	case election.StatusNotStarted:
		return Receipt{}, ErrNotStarted
	case election.StatusEnded:
		return Receipt{}, ErrEnded
	}

	if prev, found, err := e.store.FindBallot(ctx, voter.ID, pos.ID); err != nil {
		return Receipt{}, fmt.Errorf("find ballot: %w", err)
	} else if found {
		return Receipt{}, e.alreadyVoted(ctx, prev)
	}

	rec, err := e.buildRecord(ctx, voter, cand, pos, now)
	if err != nil {
		return Receipt{}, err
	}

	audited, err := e.store.Record(ctx, rec)
	if errors.Is(err, ErrStorageConflict) {
		if prev, found, ferr := e.store.FindBallot(ctx, voter.ID, pos.ID); ferr == nil && found {
			return Receipt{}, e.alreadyVoted(ctx, prev)
		}
		return Receipt{}, &AlreadyVotedError{PositionID: pos.ID}
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("record ballot: %w", err)
	}

	// Committed. Caller cancellation must not skip the bookkeeping below.
	post := context.WithoutCancel(ctx)
	if audited && e.audit != nil {
		e.audit.Announce(post, *rec.Audit)
	}
	completed := e.markCompletedIfDone(post, voter.ID)

	return Receipt{
		BallotID:    rec.Ballot.ID,
		CandidateID: cand.ID,
		PositionID:  pos.ID,
		CastAt:      rec.Ballot.CastAt,
		Completed:   completed,
	}, nil
}

// resolveCandidate treats an inactive candidate or position as absent.
func (e *Engine) resolveCandidate(ctx context.Context, candidateID string) (election.Candidate, election.Position, error) {
	cand, err := e.catalog.GetCandidate(ctx, candidateID)
	if errors.Is(err, election.ErrNotFound) {
		return election.Candidate{}, election.Position{}, ErrNotFound
	}
	if err != nil {
		return election.Candidate{}, election.Position{}, fmt.Errorf("get candidate: %w", err)
	}
	if !cand.Active {
		return election.Candidate{}, election.Position{}, ErrNotFound
	}
	pos, err := e.catalog.GetPosition(ctx, cand.PositionID)
	if errors.Is(err, election.ErrNotFound) {
		return election.Candidate{}, election.Position{}, ErrNotFound
	}
	if err != nil {
		return election.Candidate{}, election.Position{}, fmt.Errorf("get position: %w", err)
	}
	if !pos.Active {
		return election.Candidate{}, election.Position{}, ErrNotFound
	}
	return cand, pos, nil
}

func (e *Engine) buildRecord(ctx context.Context, voter voters.Identity, cand election.Candidate, pos election.Position, now time.Time) (CastRecord, error) {
	castAt := now.UTC()
	voterHash := e.hasher.Hash(voter.ID, voter.RegNumber)

	plain, err := json.Marshal(Payload{
		CandidateID:   cand.ID,
		CandidateName: cand.Name,
		PositionID:    pos.ID,
		PositionName:  pos.Name,
		Timestamp:     castAt,
	})
	if err != nil {
		return CastRecord{}, err
	}
	sealed, err := e.sealer.Seal(plain, payloadAAD(voterHash, pos.ID))
	if err != nil {
		return CastRecord{}, fmt.Errorf("seal ballot: %w", err)
	}

	rec := CastRecord{
		Ballot: Ballot{
			ID:          uuid.NewString(),
			VoterID:     voter.ID,
			CandidateID: cand.ID,
			PositionID:  pos.ID,
			CastAt:      castAt,
		},
		Anonymized: AnonymizedBallot{
			ID:         uuid.NewString(),
			VoterHash:  voterHash,
			PositionID: pos.ID,
			Payload:    sealed,
			CastAt:     castAt,
		},
	}
	if e.audit != nil {
		// The description names the position only; the choice stays out of the log.
		entry, err := e.audit.Prepare(ctx, audit.Entry{
			ActorID:     voter.ID,
			Action:      audit.ActionVote,
			Description: fmt.Sprintf("ballot cast for position %q", pos.Name),
			CreatedAt:   castAt,
		})
		if err != nil {
			logger.From(ctx).Warn("vote audit prepare failed", "err", err)
		} else {
			rec.Audit = &entry
		}
	}
	return rec, nil
}

func (e *Engine) alreadyVoted(ctx context.Context, prev Ballot) error {
	out := &AlreadyVotedError{PositionID: prev.PositionID}
	if c, err := e.catalog.GetCandidate(ctx, prev.CandidateID); err == nil {
		out.Existing = &c
	}
	return out
}

// markCompletedIfDone sets the voter's completion flag once every active
// position has a ballot. Failures are logged; the ballot already stands.
func (e *Engine) markCompletedIfDone(ctx context.Context, voterID string) bool {
	log := logger.From(ctx)
	positions, err := e.catalog.ListPositions(ctx, true)
	if err != nil {
		log.Warn("completion check: list positions failed", "err", err)
		return false
	}
	ballots, err := e.store.BallotsByVoter(ctx, voterID)
	if err != nil {
		log.Warn("completion check: list ballots failed", "err", err)
		return false
	}
	voted := make(map[string]bool, len(ballots))
	for _, b := range ballots {
		voted[b.PositionID] = true
	}
	for _, p := range positions {
		if !voted[p.ID] {
			return false
		}
	}
	if e.ledger == nil {
		return true
	}
	if err := e.ledger.MarkCompleted(ctx, voterID); err != nil {
		log.Warn("completion check: mark completed failed", "voter_id", voterID, "err", err)
	}
	return true
}

// VoterBallots lists the voter's own ballots, for marking positions done.
func (e *Engine) VoterBallots(ctx context.Context, voterID string) ([]Ballot, error) {
	return e.store.BallotsByVoter(ctx, voterID)
}

// ListBallots is the administrative view of identified ballots.
func (e *Engine) ListBallots(ctx context.Context, positionID string) ([]Ballot, error) {
	return e.store.ListBallots(ctx, positionID)
}

// Summary counts identified ballots per position and anonymized ballots overall.
func (e *Engine) Summary(ctx context.Context) (BallotSummary, error) {
	byPos, err := e.store.CountByPosition(ctx)
	if err != nil {
		return BallotSummary{}, err
	}
	anon, err := e.store.CountAnonymized(ctx)
	if err != nil {
		return BallotSummary{}, err
	}
	out := BallotSummary{Anonymized: anon, ByPosition: byPos}
	for _, n := range byPos {
		out.Identified += n
	}
	return out, nil
}

// Tally counts ballot rows for the active candidates of a position.
// Rows are ordered by votes descending, then name, then id.
func (e *Engine) Tally(ctx context.Context, positionID string) (PositionTally, error) {
	ctx, span := e.tracer.Start(ctx, "voting.Tally", trace.WithAttributes(attribute.String("position.id", positionID)))
	defer span.End()
	started := time.Now()
	defer func() { e.metrics.ObserveTally(time.Since(started)) }()

	pos, err := e.catalog.GetPosition(ctx, positionID)
	if errors.Is(err, election.ErrNotFound) {
		return PositionTally{}, ErrNotFound
	}
	if err != nil {
		return PositionTally{}, err
	}
	cands, err := e.catalog.ListCandidates(ctx, pos.ID, true)
	if err != nil {
		return PositionTally{}, err
	}
	counts, err := e.store.CountByCandidate(ctx, pos.ID)
	if err != nil {
		return PositionTally{}, err
	}

	out := PositionTally{PositionID: pos.ID, PositionName: pos.Name, Results: make([]TallyRow, 0, len(cands))}
	for _, c := range cands {
		n := counts[c.ID]
		out.TotalVotes += n
		out.Results = append(out.Results, TallyRow{CandidateID: c.ID, CandidateName: c.Name, VoteCount: n})
	}
	for i := range out.Results {
		out.Results[i].Percentage = percentage(out.Results[i].VoteCount, out.TotalVotes)
	}
	sort.SliceStable(out.Results, func(i, j int) bool {
		a, b := out.Results[i], out.Results[j]
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if a.CandidateName != b.CandidateName {
			return a.CandidateName < b.CandidateName
		}
		return a.CandidateID < b.CandidateID
	})
	return out, nil
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(total)) / 10
}

// Decrypt opens one anonymized ballot. Every failure is a *DecryptError.
func (e *Engine) Decrypt(ab AnonymizedBallot) (Payload, error) {
	plain, err := e.sealer.Open(ab.Payload, payloadAAD(ab.VoterHash, ab.PositionID))
	if err != nil {
		e.metrics.IncrementDecryptFailure()
		return Payload{}, &DecryptError{BallotID: ab.ID, Err: err}
	}
	var p Payload
	if err := json.Unmarshal(plain, &p); err != nil {
		e.metrics.IncrementDecryptFailure()
		return Payload{}, &DecryptError{BallotID: ab.ID, Err: err}
	}
	if p.PositionID != ab.PositionID {
		e.metrics.IncrementDecryptFailure()
		return Payload{}, &DecryptError{BallotID: ab.ID, Err: errors.New("payload position mismatch")}
	}
	return p, nil
}

// AuditAnonymized decrypts every anonymized ballot of a position (all when
// positionID is empty). Undecryptable rows are reported, not fatal.
func (e *Engine) AuditAnonymized(ctx context.Context, positionID string) (AnonymizedAudit, error) {
	rows, err := e.store.ListAnonymized(ctx, positionID)
	if err != nil {
		return AnonymizedAudit{}, err
	}
	out := AnonymizedAudit{
		PositionID: positionID,
		Ballots:    make([]DecryptedBallot, 0, len(rows)),
		Counts:     make(map[string]int64),
	}
	for _, ab := range rows {
		d := DecryptedBallot{BallotID: ab.ID, VoterHash: ab.VoterHash, CastAt: ab.CastAt}
		p, err := e.Decrypt(ab)
		if err != nil {
			d.Failure = err.Error()
			out.Failures++
		} else {
			d.Payload = &p
			out.Counts[p.CandidateID]++
		}
		out.Ballots = append(out.Ballots, d)
	}
	if out.Failures > 0 {
		logger.From(ctx).Warn("anonymized audit found undecryptable ballots", "failures", out.Failures, "position_id", positionID)
	}
	return out, nil
}

// Reconcile compares each candidate's stored counter with its ballot rows.
func (e *Engine) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	cands, err := e.catalog.ListCandidates(ctx, "", false)
	if err != nil {
		return nil, err
	}
	counts, err := e.store.CountByCandidate(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Discrepancy, 0)
	for _, c := range cands {
		if n := counts[c.ID]; n != c.VoteCount {
			out = append(out, Discrepancy{
				CandidateID:   c.ID,
				CandidateName: c.Name,
				PositionID:    c.PositionID,
				Counter:       c.VoteCount,
				Ballots:       n,
			})
		}
	}
	return out, nil
}

// payloadAAD binds a sealed payload to its row so it cannot be moved to
// another voter hash or position.
func payloadAAD(voterHash, positionID string) []byte {
	return []byte(voterHash + "|" + positionID)
}
