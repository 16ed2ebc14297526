package voting

import (
	"context"

	"election-platform/internal/audit"
)

// CastRecord is everything written by one accepted cast.
type CastRecord struct {
	Ballot     Ballot
	Anonymized AnonymizedBallot
	// Audit is stored in the same unit of work when non-nil. A failure to
	// store it does not fail the cast.
	Audit *audit.Entry
}

// Store persists ballots. Record is all-or-nothing for the ballot, the
// anonymized ballot and the candidate counter, and returns ErrStorageConflict
// when the voter already holds a ballot for the position.
type Store interface {
	Record(ctx context.Context, rec CastRecord) (audited bool, err error)
	FindBallot(ctx context.Context, voterID, positionID string) (Ballot, bool, error)
	BallotsByVoter(ctx context.Context, voterID string) ([]Ballot, error)
	ListBallots(ctx context.Context, positionID string) ([]Ballot, error)
	// CountByCandidate counts ballot rows per candidate, for one position or
	// all positions when positionID is empty.
	CountByCandidate(ctx context.Context, positionID string) (map[string]int64, error)
	// CountByPosition counts identified ballot rows per position.
	CountByPosition(ctx context.Context) (map[string]int64, error)
	ListAnonymized(ctx context.Context, positionID string) ([]AnonymizedBallot, error)
	CountAnonymized(ctx context.Context) (int64, error)
}
