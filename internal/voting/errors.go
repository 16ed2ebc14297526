package voting

import (
	"errors"
	"fmt"

	"election-platform/internal/election"
)

// Cast outcomes other than acceptance. All are expected results to be shown
// to the caller, not faults.
var (
	ErrNotFound         = errors.New("voting: candidate not found")
	ErrForbidden        = errors.New("voting: identity is not allowed to vote")
	ErrNotEligible      = errors.New("voting: voter is not eligible")
	ErrNoActiveElection = errors.New("voting: no active election")
	ErrNotStarted       = errors.New("voting: voting has not started")
	ErrEnded            = errors.New("voting: voting has ended")
	ErrAlreadyVoted     = errors.New("voting: already voted for this position")
	ErrDecryptFailure   = errors.New("voting: anonymized ballot cannot be decrypted")
)

// ErrStorageConflict is returned by stores when a uniqueness constraint on
// ballots rejects the write. The engine reports it as ErrAlreadyVoted.
var ErrStorageConflict = errors.New("voting: ballot already stored")

// AlreadyVotedError carries the earlier choice when it can be determined.
type AlreadyVotedError struct {
	PositionID string
	Existing   *election.Candidate
}

func (e *AlreadyVotedError) Error() string {
	if e.Existing != nil {
		return fmt.Sprintf("%s (voted for %s)", ErrAlreadyVoted.Error(), e.Existing.Name)
	}
	return ErrAlreadyVoted.Error()
}

func (e *AlreadyVotedError) Is(target error) bool { return target == ErrAlreadyVoted }

// DecryptError reports which anonymized ballot failed and why.
type DecryptError struct {
	BallotID string
	Err      error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("%s: ballot %s: %v", ErrDecryptFailure.Error(), e.BallotID, e.Err)
}

func (e *DecryptError) Is(target error) bool { return target == ErrDecryptFailure }

func (e *DecryptError) Unwrap() error { return e.Err }

// outcome is the metrics label for a cast result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrNoActiveElection):
		return "no_active_election"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrEnded):
		return "ended"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	default:
		return "error"
	}
}
