package voting

import "time"

// Ballot is the identified (voter, candidate) record. Append-only.
type Ballot struct {
	ID          string    `json:"id"`
	VoterID     string    `json:"voter_id"`
	CandidateID string    `json:"candidate_id"`
	PositionID  string    `json:"position_id"`
	CastAt      time.Time `json:"cast_at"`
}

// AnonymizedBallot is keyed by voter hash, never by voter id. Payload is a
// sealed Payload token. Append-only.
type AnonymizedBallot struct {
	ID         string    `json:"id"`
	VoterHash  string    `json:"voter_hash"`
	PositionID string    `json:"position_id"`
	Payload    string    `json:"payload"`
	CastAt     time.Time `json:"cast_at"`
}

// Payload is the plaintext sealed into an anonymized ballot.
type Payload struct {
	CandidateID   string    `json:"candidate_id"`
	CandidateName string    `json:"candidate_name"`
	PositionID    string    `json:"position_id"`
	PositionName  string    `json:"position_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// Receipt is returned for an accepted cast.
type Receipt struct {
	BallotID    string    `json:"ballot_id"`
	CandidateID string    `json:"candidate_id"`
	PositionID  string    `json:"position_id"`
	CastAt      time.Time `json:"cast_at"`
	// Completed is true once the voter holds a ballot for every active position.
	Completed bool `json:"completed"`
}

type TallyRow struct {
	CandidateID   string  `json:"candidate_id"`
	CandidateName string  `json:"candidate_name"`
	VoteCount     int64   `json:"vote_count"`
	Percentage    float64 `json:"percentage"`
}

type PositionTally struct {
	PositionID   string     `json:"position_id"`
	PositionName string     `json:"position_name"`
	TotalVotes   int64      `json:"total_votes"`
	Results      []TallyRow `json:"results"`
}

// DecryptedBallot is one row of an anonymized audit. Exactly one of Payload
// and Failure is set.
type DecryptedBallot struct {
	BallotID  string    `json:"ballot_id"`
	VoterHash string    `json:"voter_hash"`
	CastAt    time.Time `json:"cast_at"`
	Payload   *Payload  `json:"payload,omitempty"`
	Failure   string    `json:"failure,omitempty"`
}

type AnonymizedAudit struct {
	PositionID string            `json:"position_id"`
	Ballots    []DecryptedBallot `json:"ballots"`
	Failures   int               `json:"failures"`
	// Counts per candidate id, from ballots that opened.
	Counts map[string]int64 `json:"counts"`
}

// Discrepancy is a candidate whose stored counter disagrees with its ballot rows.
type Discrepancy struct {
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	PositionID    string `json:"position_id"`
	Counter       int64  `json:"counter"`
	Ballots       int64  `json:"ballots"`
}

// BallotSummary counts stored ballots. Identified and Anonymized agree
// unless a cast was partially written, which the store never allows.
type BallotSummary struct {
	Identified int64            `json:"identified"`
	Anonymized int64            `json:"anonymized"`
	ByPosition map[string]int64 `json:"by_position"`
}
