package reporting

import (
	"time"

	"election-platform/internal/audit"
	"election-platform/internal/voting"
)

// Results is the published outcome of the election.
type Results struct {
	ElectionName string                 `json:"election_name"`
	Published    bool                   `json:"published"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Positions    []voting.PositionTally `json:"positions"`
}

// Dashboard summarizes election progress for administrators.
type Dashboard struct {
	ElectionName     string     `json:"election_name"`
	WindowStatus     string     `json:"window_status"`
	VotingStart      *time.Time `json:"voting_start,omitempty"`
	VotingEnd        *time.Time `json:"voting_end,omitempty"`
	ResultsPublished bool       `json:"results_published"`

	ApprovedVoters  int `json:"approved_voters"`
	PendingVoters   int `json:"pending_voters"`
	CompletedVoters int `json:"completed_voters"`
	Admins          int `json:"admins"`

	Positions         int             `json:"positions"`
	Candidates        int             `json:"candidates"`
	BallotsCast       int64           `json:"ballots_cast"`
	AnonymizedBallots int64           `json:"anonymized_ballots"`
	VotesByPosition   []PositionVotes `json:"votes_by_position"`

	// TurnoutPercent is completed voters over approved voters.
	TurnoutPercent float64       `json:"turnout_percent"`
	RecentActivity []audit.Entry `json:"recent_activity"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

type PositionVotes struct {
	PositionID   string `json:"position_id"`
	PositionName string `json:"position_name"`
	Votes        int64  `json:"votes"`
}
