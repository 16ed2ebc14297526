package election

import "time"

// Settings is the single election configuration slot. A missing slot reads
// as the zero value, which is an inactive election.
type Settings struct {
	Name             string     `json:"name"`
	Active           bool       `json:"is_active"`
	VotingStart      *time.Time `json:"voting_start,omitempty"`
	VotingEnd        *time.Time `json:"voting_end,omitempty"`
	ResultsPublished bool       `json:"results_published"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (s Settings) Window() Window {
	return Window{Active: s.Active, Start: s.VotingStart, End: s.VotingEnd}
}

type Position struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Candidate belongs to exactly one position. VoteCount is a denormalized
// counter changed only by the ballot-casting transaction.
type Candidate struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Name       string    `json:"name"`
	Bio        string    `json:"bio"`
	PhotoRef   string    `json:"photo_ref,omitempty"`
	VoteCount  int64     `json:"vote_count"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PositionInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Active      *bool  `json:"is_active,omitempty"`
}

type CandidateInput struct {
	PositionID string `json:"position_id"`
	Name       string `json:"name"`
	Bio        string `json:"bio"`
	PhotoRef   string `json:"photo_ref"`
	Active     *bool  `json:"is_active,omitempty"`
}

// BallotSection is one position as shown to a voter.
type BallotSection struct {
	Position   Position    `json:"position"`
	Candidates []Candidate `json:"candidates"`
}
