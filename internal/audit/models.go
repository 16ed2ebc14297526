package audit

import "time"

// Entry is an immutable, append-only audit record.
//
// Invariants:
// - Entries are never updated or deleted (no code path exists; Postgres triggers reject both).
// - ActorID is empty for system-initiated records.
// - IP and user agent capture are best-effort.
type Entry struct {
	ID          string    `json:"id" db:"id"`
	ActorID     string    `json:"actor_id,omitempty" db:"actor_id"`
	Action      Action    `json:"action" db:"action"`
	Description string    `json:"description" db:"description"`
	IPAddress   string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionLogin           Action = "LOGIN"
	ActionLogout          Action = "LOGOUT"
	ActionVote            Action = "VOTE"
	ActionAdmin           Action = "ADMIN_ACTION"
	ActionResultsExport   Action = "RESULTS_EXPORT"
	ActionCandidateAdd    Action = "CANDIDATE_ADD"
	ActionCandidateUpdate Action = "CANDIDATE_UPDATE"
	ActionCandidateDelete Action = "CANDIDATE_DELETE"
	ActionPositionAdd     Action = "POSITION_ADD"
	ActionPositionUpdate  Action = "POSITION_UPDATE"
	ActionPositionDelete  Action = "POSITION_DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionLogin, ActionLogout, ActionVote, ActionAdmin, ActionResultsExport,
		ActionCandidateAdd, ActionCandidateUpdate, ActionCandidateDelete,
		ActionPositionAdd, ActionPositionUpdate, ActionPositionDelete:
		return true
	default:
		return false
	}
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	Action  Action
	ActorID string
	Limit   int
}

// DefaultListLimit is what admin views show when no limit is given.
const DefaultListLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultListLimit
	}
	return f.Limit
}
