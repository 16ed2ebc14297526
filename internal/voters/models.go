package voters

import (
	"time"

	"election-platform/internal/rbac"
)

// Identity is an authenticated principal. Role is fixed at creation.
// Voter identities carry exactly one registry reg number; admins carry none.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"`
	RegNumber    string    `json:"reg_number,omitempty"`
	Approved     bool      `json:"is_approved"`
	HasVoted     bool      `json:"has_voted"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Department   string    `json:"department,omitempty"`
	YearOfStudy  int       `json:"year_of_study,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i Identity) IsVoter() bool { return i.Role == rbac.RoleVoter }

type VoterRegistration struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	RegNumber string `json:"reg_number"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type AdminRegistration struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	SecretCode string `json:"secret_code"`
}

// LoginRequest authenticates by username, or by reg number for voters.
// Role is the role the caller claims to log in as.
type LoginRequest struct {
	Login    string    `json:"login"`
	Password string    `json:"password"`
	Role     rbac.Role `json:"role"`
}

type ListFilter struct {
	Role          rbac.Role
	PendingOnly   bool
	CompletedOnly bool
}

// Counts summarizes voter identities. CompletedVoters is a subset of
// ApprovedVoters so turnout never exceeds 100%.
type Counts struct {
	ApprovedVoters  int `json:"approved_voters"`
	PendingVoters   int `json:"pending_voters"`
	CompletedVoters int `json:"completed_voters"`
	Admins          int `json:"admins"`
}
