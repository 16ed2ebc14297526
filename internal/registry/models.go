package registry

import "time"

// Entry is one row of the authoritative registry of people who may vote.
// Entries are deactivated, never deleted, once created.
type Entry struct {
	RegNumber   string    `json:"reg_number"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Department  string    `json:"department"`
	YearOfStudy int       `json:"year_of_study"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateRequest carries optional field changes; nil means unchanged.
type UpdateRequest struct {
	FullName    *string `json:"full_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Department  *string `json:"department,omitempty"`
	YearOfStudy *int    `json:"year_of_study,omitempty"`
	Active      *bool   `json:"is_active,omitempty"`
}

func (u UpdateRequest) apply(e Entry) Entry {
	if u.FullName != nil {
		e.FullName = *u.FullName
	}
	if u.Email != nil {
		e.Email = *u.Email
	}
	if u.Department != nil {
		e.Department = *u.Department
	}
	if u.YearOfStudy != nil {
		e.YearOfStudy = *u.YearOfStudy
	}
	if u.Active != nil {
		e.Active = *u.Active
	}
	return e
}

type ListFilter struct {
	ActiveOnly bool
	Department string
}

type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}
