package httpapi

import (
	"time"

	"election-platform/internal/audit"
	"election-platform/internal/auth"
	"election-platform/internal/election"
	"election-platform/internal/registry"
	"election-platform/internal/reporting"
	"election-platform/internal/voters"
	"election-platform/internal/voting"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Revoked   auth.RevocationList
	Voters    *voters.Service
	Registry  *registry.Service
	Elections *election.Service
	Voting    *voting.Engine
	Reporting *reporting.Service
	Audit     *audit.Service

	// Now is the clock used for casts and token issuance. Nil means time.Now.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
