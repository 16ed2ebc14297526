package voting

import (
	"context"

	"election-platform/internal/voters"
)

// RegistryLookup answers whether a reg number is present and active.
type RegistryLookup interface {
	Lookup(ctx context.Context, regNumber string) (bool, error)
}

// Eligibility decides whether an identity may cast ballots. It is evaluated
// on every call; registry status may change after registration.
type Eligibility struct {
	registry RegistryLookup
}

func NewEligibility(reg RegistryLookup) *Eligibility {
	return &Eligibility{registry: reg}
}

// IsEligible is true for an approved voter whose reg number is in the active
// registry. Admins are never eligible.
func (e *Eligibility) IsEligible(ctx context.Context, id voters.Identity) (bool, error) {
	if !id.IsVoter() || !id.Approved || id.RegNumber == "" {
		return false, nil
	}
	if e.registry == nil {
		return false, nil
	}
	return e.registry.Lookup(ctx, id.RegNumber)
}
