package rbac

import "strings"

// Role is the single authorization attribute of an identity. It is fixed at
// identity creation; there is no secondary flag that can promote a voter.
type Role string

// Role names. Keep these stable; they are persisted and carried in tokens.
const (
	RoleVoter Role = "voter"
	RoleAdmin Role = "admin"
)

// ParseRole accepts the stored form case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleVoter:
		return RoleVoter, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok && string(r) == strings.ToLower(string(r))
}

func (r Role) String() string { return string(r) }

func (r Role) IsAdmin() bool { return r == RoleAdmin }

func IsAdmin(role string) bool { return Role(role).IsAdmin() }
