package rbac

import "fmt"

// Role is the coarse authorization tier. The set is closed; ParseRole rejects anything else.
type Role string

// Role names. Keep these stable; they are stored in user_profiles and token claims.
const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRank = map[Role]int{
	RoleMember:     1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("rbac: unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is the same tier as min or above it.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && roleRank[r] >= roleRank[min]
}

func (r Role) String() string { return string(r) }

// Max returns the higher of two roles. Invalid roles lose to valid ones.
func Max(a, b Role) Role {
	if roleRank[b] > roleRank[a] {
		return b
	}
	return a
}

func IsSuperAdmin(r Role) bool { return r == RoleSuperAdmin }

func IsAdmin(r Role) bool { return r.AtLeast(RoleAdmin) }
