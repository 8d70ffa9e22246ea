// Package roles maps identities to default roles and defines the role
// ordering used for authorization checks.
//
// Role order, descending privilege: superadmin > admin > member > viewer.
// The allow-lists are injected configuration, not source constants, so the
// policy is testable without recompilation.
package roles

import (
	"strings"

	"duit/internal/core"
)

// Policy holds the configured allow-lists for default role assignment at
// account creation. Email comparison is case-insensitive.
type Policy struct {
	SuperadminEmail string
	AdminEmails     []string
}

// ClassifyEmail returns the default role assigned when an account is first
// created. This global role is independent of, and weaker than, the
// family-scoped role assigned later.
func (p Policy) ClassifyEmail(email string) core.Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" && email == strings.ToLower(strings.TrimSpace(p.SuperadminEmail)) {
		return core.RoleSuperadmin
	}
	for _, a := range p.AdminEmails {
		if email == strings.ToLower(strings.TrimSpace(a)) {
			return core.RoleAdmin
		}
	}
	return core.RoleUser
}

// level assigns a rank to each role for ordering checks. The global
// fallback role "user" ranks with member.
func level(r core.Role) int {
	switch r {
	case core.RoleSuperadmin:
		return 4
	case core.RoleAdmin:
		return 3
	case core.RoleMember, core.RoleUser:
		return 2
	case core.RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r carries at least the privilege of other.
func AtLeast(r, other core.Role) bool {
	return level(r) >= level(other)
}

// CanManageMembers reports whether a role may invite, remove, or change
// the role of family members.
func CanManageMembers(r core.Role) bool {
	return r == core.RoleSuperadmin || r == core.RoleAdmin
}
