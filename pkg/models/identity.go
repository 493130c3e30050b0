// Package models contains shared data models used across the shopfloor codebase.
package models

import "github.com/google/uuid"

// Role is a caller's permission class.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"

	RoleDesigner     Role = "designer"
	RolePatternMaker Role = "pattern-maker"
	RoleSourcing     Role = "sourcing"
	RolePrinter      Role = "printer"
	RoleEmbosser     Role = "embosser"
	RoleDyeMaker     Role = "dye-maker"
	RoleSampler      Role = "sampler"
	RoleCutter       Role = "cutter"
	RoleStitcher     Role = "stitcher"

	// RoleMember is carried over from older user records and has no stage mapping.
	RoleMember Role = "member"
)

// AdminTier reports whether r has unrestricted visibility.
func (r Role) AdminTier() bool {
	return r == RoleSuperadmin || r == RoleAdmin || r == RoleManager
}

// Identity is the authenticated caller. It is supplied by the auth layer and
// trusted verbatim.
type Identity struct {
	ID    uuid.UUID `db:"id"    json:"id"`
	Role  Role      `db:"role"  json:"role"`
	Name  string    `db:"name"  json:"name"`
	Email string    `db:"email" json:"email"`
}
