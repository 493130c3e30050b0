// Package access decides which jobs and tasks a caller may see or change.
package access

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopfloor/shopfloor/pkg/models"
)

// ErrForbidden is returned when a role has no mapping for the requested scope.
var ErrForbidden = errors.New("forbidden")

// Policy maps each worker role onto the task statuses it may see and act on.
// Admin-tier roles are not listed; they see everything.
type Policy map[models.Role][]models.TaskStatus

// DefaultPolicy gives each workshop role the single stage it works on.
func DefaultPolicy() Policy {
	return Policy{
		models.RoleDesigner:     {models.TaskStatusMockupDevelopment},
		models.RolePatternMaker: {models.TaskStatusPatternDevelopment},
		models.RoleSourcing:     {models.TaskStatusMaterialSourcing},
		models.RolePrinter:      {models.TaskStatusPrinting},
		models.RoleEmbosser:     {models.TaskStatusEmbossing},
		models.RoleDyeMaker:     {models.TaskStatusDyeMaking},
		models.RoleSampler:      {models.TaskStatusRoughSample},
		models.RoleCutter:       {models.TaskStatusCutting},
		models.RoleStitcher:     {models.TaskStatusStitching},
	}
}

// AllowedStatuses returns the statuses role may see. Admin-tier roles get
// every status. Roles without a mapping, or mapped to nothing, get ErrForbidden.
func (p Policy) AllowedStatuses(role models.Role) ([]models.TaskStatus, error) {
	if role.AdminTier() {
		return slices.Clone(models.TaskStatuses), nil
	}
	statuses, ok := p[role]
	if !ok || len(statuses) == 0 {
		return nil, fmt.Errorf("%w: role %q has no task visibility", ErrForbidden, role)
	}
	return slices.Clone(statuses), nil
}

// Allows reports whether role may see a task in status st.
func (p Policy) Allows(role models.Role, st models.TaskStatus) bool {
	if role.AdminTier() {
		return true
	}
	return slices.Contains(p[role], st)
}

// RequireAdmin fails with ErrForbidden unless ident is admin tier.
func RequireAdmin(ident models.Identity) error {
	if ident.Role.AdminTier() {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot perform this action", ErrForbidden, ident.Role)
}
