package rbac

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role outside the enumerated set is queried.
// Callers must treat it as a programming error, not as an empty permission set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Hierarchy maps each role to the roles it inherits permissions from.
// The relation must be acyclic; NewResolver validates this at construction.
type Hierarchy map[Role][]Role

// Grants maps each role to the permissions granted to it directly,
// before inheritance is applied.
type Grants map[Role][]Permission

// DefaultHierarchy mirrors the production role model: a linear chain
// owner > admin > analyst/developer > viewer, plus partner as a parallel
// branch that inherits only from viewer.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		RoleOwner:     {RoleAdmin, RoleAnalyst, RoleDeveloper, RoleViewer, RolePartner},
		RoleAdmin:     {RoleAnalyst, RoleDeveloper, RoleViewer, RolePartner},
		RoleAnalyst:   {RoleViewer},
		RoleDeveloper: {RoleViewer},
		RoleViewer:    {},
		RolePartner:   {RoleViewer},
	}
}

// DefaultGrants returns the direct role-to-permission table.
func DefaultGrants() Grants {
	return Grants{
		RoleOwner: {
			PermManageUsers, PermViewUsers,
			PermManageTenant, PermSwitchTenants,
			PermManageBilling, PermViewBilling,
			PermViewAnalytics, PermExportAnalytics,
			PermManageCompliance, PermViewCompliance, PermUploadEvidence,
			PermManageRulesets, PermViewRulesets, PermPromoteRulesets,
			PermViewAudit, PermExportAudit,
			PermManagePartners, PermViewPartners, PermSubmitRulesets,
			PermManageAPIKeys, PermManageWebhooks, PermManageFeatureFlags,
		},
		RoleAdmin: {
			PermManageUsers, PermViewUsers,
			PermManageTenant, PermSwitchTenants,
			PermManageBilling, PermViewBilling,
			PermViewAnalytics, PermExportAnalytics,
			PermManageCompliance, PermViewCompliance, PermUploadEvidence,
			PermManageRulesets, PermViewRulesets, PermPromoteRulesets,
			PermViewAudit, PermExportAudit,
			PermViewPartners,
			PermManageAPIKeys, PermManageWebhooks,
		},
		RoleAnalyst: {
			PermViewUsers, PermViewBilling,
			PermViewAnalytics, PermExportAnalytics,
			PermViewCompliance, PermUploadEvidence,
			PermViewRulesets,
			PermViewAudit, PermExportAudit,
			PermViewPartners,
		},
		RoleDeveloper: {
			PermViewUsers,
			PermViewAnalytics,
			PermViewRulesets, PermPromoteRulesets,
			PermViewAudit,
			PermManageAPIKeys, PermManageWebhooks,
		},
		RoleViewer: {
			PermViewAnalytics, PermViewCompliance, PermViewRulesets, PermViewAudit,
		},
		RolePartner: {
			PermViewAnalytics, PermViewRulesets, PermSubmitRulesets, PermViewAudit,
		},
	}
}

// Resolver answers permission and seniority questions for roles. It is
// immutable after construction and safe for concurrent use.
type Resolver struct {
	hierarchy Hierarchy
	grants    Grants
}

// NewResolver validates the tables and builds a Resolver. Both tables must be
// total over AllRoles and the hierarchy must not contain a cycle.
func NewResolver(hierarchy Hierarchy, grants Grants) (*Resolver, error) {
	for _, role := range AllRoles {
		if _, ok := hierarchy[role]; !ok {
			return nil, fmt.Errorf("rbac: hierarchy is missing role %q", role)
		}
		if _, ok := grants[role]; !ok {
			return nil, fmt.Errorf("rbac: grants table is missing role %q", role)
		}
	}
	for role, parents := range hierarchy {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q in hierarchy", ErrUnknownRole, role)
		}
		for _, parent := range parents {
			if !parent.Valid() {
				return nil, fmt.Errorf("%w: %q inherited by %q", ErrUnknownRole, parent, role)
			}
		}
	}
	if cycle := findCycle(hierarchy); cycle != "" {
		return nil, fmt.Errorf("rbac: hierarchy contains a cycle through %q", cycle)
	}
	return &Resolver{hierarchy: hierarchy, grants: grants}, nil
}

// NewDefaultResolver builds a Resolver over the built-in tables. The built-in
// tables are known valid, so construction cannot fail.
func NewDefaultResolver() *Resolver {
	r, err := NewResolver(DefaultHierarchy(), DefaultGrants())
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve computes the effective permission set for a role: its direct grants
// unioned with the grants of every role reachable through the hierarchy.
// The result preserves first-seen order and contains no duplicates; repeated
// calls for the same role yield the same slice contents.
func (r *Resolver) Resolve(role Role) ([]Permission, error) {
	closure, err := r.closure(role)
	if err != nil {
		return nil, err
	}

	seen := make(map[Permission]struct{})
	var perms []Permission
	for _, member := range closure {
		for _, p := range r.grants[member] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// HasPermission reports whether the effective permission set of role contains p.
func (r *Resolver) HasPermission(role Role, p Permission) (bool, error) {
	closure, err := r.closure(role)
	if err != nil {
		return false, err
	}
	for _, member := range closure {
		for _, granted := range r.grants[member] {
			if granted == p {
				return true, nil
			}
		}
	}
	return false, nil
}

// HasRoleAtLeast reports whether userRole equals requiredRole or inherits from
// it, directly or transitively. Membership is decided by hierarchy reachability
// only; two roles on parallel branches compare false in both directions even
// when their enumerated positions are adjacent.
func (r *Resolver) HasRoleAtLeast(userRole, requiredRole Role) (bool, error) {
	if _, ok := r.hierarchy[requiredRole]; !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, requiredRole)
	}
	closure, err := r.closure(userRole)
	if err != nil {
		return false, err
	}
	for _, member := range closure {
		if member == requiredRole {
			return true, nil
		}
	}
	return false, nil
}

// closure returns role plus every role reachable from it, in breadth-first
// order. The visited set guarantees termination even if the tables were ever
// edited into a cyclic shape after construction.
func (r *Resolver) closure(role Role) ([]Role, error) {
	if _, ok := r.hierarchy[role]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	visited := map[Role]struct{}{role: {}}
	order := []Role{role}
	queue := []Role{role}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, parent := range r.hierarchy[current] {
			if _, ok := visited[parent]; ok {
				continue
			}
			visited[parent] = struct{}{}
			order = append(order, parent)
			queue = append(queue, parent)
		}
	}
	return order, nil
}

// findCycle returns a role involved in a hierarchy cycle, or "" when acyclic.
func findCycle(h Hierarchy) Role {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[Role]int, len(h))

	var visit func(Role) Role
	visit = func(role Role) Role {
		color[role] = gray
		for _, parent := range h[role] {
			switch color[parent] {
			case gray:
				return parent
			case white:
				if bad := visit(parent); bad != "" {
					return bad
				}
			}
		}
		color[role] = black
		return ""
	}

	for role := range h {
		if color[role] == white {
			if bad := visit(role); bad != "" {
				return bad
			}
		}
	}
	return ""
}
