package rbac

// Role is a coarse-grained identity classification. Roles inherit permission
// sets from other roles through the hierarchy table; the enumeration order
// carries no authority semantics (see Resolver.HasRoleAtLeast).
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleAnalyst   Role = "analyst"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
	RolePartner   Role = "partner"
)

// AllRoles lists every role known to the system. The resolver requires an
// entry for each of them in both the hierarchy and the grants table.
var AllRoles = []Role{
	RoleOwner,
	RoleAdmin,
	RoleAnalyst,
	RoleDeveloper,
	RoleViewer,
	RolePartner,
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// Description returns a human readable summary for the role.
func (r Role) Description() string {
	switch r {
	case RoleOwner:
		return "Full system access with all permissions"
	case RoleAdmin:
		return "Organization management with most permissions"
	case RoleAnalyst:
		return "Data analysis and compliance management"
	case RoleDeveloper:
		return "API integration and ruleset management"
	case RoleViewer:
		return "Read-only access to basic features"
	case RolePartner:
		return "Partner ecosystem access with limited permissions"
	default:
		return "No description available"
	}
}
