package rbac

// Permission is an atomic capability tag checked at enforcement points.
// Permissions are flat; only roles carry inheritance.
type Permission string

const (
	// User management
	PermManageUsers Permission = "manage_users"
	PermViewUsers   Permission = "view_users"

	// Tenant management
	PermManageTenant  Permission = "manage_tenant"
	PermSwitchTenants Permission = "switch_tenants"

	// Billing and subscriptions
	PermManageBilling Permission = "manage_billing"
	PermViewBilling   Permission = "view_billing"

	// Analytics and usage
	PermViewAnalytics   Permission = "view_analytics"
	PermExportAnalytics Permission = "export_analytics"

	// Compliance
	PermManageCompliance Permission = "manage_compliance"
	PermViewCompliance   Permission = "view_compliance"
	PermUploadEvidence   Permission = "upload_evidence"

	// Rulesets
	PermManageRulesets  Permission = "manage_rulesets"
	PermViewRulesets    Permission = "view_rulesets"
	PermPromoteRulesets Permission = "promote_rulesets"

	// Audit
	PermViewAudit   Permission = "view_audit"
	PermExportAudit Permission = "export_audit"

	// Partners
	PermManagePartners Permission = "manage_partners"
	PermViewPartners   Permission = "view_partners"
	PermSubmitRulesets Permission = "submit_rulesets"

	// Platform administration
	PermManageAPIKeys      Permission = "manage_api_keys"
	PermManageWebhooks     Permission = "manage_webhooks"
	PermManageFeatureFlags Permission = "manage_feature_flags"
)

// AllPermissions lists every permission known to the system.
var AllPermissions = []Permission{
	PermManageUsers,
	PermViewUsers,
	PermManageTenant,
	PermSwitchTenants,
	PermManageBilling,
	PermViewBilling,
	PermViewAnalytics,
	PermExportAnalytics,
	PermManageCompliance,
	PermViewCompliance,
	PermUploadEvidence,
	PermManageRulesets,
	PermViewRulesets,
	PermPromoteRulesets,
	PermViewAudit,
	PermExportAudit,
	PermManagePartners,
	PermViewPartners,
	PermSubmitRulesets,
	PermManageAPIKeys,
	PermManageWebhooks,
	PermManageFeatureFlags,
}

// Valid reports whether p is one of the enumerated permissions.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

func (p Permission) String() string { return string(p) }

// PermissionGroups returns permissions grouped by functional area, mainly for
// admin tooling and documentation endpoints.
func PermissionGroups() map[string][]Permission {
	return map[string][]Permission{
		"User Management":         {PermManageUsers, PermViewUsers},
		"Tenant Management":       {PermManageTenant, PermSwitchTenants},
		"Billing & Subscriptions": {PermManageBilling, PermViewBilling},
		"Analytics & Usage":       {PermViewAnalytics, PermExportAnalytics},
		"Compliance":              {PermManageCompliance, PermViewCompliance, PermUploadEvidence},
		"Rulesets":                {PermManageRulesets, PermViewRulesets, PermPromoteRulesets},
		"Audit":                   {PermViewAudit, PermExportAudit},
		"Partners":                {PermManagePartners, PermViewPartners, PermSubmitRulesets},
		"Admin":                   {PermManageAPIKeys, PermManageWebhooks, PermManageFeatureFlags},
	}
}
