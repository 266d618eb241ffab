package shared

// Core election permissions. Permission names double as evaluator actions.
const (
	PermVoteCast      = "vote.cast"
	PermResultsView   = "results.view"
	PermElectionsEdit = "elections.manage"

	PermRolesView  = "roles.view"
	PermRolesEdit  = "roles.edit"
	PermRolesGrant = "roles.grant"

	PermPoliciesView = "policies.view"
	PermAuditView    = "audit.view"
)

// CoreScopes lists all permissions known to the core.
func CoreScopes() []string {
	return []string{
		PermVoteCast,
		PermResultsView,
		PermElectionsEdit,
		PermRolesView,
		PermRolesEdit,
		PermRolesGrant,
		PermPoliciesView,
		PermAuditView,
	}
}

// TimeScopedActions lists actions gated by an election window unless configured otherwise.
func TimeScopedActions() []string {
	return []string{PermVoteCast}
}

// Resource types understood by the evaluator and bound to access policies.
const (
	ResourceElection   = "election"
	ResourceRole       = "role"
	ResourceRoleChange = "role_change"
	ResourceAudit      = "audit"
)
