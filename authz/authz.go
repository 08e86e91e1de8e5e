/*
Package authz maps actor roles to permissions. The mapping is fixed at
build time - there is no admin UI for editing it - and consulted by
every write path as a single standalone permission table.
*/
package authz

import (
	"github.com/warp/reconcile-engine/reconcile"
)

// Permission names one guarded capability.
type Permission string

const (
	PermIngestRead      Permission = "ingest:read"
	PermIngestWrite     Permission = "ingest:write"
	PermMatchRead       Permission = "match:read"
	PermMatchExecute    Permission = "match:execute"
	PermExceptionsRead  Permission = "exceptions:read"
	PermExceptionsWrite Permission = "exceptions:write"
	PermAdminRules      Permission = "admin:rules"
	PermAuditRead       Permission = "audit:read"
	PermAnalyticsRead   Permission = "analytics:read"
)

// Role names one seeded role.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleOperatorL1     Role = "operator_l1"
	RoleOperatorL2     Role = "operator_l2"
	RoleAuditor        Role = "auditor"
	RoleFinanceViewer  Role = "finance_viewer"
)

var allPermissions = []Permission{
	PermIngestRead, PermIngestWrite, PermMatchRead, PermMatchExecute,
	PermExceptionsRead, PermExceptionsWrite, PermAdminRules, PermAuditRead, PermAnalyticsRead,
}

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: permSet(allPermissions),
	RoleOperatorL1: permSet([]Permission{
		PermMatchRead, PermExceptionsRead, PermExceptionsWrite, PermAnalyticsRead,
	}),
	RoleOperatorL2: permSet([]Permission{
		PermMatchRead, PermExceptionsRead, PermExceptionsWrite, PermAnalyticsRead,
	}),
	RoleAuditor: permSet([]Permission{
		PermAuditRead, PermMatchRead, PermExceptionsRead, PermAnalyticsRead,
	}),
	RoleFinanceViewer: permSet([]Permission{
		PermMatchRead, PermExceptionsRead, PermAnalyticsRead,
	}),
}

func permSet(perms []Permission) map[Permission]bool {
	s := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		s[p] = true
	}
	return s
}

// HasPermission reports whether any of the given roles grants perm.
func HasPermission(roles []string, perm Permission) bool {
	for _, r := range roles {
		if rolePermissions[Role(r)][perm] {
			return true
		}
	}
	return false
}

// Check returns a *reconcile.ForbiddenError unless one of actor's roles
// grants perm. Every externally triggered command calls this first.
func Check(actor string, roles []string, perm Permission) error {
	if HasPermission(roles, perm) {
		return nil
	}
	return &reconcile.ForbiddenError{Actor: actor, Permission: string(perm)}
}
