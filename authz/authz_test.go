package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reconcile-engine/authz"
	"github.com/warp/reconcile-engine/reconcile"
)

func TestHasPermission_AdminGrantsEverything(t *testing.T) {
	roles := []string{string(authz.RoleAdmin)}
	assert.True(t, authz.HasPermission(roles, authz.PermAdminRules))
	assert.True(t, authz.HasPermission(roles, authz.PermAuditRead))
	assert.True(t, authz.HasPermission(roles, authz.PermIngestWrite))
}

func TestHasPermission_FinanceViewerIsReadOnly(t *testing.T) {
	roles := []string{string(authz.RoleFinanceViewer)}
	assert.True(t, authz.HasPermission(roles, authz.PermMatchRead))
	assert.False(t, authz.HasPermission(roles, authz.PermExceptionsWrite))
	assert.False(t, authz.HasPermission(roles, authz.PermAdminRules))
}

func TestHasPermission_AuditorCannotExecuteMatches(t *testing.T) {
	roles := []string{string(authz.RoleAuditor)}
	assert.True(t, authz.HasPermission(roles, authz.PermAuditRead))
	assert.False(t, authz.HasPermission(roles, authz.PermMatchExecute))
}

func TestCheck_ReturnsForbiddenError(t *testing.T) {
	err := authz.Check("bob", []string{string(authz.RoleFinanceViewer)}, authz.PermAdminRules)
	require.Error(t, err)
	assert.True(t, reconcile.IsForbidden(err))

	var fe *reconcile.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "bob", fe.Actor)
}

func TestCheck_MultipleRolesUnion(t *testing.T) {
	roles := []string{string(authz.RoleFinanceViewer), string(authz.RoleOperatorL1)}
	assert.NoError(t, authz.Check("alice", roles, authz.PermExceptionsWrite))
}
