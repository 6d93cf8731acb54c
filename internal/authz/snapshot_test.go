package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRestoreRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "Auditor", "audit", 300, RoleUser)
	require.NoError(t, err)
	perm, err := engine.CreatePermission(ctx, "Export", "report-extra", "")
	require.NoError(t, err)
	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-auditor", perm.ID))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", "role-auditor"))

	snap := engine.Export()

	restored, _ := newTestEngine(t)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, snap, restored.Export())
	assert.True(t, restored.HasPermission("u1", perm.ID))
	assert.True(t, restored.HasPermission("u1", PermReportRead))
	assert.Equal(t, engine.Statistics(), restored.Statistics())
}

func TestExportIsStable(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.AssignRoleToUser(context.Background(), "u1", RoleGuest))

	assert.Equal(t, engine.Export(), engine.Export())
}

func TestExportIsACopy(t *testing.T) {
	engine, _ := newTestEngine(t)

	snap := engine.Export()
	snap.Roles[0].Name = "mutated"
	snap.RolePermissions[RoleGuest] = append(snap.RolePermissions[RoleGuest], "perm-custom:injected")

	fresh := engine.Export()
	assert.NotEqual(t, "mutated", fresh.Roles[0].Name)
	assert.Equal(t, []string{PermResourceRead}, fresh.RolePermissions[RoleGuest])
}

func TestRestoreRejectsRecordsWithoutIdentity(t *testing.T) {
	engine, _ := newTestEngine(t)

	snap := engine.Export()
	snap.Roles = append(snap.Roles, Role{Name: "anonymous"})
	require.ErrorIs(t, engine.Restore(snap), ErrInvalidArgument)

	snap = engine.Export()
	snap.Permissions = append(snap.Permissions, Permission{Name: "anonymous"})
	require.ErrorIs(t, engine.Restore(snap), ErrInvalidArgument)
}

func TestRestoreRejectsDuplicateIdentifiers(t *testing.T) {
	engine, _ := newTestEngine(t)

	snap := engine.Export()
	snap.Roles = append(snap.Roles, snap.Roles[0])
	require.ErrorIs(t, engine.Restore(snap), ErrDuplicateRole)

	snap = engine.Export()
	snap.Permissions = append(snap.Permissions, snap.Permissions[0])
	require.ErrorIs(t, engine.Restore(snap), ErrDuplicatePermission)
}

func TestFailedRestoreLeavesStateUntouched(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.AssignRoleToUser(context.Background(), "u1", RoleGuest))

	bad := engine.Export()
	bad.Roles = append(bad.Roles, Role{Name: "anonymous"})
	require.Error(t, engine.Restore(bad))

	assert.True(t, engine.HasPermission("u1", PermResourceRead))
}
