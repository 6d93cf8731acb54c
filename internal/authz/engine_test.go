package authz

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-authz/internal/audit"
)

func newTestEngine(t *testing.T) (*Engine, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(logger, sink), sink
}

func TestBootstrapSuperAdminResolvesFullCatalog(t *testing.T) {
	engine, _ := newTestEngine(t)

	resolved, err := engine.ResolveRolePermissions(RoleSuperAdmin)
	require.NoError(t, err)

	all := engine.ListPermissions()
	require.Len(t, resolved, len(all))
	resolvedSet := make(map[string]struct{}, len(resolved))
	for _, id := range resolved {
		resolvedSet[id] = struct{}{}
	}
	for _, p := range all {
		_, ok := resolvedSet[p.ID]
		assert.True(t, ok, "super admin missing %s", p.ID)
	}
}

func TestBootstrapChainShape(t *testing.T) {
	engine, _ := newTestEngine(t)

	wantParents := map[string]string{
		RoleSuperAdmin: RoleAdmin,
		RoleAdmin:      RoleManager,
		RoleManager:    RoleUser,
		RoleUser:       RoleGuest,
		RoleGuest:      "",
	}
	for id, parent := range wantParents {
		role, ok := engine.GetRole(id)
		require.True(t, ok, "missing system role %s", id)
		assert.Equal(t, parent, role.ParentID, "parent of %s", id)
		assert.True(t, role.IsSystem)
	}
}

func TestGuestUserOnlySeesGuestGrants(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	assert.True(t, engine.HasPermission("u1", PermResourceRead))
	assert.False(t, engine.HasPermission("u1", PermUserDelete))
}

func TestCreatePermissionDerivesIdentifier(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	perm, err := engine.CreatePermission(ctx, "Export  Ledger", "Report", "export GL data")
	require.NoError(t, err)
	assert.Equal(t, "perm-report:export_ledger", perm.ID)
	assert.False(t, perm.IsSystem)
	assert.Zero(t, perm.UsageCount)

	_, err = engine.CreatePermission(ctx, "export ledger", "report", "")
	require.ErrorIs(t, err, ErrDuplicatePermission)
}

func TestCreatePermissionValidatesArguments(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreatePermission(ctx, "", "report", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = engine.CreatePermission(ctx, "Export", "   ", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateRoleValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "", "", 500, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.CreateRole(ctx, "Overflow", "", 1001, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.CreateRole(ctx, "Underflow", "", -1, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.CreateRole(ctx, "Orphan", "", 300, "role-missing")
	require.ErrorIs(t, err, ErrRoleNotFound)

	role, err := engine.CreateRole(ctx, "Auditor", "read-only audit access", 300, RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "role-auditor", role.ID)
	assert.Equal(t, RoleUser, role.ParentID)
	assert.False(t, role.IsSystem)

	_, err = engine.CreateRole(ctx, "auditor", "", 300, "")
	require.ErrorIs(t, err, ErrDuplicateRole)
}

func TestCreateRoleDefaultsLevel(t *testing.T) {
	engine, _ := newTestEngine(t)

	role, err := engine.CreateRole(context.Background(), "Analyst", "", 0, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoleLevel, role.Level)
}

func TestAssignPermissionIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "Auditor", "", 300, "")
	require.NoError(t, err)
	perm, err := engine.CreatePermission(ctx, "Do", "custom", "")
	require.NoError(t, err)

	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-auditor", perm.ID))
	first, err := engine.ResolveRolePermissions("role-auditor")
	require.NoError(t, err)

	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-auditor", perm.ID))
	second, err := engine.ResolveRolePermissions("role-auditor")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, ok := engine.GetPermission(perm.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.UsageCount, "usage count must not double on idempotent re-grant")

	// Removing an absent pair is a no-op success.
	require.NoError(t, engine.RemovePermissionFromRole(ctx, "role-auditor", "perm-custom:absent"))
}

func TestAssignPermissionUnknownIDs(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	err := engine.AssignPermissionToRole(ctx, "role-missing", PermReportRead)
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = engine.CreateRole(ctx, "Auditor", "", 300, "")
	require.NoError(t, err)
	err = engine.AssignPermissionToRole(ctx, "role-auditor", "perm-missing:x")
	require.ErrorIs(t, err, ErrPermissionNotFound)
}

func TestSystemRolesAreImmutable(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	perm, err := engine.CreatePermission(ctx, "Anything", "custom", "")
	require.NoError(t, err)

	for _, roleID := range []string{RoleSuperAdmin, RoleAdmin, RoleManager, RoleUser, RoleGuest} {
		err := engine.AssignPermissionToRole(ctx, roleID, perm.ID)
		assert.ErrorIs(t, err, ErrSystemRoleImmutable, "assign to %s", roleID)
		err = engine.RemovePermissionFromRole(ctx, roleID, PermResourceRead)
		assert.ErrorIs(t, err, ErrSystemRoleImmutable, "remove from %s", roleID)
	}
}

func TestSystemRoleGrantsUnchangedAfterRejectedMutation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	before, err := engine.ResolveRolePermissions(RoleAdmin)
	require.NoError(t, err)

	err = engine.AssignPermissionToRole(ctx, RoleAdmin, PermSystemConfig)
	require.ErrorIs(t, err, ErrSystemRoleImmutable)

	after, err := engine.ResolveRolePermissions(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCustomRoleInheritsFromSystemParent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "Auditor", "", 300, RoleUser)
	require.NoError(t, err)
	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-auditor", PermReportExport))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u2", "role-auditor"))

	assert.True(t, engine.HasPermission("u2", PermReportExport), "direct grant")
	assert.True(t, engine.HasPermission("u2", PermReportRead), "inherited from user role")
	assert.True(t, engine.HasPermission("u2", PermResourceRead), "inherited from guest root")
	assert.False(t, engine.HasPermission("u2", PermSystemConfig))
}

func TestRemoveRoleFromUserRevokesAccess(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "X", "", 500, "")
	require.NoError(t, err)
	perm, err := engine.CreatePermission(ctx, "Do", "custom", "")
	require.NoError(t, err)
	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-x", perm.ID))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u3", "role-x"))
	require.True(t, engine.HasPermission("u3", perm.ID))

	require.NoError(t, engine.RemoveRoleFromUser(ctx, "u3", "role-x"))
	assert.False(t, engine.HasPermission("u3", perm.ID))

	// Idempotent removal, including ids that never existed.
	require.NoError(t, engine.RemoveRoleFromUser(ctx, "u3", "role-x"))
	require.NoError(t, engine.RemoveRoleFromUser(ctx, "nobody", "role-nothing"))
}

func TestAssignRoleToUserValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	err := engine.AssignRoleToUser(ctx, "", RoleGuest)
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = engine.AssignRoleToUser(ctx, "u1", "role-missing")
	require.ErrorIs(t, err, ErrRoleNotFound)

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	role, ok := engine.GetRole(RoleGuest)
	require.True(t, ok)
	assert.Equal(t, int64(1), role.UsageCount)
}

func TestReadProjections(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	assert.Empty(t, engine.GetUserRoles("ghost"))
	assert.Empty(t, engine.GetRolePermissions("role-missing"))
	assert.Empty(t, engine.GetUsersWithRole("role-missing"))

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u2", RoleGuest))

	roles := engine.GetUserRoles("u1")
	require.Len(t, roles, 1)
	assert.Equal(t, RoleGuest, roles[0].ID)

	assert.Equal(t, []string{"u1", "u2"}, engine.GetUsersWithRole(RoleGuest))
	assert.Equal(t, []string{PermResourceRead}, engine.GetRolePermissions(RoleGuest))
}

func TestReparentRole(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "Team Lead", "", 400, "")
	require.NoError(t, err)
	_, err = engine.CreateRole(ctx, "Deputy", "", 350, "role-team-lead")
	require.NoError(t, err)

	// Reparenting a role under its own descendant must be rejected.
	_, err = engine.ReparentRole(ctx, "role-team-lead", "role-deputy")
	require.ErrorIs(t, err, ErrCycleDetected)

	_, err = engine.ReparentRole(ctx, "role-team-lead", "role-team-lead")
	require.ErrorIs(t, err, ErrCycleDetected)

	_, err = engine.ReparentRole(ctx, RoleGuest, "")
	require.ErrorIs(t, err, ErrSystemRoleImmutable)

	updated, err := engine.ReparentRole(ctx, "role-team-lead", RoleUser)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, updated.ParentID)

	// Deputy now sees grants inherited through the new chain.
	require.NoError(t, engine.AssignRoleToUser(ctx, "u9", "role-deputy"))
	assert.True(t, engine.HasPermission("u9", PermReportRead))

	detached, err := engine.ReparentRole(ctx, "role-team-lead", "")
	require.NoError(t, err)
	assert.Empty(t, detached.ParentID)
	assert.False(t, engine.HasPermission("u9", PermReportRead))
}

func TestStatistics(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := engine.Statistics()
	assert.Equal(t, 5, base.TotalRoles)
	assert.Equal(t, 5, base.SystemRoles)
	assert.Zero(t, base.CustomRoles)
	assert.Equal(t, 18, base.TotalPermissions)
	assert.Equal(t, 18, base.SystemPermissions)
	assert.Zero(t, base.RoleAssignments)
	assert.InDelta(t, 18.0/5.0, base.AvgPermissionsPerRole, 1e-9)

	_, err := engine.CreateRole(ctx, "Auditor", "", 300, RoleUser)
	require.NoError(t, err)
	_, err = engine.CreatePermission(ctx, "Do", "custom", "")
	require.NoError(t, err)
	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", "role-auditor"))

	stats := engine.Statistics()
	assert.Equal(t, 6, stats.TotalRoles)
	assert.Equal(t, 1, stats.CustomRoles)
	assert.Equal(t, 19, stats.TotalPermissions)
	assert.Equal(t, 1, stats.CustomPermissions)
	assert.Equal(t, 2, stats.RoleAssignments)
}

func TestMutationsEmitAuditEvents(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateRole(ctx, "Auditor", "", 300, RoleUser)
	require.NoError(t, err)
	perm, err := engine.CreatePermission(ctx, "Do", "custom", "")
	require.NoError(t, err)
	require.NoError(t, engine.AssignPermissionToRole(ctx, "role-auditor", perm.ID))
	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", "role-auditor"))
	require.NoError(t, engine.RemoveRoleFromUser(ctx, "u1", "role-auditor"))

	events := sink.Events()
	require.Len(t, events, 5)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		require.NotEmpty(t, ev.ID)
		require.False(t, ev.At.IsZero())
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		audit.ActionRoleCreated,
		audit.ActionPermissionCreated,
		audit.ActionPermissionGranted,
		audit.ActionRoleAssigned,
		audit.ActionRoleRemoved,
	}, actions)
}

func TestIdempotentNoOpsEmitNoEvents(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	sink.Reset()

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	require.NoError(t, engine.RemoveRoleFromUser(ctx, "u2", RoleGuest))
	assert.Empty(t, sink.Events())
}

type failingSink struct{}

func (failingSink) Record(ctx context.Context, ev audit.Event) error {
	return context.DeadlineExceeded
}

func TestSinkFailureDoesNotRollBackMutation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(logger, failingSink{})
	ctx := context.Background()

	require.NoError(t, engine.AssignRoleToUser(ctx, "u1", RoleGuest))
	assert.True(t, engine.HasPermission("u1", PermResourceRead))
}
