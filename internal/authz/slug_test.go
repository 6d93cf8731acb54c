package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionIDDerivation(t *testing.T) {
	cases := []struct {
		category string
		name     string
		want     string
	}{
		{"report", "Export", "perm-report:export"},
		{"Report", "  Export Ledger  ", "perm-report:export_ledger"},
		{"system", "Multi   Space\tName", "perm-system:multi_space_name"},
		{"resource", "read", "perm-resource:read"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PermissionID(tc.category, tc.name))
	}
}

func TestRoleIDDerivation(t *testing.T) {
	assert.Equal(t, "role-auditor", RoleID("Auditor"))
	assert.Equal(t, "role-team-lead", RoleID("  Team  Lead "))
	assert.Equal(t, "role-café", RoleID("Café"))
}
