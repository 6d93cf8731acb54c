package authz

// System role identifiers seeded at engine construction. They form a single
// chain: each role's parent is the next one down, with the guest role as the
// hierarchy root. Resolution walks upward, so the super administrator
// inherits every grant in the chain.
const (
	RoleSuperAdmin = "role-super-admin"
	RoleAdmin      = "role-admin"
	RoleManager    = "role-manager"
	RoleUser       = "role-user"
	RoleGuest      = "role-guest"
)

// System permission identifiers seeded at engine construction.
const (
	PermUserRead   = "perm-user:read"
	PermUserCreate = "perm-user:create"
	PermUserUpdate = "perm-user:update"
	PermUserDelete = "perm-user:delete"

	PermRoleRead   = "perm-role:read"
	PermRoleCreate = "perm-role:create"
	PermRoleUpdate = "perm-role:update"
	PermRoleAssign = "perm-role:assign"

	PermResourceRead   = "perm-resource:read"
	PermResourceCreate = "perm-resource:create"
	PermResourceUpdate = "perm-resource:update"
	PermResourceDelete = "perm-resource:delete"

	PermReportRead   = "perm-report:read"
	PermReportCreate = "perm-report:create"
	PermReportExport = "perm-report:export"

	PermSystemConfig = "perm-system:config"
	PermSystemAudit  = "perm-system:audit"
	PermSystemBackup = "perm-system:backup"
)

type seedPermission struct {
	id       string
	name     string
	category string
	desc     string
}

type seedRole struct {
	id     string
	name   string
	desc   string
	level  int
	parent string
	grants []string
}

func systemPermissions() []seedPermission {
	return []seedPermission{
		{PermUserRead, "Read Users", "user", "View user accounts"},
		{PermUserCreate, "Create Users", "user", "Create user accounts"},
		{PermUserUpdate, "Update Users", "user", "Modify user accounts"},
		{PermUserDelete, "Delete Users", "user", "Remove user accounts"},
		{PermRoleRead, "Read Roles", "role", "View roles and their grants"},
		{PermRoleCreate, "Create Roles", "role", "Create custom roles"},
		{PermRoleUpdate, "Update Roles", "role", "Modify custom roles"},
		{PermRoleAssign, "Assign Roles", "role", "Assign roles to users"},
		{PermResourceRead, "Read Resources", "resource", "View resources"},
		{PermResourceCreate, "Create Resources", "resource", "Create resources"},
		{PermResourceUpdate, "Update Resources", "resource", "Modify resources"},
		{PermResourceDelete, "Delete Resources", "resource", "Remove resources"},
		{PermReportRead, "Read Reports", "report", "View reports"},
		{PermReportCreate, "Create Reports", "report", "Build reports"},
		{PermReportExport, "Export Reports", "report", "Export reports"},
		{PermSystemConfig, "Configure System", "system", "Change system configuration"},
		{PermSystemAudit, "Audit System", "system", "Inspect the audit trail"},
		{PermSystemBackup, "Backup System", "system", "Run system backups"},
	}
}

// systemRoles lists the chain root-first so parents exist before children
// during seeding. Direct grants are arranged so the union along the chain
// covers the entire system permission catalog.
func systemRoles() []seedRole {
	return []seedRole{
		{
			id: RoleGuest, name: "Guest", desc: "Unauthenticated or trial access",
			level:  100,
			grants: []string{PermResourceRead},
		},
		{
			id: RoleUser, name: "User", desc: "Standard read-mostly access",
			level: 200, parent: RoleGuest,
			grants: []string{PermUserRead, PermReportRead},
		},
		{
			id: RoleManager, name: "Manager", desc: "Operational management",
			level: 600, parent: RoleUser,
			grants: []string{
				PermUserUpdate,
				PermResourceCreate, PermResourceUpdate,
				PermReportCreate, PermReportExport,
			},
		},
		{
			id: RoleAdmin, name: "Administrator", desc: "Tenant administration",
			level: 800, parent: RoleManager,
			grants: []string{
				PermUserCreate, PermUserDelete,
				PermRoleRead, PermRoleCreate, PermRoleUpdate, PermRoleAssign,
				PermResourceDelete,
			},
		},
		{
			id: RoleSuperAdmin, name: "Super Administrator", desc: "Unrestricted platform access",
			level: 1000, parent: RoleAdmin,
			grants: []string{PermSystemConfig, PermSystemAudit, PermSystemBackup},
		},
	}
}

// bootstrap seeds the system catalog. Runs once inside NewEngine before the
// instance escapes, so no locking is needed and no audit events are emitted.
func (e *Engine) bootstrap() {
	nowUTC := e.now().UTC()
	for _, sp := range systemPermissions() {
		e.perms[sp.id] = &Permission{
			ID:          sp.id,
			Name:        sp.name,
			Category:    sp.category,
			Description: sp.desc,
			IsSystem:    true,
			CreatedAt:   nowUTC,
		}
	}
	for _, sr := range systemRoles() {
		e.roles[sr.id] = &Role{
			ID:          sr.id,
			Name:        sr.name,
			Description: sr.desc,
			Level:       sr.level,
			ParentID:    sr.parent,
			IsSystem:    true,
			CreatedAt:   nowUTC,
			UpdatedAt:   nowUTC,
		}
		grants := make(map[string]struct{}, len(sr.grants))
		for _, permID := range sr.grants {
			grants[permID] = struct{}{}
			e.perms[permID].UsageCount++
		}
		e.rolePerms[sr.id] = grants
	}
}
