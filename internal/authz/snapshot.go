package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Export copies the three stores into a serializable snapshot. Slices are
// sorted so successive exports of identical state are byte-comparable.
func (e *Engine) Export() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Permissions:     make([]Permission, 0, len(e.perms)),
		Roles:           make([]Role, 0, len(e.roles)),
		RolePermissions: make(map[string][]string, len(e.rolePerms)),
		UserRoles:       make(map[string][]string, len(e.userRoles)),
	}
	for _, p := range e.perms {
		snap.Permissions = append(snap.Permissions, *p)
	}
	sort.Slice(snap.Permissions, func(i, j int) bool { return snap.Permissions[i].ID < snap.Permissions[j].ID })
	for _, r := range e.roles {
		snap.Roles = append(snap.Roles, *r)
	}
	sort.Slice(snap.Roles, func(i, j int) bool { return snap.Roles[i].ID < snap.Roles[j].ID })
	for roleID, set := range e.rolePerms {
		if len(set) > 0 {
			snap.RolePermissions[roleID] = sortedKeys(set)
		}
	}
	for userID, set := range e.userRoles {
		if len(set) > 0 {
			snap.UserRoles[userID] = sortedKeys(set)
		}
	}
	return snap
}

// Restore replaces all engine state with the snapshot contents. Dangling
// references (grants for unknown permissions, assignments to unknown roles)
// are tolerated: resolution treats them as empty contributions. Records
// missing their identity are rejected.
func (e *Engine) Restore(snap Snapshot) error {
	perms := make(map[string]*Permission, len(snap.Permissions))
	for _, p := range snap.Permissions {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: permission without id", ErrInvalidArgument)
		}
		if _, dup := perms[p.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePermission, p.ID)
		}
		cp := p
		perms[p.ID] = &cp
	}
	roles := make(map[string]*Role, len(snap.Roles))
	for _, r := range snap.Roles {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: role without id", ErrInvalidArgument)
		}
		if _, dup := roles[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.ID)
		}
		cp := r
		roles[r.ID] = &cp
	}
	rolePerms := make(map[string]map[string]struct{}, len(snap.RolePermissions))
	for roleID, ids := range snap.RolePermissions {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		rolePerms[roleID] = set
	}
	userRoles := make(map[string]map[string]struct{}, len(snap.UserRoles))
	for userID, ids := range snap.UserRoles {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		userRoles[userID] = set
	}

	e.mu.Lock()
	e.perms = perms
	e.roles = roles
	e.rolePerms = rolePerms
	e.userRoles = userRoles
	e.mu.Unlock()
	return nil
}
