package authz

import (
	"fmt"
	"log/slog"
	"sort"
)

// ResolveRolePermissions computes the transitive closure of permissions
// reachable from the role: its direct grants plus everything inherited
// through the ancestor chain. Unknown role ids yield an empty set, never an
// error, since subjects may hold stale references. The only error returned
// is ErrInvariantViolation for a cycle encountered at resolution time,
// which write-time checks should have made impossible.
func (e *Engine) ResolveRolePermissions(roleID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set, err := e.resolveRoleLocked(roleID, nil)
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

// ResolveUserPermissions computes the union of resolved permissions across
// every role directly held by the subject. Unknown subjects yield an empty
// set.
func (e *Engine) ResolveUserPermissions(userID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set, err := e.resolveUserLocked(userID)
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

// HasPermission reports whether the subject's effective permission set
// contains the permission. Never returns an error: any internal failure
// during resolution denies the check.
func (e *Engine) HasPermission(userID, permID string) bool {
	if permID == "" {
		return false
	}
	e.mu.RLock()
	set, err := e.resolveUserLocked(userID)
	e.mu.RUnlock()
	if err != nil {
		e.failClosed(userID, err)
		return false
	}
	_, ok := set[permID]
	return ok
}

// HasAnyPermission reports whether at least one of the permissions is in
// the subject's effective set. An empty request is denied: vacuous checks
// must not grant access.
func (e *Engine) HasAnyPermission(userID string, permIDs []string) bool {
	if len(permIDs) == 0 {
		return false
	}
	e.mu.RLock()
	set, err := e.resolveUserLocked(userID)
	e.mu.RUnlock()
	if err != nil {
		e.failClosed(userID, err)
		return false
	}
	for _, id := range permIDs {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every listed permission is in the
// subject's effective set. An empty request is trivially satisfied; note
// the deliberate polarity difference from HasAnyPermission.
func (e *Engine) HasAllPermissions(userID string, permIDs []string) bool {
	if len(permIDs) == 0 {
		return true
	}
	e.mu.RLock()
	set, err := e.resolveUserLocked(userID)
	e.mu.RUnlock()
	if err != nil {
		e.failClosed(userID, err)
		return false
	}
	for _, id := range permIDs {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// resolveUserLocked unions role resolutions for the subject. Callers hold
// at least a read lock.
func (e *Engine) resolveUserLocked(userID string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for roleID := range e.userRoles[userID] {
		if _, err := e.resolveRoleLocked(roleID, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolveRoleLocked walks the ancestor chain upward from roleID, unioning
// direct grants into dest (allocated when nil). The visited set guards the
// walk: hierarchies are acyclic by construction, but a cycle smuggled in
// through Restore must fail fast instead of looping.
func (e *Engine) resolveRoleLocked(roleID string, dest map[string]struct{}) (map[string]struct{}, error) {
	if dest == nil {
		dest = make(map[string]struct{})
	}
	visited := make(map[string]struct{})
	cur := roleID
	for cur != "" {
		if _, seen := visited[cur]; seen {
			return nil, fmt.Errorf("%w: cycle through %s while resolving %s", ErrInvariantViolation, cur, roleID)
		}
		visited[cur] = struct{}{}
		role, ok := e.roles[cur]
		if !ok {
			// Dangling reference: contributes nothing.
			break
		}
		for permID := range e.rolePerms[cur] {
			dest[permID] = struct{}{}
		}
		cur = role.ParentID
	}
	return dest, nil
}

// failClosed logs a resolution failure loudly. The caller has already
// translated it into a denied check.
func (e *Engine) failClosed(userID string, err error) {
	e.logger.Error("authz resolution failed, denying check",
		slog.String("user_id", userID),
		slog.Any("error", err))
}

// sortedPermissions materializes a permission set as records ordered by id.
// Ids without a registry entry (possible after a lossy restore) are skipped.
func (e *Engine) sortedPermissions(ids []string) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := e.perms[id]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DescribePermissions resolves permission ids into full records for
// read-only projections.
func (e *Engine) DescribePermissions(ids []string) []Permission {
	return e.sortedPermissions(ids)
}
