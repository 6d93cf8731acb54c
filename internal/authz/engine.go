package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-erp/atlas-authz/internal/audit"
)

// Engine owns the permission registry, the role registry, and the
// role-permission / user-role assignment stores. All state is in memory;
// a single RWMutex serializes mutations against resolution queries.
//
// Hosts construct one Engine and pass it to every consumer. Persistence is
// an external concern: collaborators snapshot and restore the stores through
// Export and Restore.
type Engine struct {
	mu     sync.RWMutex
	logger *slog.Logger
	sink   audit.Sink

	perms     map[string]*Permission
	roles     map[string]*Role
	rolePerms map[string]map[string]struct{}
	userRoles map[string]map[string]struct{}

	now func() time.Time
}

// NewEngine constructs an Engine seeded with the system role chain and the
// system permission catalog. The sink receives one event per successful
// mutation; pass nil to disable auditing.
func NewEngine(logger *slog.Logger, sink audit.Sink) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:    logger,
		sink:      sink,
		perms:     make(map[string]*Permission),
		roles:     make(map[string]*Role),
		rolePerms: make(map[string]map[string]struct{}),
		userRoles: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
	e.bootstrap()
	return e
}

// CreatePermission registers a custom permission. The identifier is derived
// from the category and the normalized name.
func (e *Engine) CreatePermission(ctx context.Context, name, category, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", ErrInvalidArgument)
	}
	if category == "" {
		return Permission{}, fmt.Errorf("%w: permission category required", ErrInvalidArgument)
	}
	id := PermissionID(category, name)

	e.mu.Lock()
	if _, exists := e.perms[id]; exists {
		e.mu.Unlock()
		return Permission{}, fmt.Errorf("%w: %s", ErrDuplicatePermission, id)
	}
	perm := &Permission{
		ID:          id,
		Name:        name,
		Category:    slugify(category, "_"),
		Description: strings.TrimSpace(description),
		CreatedAt:   e.now().UTC(),
	}
	e.perms[id] = perm
	created := *perm
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionPermissionCreated)
	ev.PermissionID = id
	e.emit(ctx, ev)
	return created, nil
}

// GetPermission looks up a permission by id.
func (e *Engine) GetPermission(id string) (Permission, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	perm, ok := e.perms[id]
	if !ok {
		return Permission{}, false
	}
	return *perm, true
}

// ListPermissions returns every registered permission ordered by id.
func (e *Engine) ListPermissions() []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Permission, 0, len(e.perms))
	for _, p := range e.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateRole registers a custom role. A non-empty parentID must resolve to
// an existing role; the prospective ancestor chain is checked so the
// hierarchy stays acyclic by construction.
func (e *Engine) CreateRole(ctx context.Context, name, description string, level int, parentID string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidArgument)
	}
	if level == 0 {
		level = DefaultRoleLevel
	}
	if level < MinRoleLevel || level > MaxRoleLevel {
		return Role{}, fmt.Errorf("%w: role level %d outside [%d,%d]", ErrInvalidArgument, level, MinRoleLevel, MaxRoleLevel)
	}
	id := RoleID(name)

	e.mu.Lock()
	if _, exists := e.roles[id]; exists {
		e.mu.Unlock()
		return Role{}, fmt.Errorf("%w: %s", ErrDuplicateRole, id)
	}
	if parentID != "" {
		if _, ok := e.roles[parentID]; !ok {
			e.mu.Unlock()
			return Role{}, fmt.Errorf("%w: parent %s", ErrRoleNotFound, parentID)
		}
		if err := e.checkAncestryLocked(id, parentID); err != nil {
			e.mu.Unlock()
			return Role{}, err
		}
	}
	nowUTC := e.now().UTC()
	role := &Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Level:       level,
		ParentID:    parentID,
		CreatedAt:   nowUTC,
		UpdatedAt:   nowUTC,
	}
	e.roles[id] = role
	e.rolePerms[id] = make(map[string]struct{})
	created := *role
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionRoleCreated)
	ev.RoleID = id
	if parentID != "" {
		ev.Meta = map[string]any{"parent_id": parentID}
	}
	e.emit(ctx, ev)
	return created, nil
}

// ReparentRole moves a custom role under a new parent, or detaches it when
// newParentID is empty. System roles cannot be reparented.
func (e *Engine) ReparentRole(ctx context.Context, roleID, newParentID string) (Role, error) {
	if roleID == newParentID && roleID != "" {
		return Role{}, fmt.Errorf("%w: role cannot parent itself", ErrCycleDetected)
	}

	e.mu.Lock()
	role, ok := e.roles[roleID]
	if !ok {
		e.mu.Unlock()
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if role.IsSystem {
		e.mu.Unlock()
		return Role{}, fmt.Errorf("%w: %s", ErrSystemRoleImmutable, roleID)
	}
	if newParentID != "" {
		if _, ok := e.roles[newParentID]; !ok {
			e.mu.Unlock()
			return Role{}, fmt.Errorf("%w: parent %s", ErrRoleNotFound, newParentID)
		}
		if err := e.checkAncestryLocked(roleID, newParentID); err != nil {
			e.mu.Unlock()
			return Role{}, err
		}
	}
	previous := role.ParentID
	role.ParentID = newParentID
	role.UpdatedAt = e.now().UTC()
	updated := *role
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionRoleReparented)
	ev.RoleID = roleID
	ev.Meta = map[string]any{"previous_parent_id": previous, "parent_id": newParentID}
	e.emit(ctx, ev)
	return updated, nil
}

// GetRole looks up a role by id.
func (e *Engine) GetRole(id string) (Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	role, ok := e.roles[id]
	if !ok {
		return Role{}, false
	}
	return *role, true
}

// ListRoles returns every role ordered by level descending, then id.
func (e *Engine) ListRoles() []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Role, 0, len(e.roles))
	for _, r := range e.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AssignPermissionToRole adds a direct grant. Re-granting an existing pair
// is a no-op success. System roles reject mutation.
func (e *Engine) AssignPermissionToRole(ctx context.Context, roleID, permID string) error {
	e.mu.Lock()
	role, ok := e.roles[roleID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	perm, ok := e.perms[permID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPermissionNotFound, permID)
	}
	if role.IsSystem {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSystemRoleImmutable, roleID)
	}
	grants := e.rolePerms[roleID]
	if grants == nil {
		grants = make(map[string]struct{})
		e.rolePerms[roleID] = grants
	}
	if _, already := grants[permID]; already {
		e.mu.Unlock()
		return nil
	}
	grants[permID] = struct{}{}
	perm.UsageCount++
	role.UpdatedAt = e.now().UTC()
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionPermissionGranted)
	ev.RoleID = roleID
	ev.PermissionID = permID
	e.emit(ctx, ev)
	return nil
}

// RemovePermissionFromRole removes a direct grant. Removing an absent pair
// is a no-op success.
func (e *Engine) RemovePermissionFromRole(ctx context.Context, roleID, permID string) error {
	e.mu.Lock()
	role, ok := e.roles[roleID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if role.IsSystem {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSystemRoleImmutable, roleID)
	}
	grants := e.rolePerms[roleID]
	if _, present := grants[permID]; !present {
		e.mu.Unlock()
		return nil
	}
	delete(grants, permID)
	role.UpdatedAt = e.now().UTC()
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionPermissionRevoked)
	ev.RoleID = roleID
	ev.PermissionID = permID
	e.emit(ctx, ev)
	return nil
}

// AssignRoleToUser grants a role to a subject. Idempotent.
func (e *Engine) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidArgument)
	}

	e.mu.Lock()
	role, ok := e.roles[roleID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	held := e.userRoles[userID]
	if held == nil {
		held = make(map[string]struct{})
		e.userRoles[userID] = held
	}
	if _, already := held[roleID]; already {
		e.mu.Unlock()
		return nil
	}
	held[roleID] = struct{}{}
	role.UsageCount++
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionRoleAssigned)
	ev.RoleID = roleID
	ev.SubjectID = userID
	e.emit(ctx, ev)
	return nil
}

// RemoveRoleFromUser revokes a role from a subject. Removing an absent
// assignment is a no-op success, even for unknown role or user ids, since
// the caller may be cleaning up stale references.
func (e *Engine) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	e.mu.Lock()
	held, ok := e.userRoles[userID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	if _, present := held[roleID]; !present {
		e.mu.Unlock()
		return nil
	}
	delete(held, roleID)
	if len(held) == 0 {
		delete(e.userRoles, userID)
	}
	e.mu.Unlock()

	ev := audit.NewEvent(audit.ActionRoleRemoved)
	ev.RoleID = roleID
	ev.SubjectID = userID
	e.emit(ctx, ev)
	return nil
}

// GetUserRoles returns the roles directly held by the subject. Roles whose
// records have vanished (stale ids after a restore) are skipped.
func (e *Engine) GetUserRoles(userID string) []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	held := e.userRoles[userID]
	out := make([]Role, 0, len(held))
	for id := range held {
		if role, ok := e.roles[id]; ok {
			out = append(out, *role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetRolePermissions returns the permission ids granted directly to the
// role, excluding inherited grants.
func (e *Engine) GetRolePermissions(roleID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedKeys(e.rolePerms[roleID])
}

// GetUsersWithRole returns every subject directly holding the role.
func (e *Engine) GetUsersWithRole(roleID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0)
	for userID, held := range e.userRoles {
		if _, ok := held[roleID]; ok {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}

// Statistics derives aggregate counts over the three stores.
func (e *Engine) Statistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var stats Statistics
	stats.TotalRoles = len(e.roles)
	for _, r := range e.roles {
		if r.IsSystem {
			stats.SystemRoles++
		}
	}
	stats.CustomRoles = stats.TotalRoles - stats.SystemRoles
	stats.TotalPermissions = len(e.perms)
	for _, p := range e.perms {
		if p.IsSystem {
			stats.SystemPermissions++
		}
	}
	stats.CustomPermissions = stats.TotalPermissions - stats.SystemPermissions
	for _, held := range e.userRoles {
		stats.RoleAssignments += len(held)
	}
	if stats.TotalRoles > 0 {
		grants := 0
		for _, set := range e.rolePerms {
			grants += len(set)
		}
		stats.AvgPermissionsPerRole = float64(grants) / float64(stats.TotalRoles)
	}
	return stats
}

// checkAncestryLocked walks the ancestor chain starting at parentID and
// rejects the link if roleID already appears in it. Callers hold e.mu.
func (e *Engine) checkAncestryLocked(roleID, parentID string) error {
	visited := make(map[string]struct{})
	cur := parentID
	for cur != "" {
		if cur == roleID {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycleDetected, roleID, parentID)
		}
		if _, seen := visited[cur]; seen {
			return fmt.Errorf("%w: pre-existing cycle at %s", ErrInvariantViolation, cur)
		}
		visited[cur] = struct{}{}
		parent, ok := e.roles[cur]
		if !ok {
			return nil
		}
		cur = parent.ParentID
	}
	return nil
}

// emit delivers an audit event. Sink failures are logged and never surface
// to the caller: audit delivery must not roll back a committed mutation.
func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Record(ctx, ev); err != nil {
		e.logger.Warn("audit sink record",
			slog.String("action", ev.Action),
			slog.Any("error", err))
	}
}

// Event re-exports the audit event type for engine consumers.
type Event = audit.Event

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
