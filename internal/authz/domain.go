// Package authz implements the role-permission authorization engine: an
// in-memory role hierarchy with single inheritance, direct permission
// grants, and fail-closed permission resolution.
package authz

import "time"

// Permission represents an atomic capability.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	UsageCount  int64     `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role represents a named authorization bucket. A role optionally descends
// from exactly one parent role and inherits every permission reachable
// through its ancestor chain.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Level       int       `json:"level"`
	ParentID    string    `json:"parent_id,omitempty"`
	IsSystem    bool      `json:"is_system"`
	UsageCount  int64     `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role level bounds. Levels order roles for display only; they carry no
// weight during permission checks.
const (
	MinRoleLevel     = 1
	MaxRoleLevel     = 1000
	DefaultRoleLevel = 500
)

// Statistics aggregates store counts for observability.
type Statistics struct {
	TotalRoles            int     `json:"total_roles"`
	SystemRoles           int     `json:"system_roles"`
	CustomRoles           int     `json:"custom_roles"`
	TotalPermissions      int     `json:"total_permissions"`
	SystemPermissions     int     `json:"system_permissions"`
	CustomPermissions     int     `json:"custom_permissions"`
	RoleAssignments       int     `json:"role_assignments"`
	AvgPermissionsPerRole float64 `json:"avg_permissions_per_role"`
}

// Snapshot is a serializable copy of the three stores, used by the external
// persistence collaborator to save and restore engine state.
type Snapshot struct {
	Permissions     []Permission        `json:"permissions"`
	Roles           []Role              `json:"roles"`
	RolePermissions map[string][]string `json:"role_permissions"`
	UserRoles       map[string][]string `json:"user_roles"`
}
