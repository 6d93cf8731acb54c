package authz

import "errors"

// Sentinel errors surfaced by mutation operations. Query operations never
// propagate errors; internal failures there resolve to a denied check.
var (
	ErrInvalidArgument     = errors.New("authz: invalid argument")
	ErrDuplicatePermission = errors.New("authz: duplicate permission")
	ErrDuplicateRole       = errors.New("authz: duplicate role")
	ErrRoleNotFound        = errors.New("authz: role not found")
	ErrPermissionNotFound  = errors.New("authz: permission not found")
	ErrSystemRoleImmutable = errors.New("authz: system role immutable")
	ErrCycleDetected       = errors.New("authz: role hierarchy cycle")
	ErrInvariantViolation  = errors.New("authz: invariant violation")
)
