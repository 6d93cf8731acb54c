// Package snapshot persists and restores the authorization engine state.
// The engine itself never touches storage; this collaborator serializes the
// three stores into Postgres and loads them back before first use.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-authz/internal/authz"
	"github.com/atlas-erp/atlas-authz/internal/platform/db"
)

// Store reads and writes engine snapshots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save replaces the persisted snapshot with snap in a single transaction.
func (s *Store) Save(ctx context.Context, snap authz.Snapshot) error {
	if s == nil || s.pool == nil {
		return errors.New("snapshot: store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"authz_user_roles", "authz_role_permissions", "authz_roles", "authz_permissions"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("snapshot: clear %s: %w", table, err)
			}
		}
		for _, p := range snap.Permissions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO authz_permissions (id, name, category, description, is_system, usage_count, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				p.ID, p.Name, p.Category, p.Description, p.IsSystem, p.UsageCount, p.CreatedAt); err != nil {
				return fmt.Errorf("snapshot: insert permission %s: %w", p.ID, err)
			}
		}
		for _, r := range snap.Roles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO authz_roles (id, name, description, level, parent_id, is_system, usage_count, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`,
				r.ID, r.Name, r.Description, r.Level, r.ParentID, r.IsSystem, r.UsageCount, r.CreatedAt, r.UpdatedAt); err != nil {
				return fmt.Errorf("snapshot: insert role %s: %w", r.ID, err)
			}
		}
		for roleID, permIDs := range snap.RolePermissions {
			for _, permID := range permIDs {
				if _, err := tx.Exec(ctx,
					`INSERT INTO authz_role_permissions (role_id, permission_id) VALUES ($1, $2)`,
					roleID, permID); err != nil {
					return fmt.Errorf("snapshot: insert grant %s/%s: %w", roleID, permID, err)
				}
			}
		}
		for userID, roleIDs := range snap.UserRoles {
			for _, roleID := range roleIDs {
				if _, err := tx.Exec(ctx,
					`INSERT INTO authz_user_roles (user_id, role_id) VALUES ($1, $2)`,
					userID, roleID); err != nil {
					return fmt.Errorf("snapshot: insert assignment %s/%s: %w", userID, roleID, err)
				}
			}
		}
		return nil
	})
}

// Load reads the persisted snapshot. The boolean reports whether any state
// was found; a fresh database yields (zero, false, nil) so callers keep the
// bootstrap seed.
func (s *Store) Load(ctx context.Context) (authz.Snapshot, bool, error) {
	if s == nil || s.pool == nil {
		return authz.Snapshot{}, false, errors.New("snapshot: store not initialised")
	}
	snap := authz.Snapshot{
		RolePermissions: make(map[string][]string),
		UserRoles:       make(map[string][]string),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, description, is_system, usage_count, created_at FROM authz_permissions ORDER BY id`)
	if err != nil {
		return authz.Snapshot{}, false, fmt.Errorf("snapshot: load permissions: %w", err)
	}
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.IsSystem, &p.UsageCount, &p.CreatedAt); err != nil {
			rows.Close()
			return authz.Snapshot{}, false, fmt.Errorf("snapshot: scan permission: %w", err)
		}
		snap.Permissions = append(snap.Permissions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return authz.Snapshot{}, false, err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, name, description, level, COALESCE(parent_id, ''), is_system, usage_count, created_at, updated_at FROM authz_roles ORDER BY id`)
	if err != nil {
		return authz.Snapshot{}, false, fmt.Errorf("snapshot: load roles: %w", err)
	}
	for rows.Next() {
		var r authz.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Level, &r.ParentID, &r.IsSystem, &r.UsageCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			rows.Close()
			return authz.Snapshot{}, false, fmt.Errorf("snapshot: scan role: %w", err)
		}
		snap.Roles = append(snap.Roles, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return authz.Snapshot{}, false, err
	}

	rows, err = s.pool.Query(ctx, `SELECT role_id, permission_id FROM authz_role_permissions`)
	if err != nil {
		return authz.Snapshot{}, false, fmt.Errorf("snapshot: load grants: %w", err)
	}
	for rows.Next() {
		var roleID, permID string
		if err := rows.Scan(&roleID, &permID); err != nil {
			rows.Close()
			return authz.Snapshot{}, false, fmt.Errorf("snapshot: scan grant: %w", err)
		}
		snap.RolePermissions[roleID] = append(snap.RolePermissions[roleID], permID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return authz.Snapshot{}, false, err
	}

	rows, err = s.pool.Query(ctx, `SELECT user_id, role_id FROM authz_user_roles`)
	if err != nil {
		return authz.Snapshot{}, false, fmt.Errorf("snapshot: load assignments: %w", err)
	}
	for rows.Next() {
		var userID, roleID string
		if err := rows.Scan(&userID, &roleID); err != nil {
			rows.Close()
			return authz.Snapshot{}, false, fmt.Errorf("snapshot: scan assignment: %w", err)
		}
		snap.UserRoles[userID] = append(snap.UserRoles[userID], roleID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return authz.Snapshot{}, false, err
	}

	return snap, len(snap.Permissions) > 0 || len(snap.Roles) > 0, nil
}
