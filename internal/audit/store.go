package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists drained audit events into authz_audit_log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts the event. Re-delivery of an already stored event id is a
// no-op so the queue consumer stays idempotent.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: store not initialised")
	}
	if ev.ID == "" || ev.Action == "" {
		return errors.New("audit: event requires id and action")
	}
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO authz_audit_log (event_id, action, role_id, permission_id, subject_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Action, ev.RoleID, ev.PermissionID, ev.SubjectID, metaJSON, ev.At)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Prune removes audit rows older than the cutoff and reports how many were
// deleted.
func (s *Store) Prune(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("audit: store not initialised")
	}
	if retainDays <= 0 {
		retainDays = 90
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM authz_audit_log WHERE occurred_at < NOW() - ($1 * INTERVAL '1 day')`,
		retainDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const timelineBaseQuery = `
SELECT event_id, action, role_id, permission_id, subject_id, occurred_at
FROM authz_audit_log
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR action = $3)
  AND ($4::text IS NULL OR role_id = $4)
  AND ($5::text IS NULL OR subject_id = $5)
ORDER BY occurred_at DESC, event_id`

// TimelineWindow returns one page of matching events, newest first.
func (s *Store) TimelineWindow(ctx context.Context, q TimelineQuery) ([]TimelineRow, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("audit: store not initialised")
	}
	rows, err := s.pool.Query(ctx, timelineBaseQuery+`
OFFSET $6 LIMIT $7`,
		q.FromAt, q.ToAt, q.Action, q.RoleID, q.SubjectID, q.OffsetRows, q.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineRows(rows)
}

// TimelineAll returns every matching event without paging.
func (s *Store) TimelineAll(ctx context.Context, q TimelineQuery) ([]TimelineRow, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("audit: store not initialised")
	}
	rows, err := s.pool.Query(ctx, timelineBaseQuery,
		q.FromAt, q.ToAt, q.Action, q.RoleID, q.SubjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineRows(rows)
}

func scanTimelineRows(rows pgx.Rows) ([]TimelineRow, error) {
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.EventID, &row.Action, &row.RoleID, &row.PermissionID, &row.SubjectID, &row.At); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
