package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TimelineQuery is the repository-level parameter set. Invalid optional
// fields mean "no filter".
type TimelineQuery struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Action     pgtype.Text
	RoleID     pgtype.Text
	SubjectID  pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository provides the audit log queries; satisfied by Store.
type Repository interface {
	TimelineWindow(ctx context.Context, q TimelineQuery) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, q TimelineQuery) ([]TimelineRow, error)
}

// Result wraps one timeline page with its paging info.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service coordinates audit log reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of audit events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	q := s.query(filters)
	q.OffsetRows = int32(offset)
	// Fetch one extra row to learn whether a next page exists.
	q.LimitRows = int32(pageSize + 1)
	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches every matching event without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, s.query(filters))
}

func (s *Service) query(filters TimelineFilters) TimelineQuery {
	to := filters.To
	if !to.IsZero() {
		// To is an inclusive date; the repository bound is exclusive.
		to = to.Add(24 * time.Hour)
	}
	return TimelineQuery{
		FromAt:    toPgTime(filters.From),
		ToAt:      toPgTime(to),
		Action:    optionalText(filters.Action),
		RoleID:    optionalText(filters.RoleID),
		SubjectID: optionalText(filters.SubjectID),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
