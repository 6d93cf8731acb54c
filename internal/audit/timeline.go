package audit

import "time"

// TimelineFilters bounds a query over the persisted audit log. From and To
// are dates; To is inclusive.
type TimelineFilters struct {
	From      time.Time
	To        time.Time
	Action    string
	RoleID    string
	SubjectID string
	Page      int
	PageSize  int
}

// TimelineRow is one persisted audit event.
type TimelineRow struct {
	EventID      string    `json:"event_id"`
	Action       string    `json:"action"`
	RoleID       string    `json:"role_id,omitempty"`
	PermissionID string    `json:"permission_id,omitempty"`
	SubjectID    string    `json:"subject_id,omitempty"`
	At           time.Time `json:"at"`
}

// PagingInfo carries pagination metadata for timeline pages.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
