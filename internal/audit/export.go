package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

// CSVExporter renders timeline rows as CSV for download.
type CSVExporter struct{}

// NewCSVExporter returns a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// WriteCSV encodes the rows with a header line, timestamps in RFC 3339.
func (e *CSVExporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"event_id", "action", "role_id", "permission_id", "subject_id", "occurred_at"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.EventID,
			row.Action,
			row.RoleID,
			row.PermissionID,
			row.SubjectID,
			row.At.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
