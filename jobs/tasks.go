// Package jobs wires the asynq queue used to drain audit events off the
// mutation path and to run periodic maintenance.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-authz/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditExport delivers one authorization audit event for
	// persistence.
	TaskTypeAuditExport = "audit:export"
	// TaskTypeAuditPrune trims aged audit rows; scheduled via cron.
	TaskTypeAuditPrune = "audit:prune"
)

// AuditPrunePayload bounds the retention window for a prune run.
type AuditPrunePayload struct {
	RetainDays int `json:"retain_days"`
}

// NewAuditExportTask constructs a task carrying one audit event.
func NewAuditExportTask(ev audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditExport, data), nil
}

// NewAuditPruneTask constructs the scheduled prune task.
func NewAuditPruneTask(retainDays int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{RetainDays: retainDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditPrune, data), nil
}

// AuditRecorder persists drained events; satisfied by audit.Store.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event) error
}

// AuditPruner trims aged audit rows; satisfied by audit.Store.
type AuditPruner interface {
	Prune(ctx context.Context, retainDays int) (int64, error)
}

// NewAuditExportHandler returns the asynq handler for TaskTypeAuditExport.
// Malformed payloads are dropped without retry; storage failures are
// retried by the queue.
func NewAuditExportHandler(store AuditRecorder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev audit.Event
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			logger.Warn("audit export payload malformed", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := store.Record(ctx, ev); err != nil {
			logger.Error("audit export record", slog.String("event_id", ev.ID), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// NewAuditPruneHandler returns the asynq handler for TaskTypeAuditPrune.
func NewAuditPruneHandler(store AuditPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		deleted, err := store.Prune(ctx, payload.RetainDays)
		if err != nil {
			logger.Error("audit prune", slog.Any("error", err))
			return err
		}
		logger.Info("audit prune complete", slog.Int64("deleted", deleted))
		return nil
	}
}
