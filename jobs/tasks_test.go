package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-authz/internal/audit"
)

type stubRecorder struct {
	events []audit.Event
	err    error
}

func (s *stubRecorder) Record(ctx context.Context, ev audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type stubPruner struct {
	retainDays int
	deleted    int64
	err        error
}

func (s *stubPruner) Prune(ctx context.Context, retainDays int) (int64, error) {
	s.retainDays = retainDays
	return s.deleted, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAuditExportTask(t *testing.T) {
	ev := audit.NewEvent(audit.ActionRoleCreated)
	ev.RoleID = "role-auditor"

	task, err := NewAuditExportTask(ev)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeAuditExport, task.Type())

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, "role-auditor", decoded.RoleID)
}

func TestAuditExportHandler(t *testing.T) {
	store := &stubRecorder{}
	handler := NewAuditExportHandler(store, discardLogger())

	ev := audit.NewEvent(audit.ActionPermissionGranted)
	task, err := NewAuditExportTask(ev)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, store.events, 1)
	assert.Equal(t, ev.ID, store.events[0].ID)
}

func TestAuditExportHandlerMalformedPayload(t *testing.T) {
	store := &stubRecorder{}
	handler := NewAuditExportHandler(store, discardLogger())

	task := asynq.NewTask(TaskTypeAuditExport, []byte("{broken"))
	err := handler(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads are dropped, not retried")
	assert.Empty(t, store.events)
}

func TestAuditExportHandlerStorageFailureRetries(t *testing.T) {
	boom := errors.New("pg down")
	handler := NewAuditExportHandler(&stubRecorder{err: boom}, discardLogger())

	task, err := NewAuditExportTask(audit.NewEvent(audit.ActionRoleAssigned))
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditPruneHandler(t *testing.T) {
	pruner := &stubPruner{deleted: 42}
	handler := NewAuditPruneHandler(pruner, discardLogger())

	task, err := NewAuditPruneTask(90)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, 90, pruner.retainDays)
}
