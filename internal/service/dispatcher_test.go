package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/internal/queue"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchAsyncEnqueuesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	resource := csvResource("res-1")

	require.NoError(t, h.service.Dispatcher.Dispatch(ctx, resource, config.ModeAsync))
	require.NoError(t, h.service.Dispatcher.Dispatch(ctx, resource, config.ModeAsync))

	assert.Equal(t, int64(1), h.queued(t))
	assert.Equal(t, model.StatusCreated, h.record(t, "res-1").Status)

	job, err := h.queue.Dequeue(ctx, queue.DefaultQueue, time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobRunValidation, job.Name)
	assert.Equal(t, "run_validation_job: package_id: pkg-1 resource: res-1", job.Title)
	assert.Equal(t, map[string]string{"resource_id": "res-1"}, job.Args)
	assert.Equal(t, 24*time.Hour, job.TTL)
	assert.Equal(t, 24*time.Hour, job.FailureTTL)
}

func TestDispatchSyncRejectsInvalidData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.results = []func(engineCall) (*model.Report, error){
		returning(reportWithErrors("x", model.ReportError{Type: "type-error", Message: "bad"}), nil),
	}
	resource := csvResource("res-1")
	resource.Schema = json.RawMessage(`{"fields":[{"name":"a","type":"integer"}]}`)

	err := h.service.Dispatcher.Dispatch(ctx, resource, config.ModeSync)
	var failed *ValidationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, model.StatusFailure, failed.Status)
	require.NotNil(t, failed.Report)
	assert.False(t, failed.Report.Valid)
	assert.Nil(t, h.record(t, "res-1"))
}

func TestDispatchSyncRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	resource := csvResource("res-1")
	resource.Schema = json.RawMessage(`{"fields":[{"name":"a"}]}`)

	require.NoError(t, h.service.Dispatcher.Dispatch(ctx, resource, config.ModeSync))
	stored := h.record(t, "res-1")
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusSuccess, stored.Status)
	assert.Zero(t, h.queued(t))
}

func TestDispatchSyncWithoutSchemaDropsRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.service.StatusHelper.MarkSuccess(ctx, "res-1", validReport("x"))
	require.NoError(t, err)

	require.NoError(t, h.service.Dispatcher.Dispatch(ctx, csvResource("res-1"), config.ModeSync))
	assert.Nil(t, h.record(t, "res-1"))
	assert.Zero(t, h.engine.callCount())
}

func TestDispatchUnknownMode(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.service.Dispatcher.Dispatch(context.Background(), csvResource("res-1"), "later"))
}
