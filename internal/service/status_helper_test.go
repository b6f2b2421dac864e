package service

import (
	"catalog-validation/internal/model"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHelperLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	helper := h.service.StatusHelper

	created, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, created.Status)
	assert.False(t, created.Finished.Valid)

	_, err = helper.CreateJob(ctx, "res-1")
	assert.ErrorIs(t, err, ErrJobAlreadyEnqueued)

	running, err := helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, running.Status)
	assert.False(t, running.Finished.Valid)

	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{})
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	report := validReport("https://data.example.com/res-1.csv")
	done, err := helper.UpdateJobStatus(ctx, "res-1", model.StatusSuccess, StatusUpdate{Report: report})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, done.Status)
	assert.True(t, done.Finished.Valid)

	stored := h.record(t, "res-1")
	assert.Equal(t, model.StatusSuccess, stored.Status)
	assert.True(t, stored.Finished.Valid)
	assert.Empty(t, stored.Error)
	got, err := stored.DecodeReport()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Valid)

	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusFailure, StatusUpdate{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reset, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, reset.ID)
	assert.Equal(t, model.StatusCreated, reset.Status)

	stored = h.record(t, "res-1")
	assert.Equal(t, model.StatusCreated, stored.Status)
	assert.False(t, stored.Finished.Valid)
	assert.Empty(t, stored.Report)
	assert.Empty(t, stored.Error)
}

func TestStatusHelperErrorPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	helper := h.service.StatusHelper

	_, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)
	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusError, StatusUpdate{
		Report: validReport("x"),
	})
	require.NoError(t, err)

	stored := h.record(t, "res-1")
	assert.Equal(t, model.StatusError, stored.Status)
	assert.Empty(t, stored.Report)
	payload, err := stored.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, []string{defaultErrorMessage}, payload.Message)
}

func TestStatusHelperMissingRecord(t *testing.T) {
	ctx := context.Background()
	helper := newHarness(t).service.StatusHelper

	_, err := helper.UpdateJobStatus(ctx, "missing", model.StatusRunning, StatusUpdate{})
	assert.ErrorIs(t, err, ErrJobDoesNotExist)

	_, err = helper.UpdateJobStatus(ctx, "missing", model.ValidationStatus("pending"), StatusUpdate{})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	v, err := helper.GetJob(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	err = helper.DeleteJob(ctx, &model.Validation{ID: "nope"})
	assert.ErrorIs(t, err, ErrJobDoesNotExist)
}

func TestStatusHelperRejectsResultOfSupersededRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	helper := h.service.StatusHelper

	_, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)
	first, err := helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{})
	require.NoError(t, err)
	stale := *first

	// the first run finishes and a new run is requested
	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusSuccess, StatusUpdate{Report: validReport("x"), Record: first})
	require.NoError(t, err)
	_, err = helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)

	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusFailure, StatusUpdate{Record: &stale})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StatusCreated, h.record(t, "res-1").Status)
}

func TestStatusHelperTransitionOfDeletedRecord(t *testing.T) {
	ctx := context.Background()
	helper := newHarness(t).service.StatusHelper

	created, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)
	stale := *created
	require.NoError(t, helper.DeleteJob(ctx, created))

	_, err = helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{Record: &stale})
	assert.ErrorIs(t, err, ErrJobDoesNotExist)
}

func TestStatusHelperDeleteResourceJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	helper := h.service.StatusHelper

	_, err := helper.MarkSuccess(ctx, "res-1", validReport("x"))
	require.NoError(t, err)
	_, err = helper.CreateJob(ctx, "res-2")
	require.NoError(t, err)

	deleted, err := helper.DeleteResourceJobs(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Nil(t, h.record(t, "res-1"))
	assert.NotNil(t, h.record(t, "res-2"))

	deleted, err = helper.DeleteResourceJobs(ctx, "res-1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStatusHelperConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	helper := newHarness(t).service.StatusHelper

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		enqueued int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := helper.CreateJob(ctx, "res-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, ErrJobAlreadyEnqueued):
				enqueued++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, callers-1, enqueued)
}

func TestStatusHelperConcurrentStartHasOneWinner(t *testing.T) {
	ctx := context.Background()
	helper := newHarness(t).service.StatusHelper
	_, err := helper.CreateJob(ctx, "res-1")
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		running int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := helper.UpdateJobStatus(ctx, "res-1", model.StatusRunning, StatusUpdate{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, ErrJobAlreadyRunning):
				running++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, callers-1, running)
}

func TestStatusHelperMarkSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	v, err := h.service.StatusHelper.MarkSuccess(ctx, "res-1", validReport("x"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, v.Status)

	stored := h.record(t, "res-1")
	assert.Equal(t, model.StatusSuccess, stored.Status)
	assert.True(t, stored.Finished.Valid)

	// a second inline success reuses the record
	again, err := h.service.StatusHelper.MarkSuccess(ctx, "res-1", validReport("x"))
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID)
}
