package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sentinel/internal/messaging"
	"sentinel/internal/models"
	"sentinel/internal/quota"
	"sentinel/pkg/apperrors"
)

func newTestScanService(jobDao *fakeJobDAO, gate *quota.Gate) *scanService {
	return NewScanService(jobDao, gate).(*scanService)
}

func TestCreateScan(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)

	job, err := svc.CreateScan(context.Background(), CreateScanRequest{
		Type:       "STATIC",
		TargetRepo: "org/repo",
		GitToken:   "secret-token",
	}, "tenant-1", "user-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, models.TypeStatic, job.Type)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NotEmpty(t, job.ID)

	// Exactly one scan-requested event is queued, carrying the job ID.
	if assert.Len(t, jobDao.outbox, 1) {
		entry := jobDao.outbox[0]
		assert.Equal(t, messaging.KeyScanRequested, entry.RoutingKey)

		var env messaging.Envelope
		assert.NoError(t, json.Unmarshal(entry.Body, &env))
		assert.Equal(t, messaging.EventScanRequested, env.EventType)

		var payload messaging.ScanRequested
		assert.NoError(t, env.Decode(&payload))
		assert.Equal(t, job.ID, payload.ScanID)
		assert.Equal(t, models.TypeStatic, payload.RequestedService)
		assert.Equal(t, "org/repo", payload.TargetRepo)
		assert.Equal(t, "tenant-1", payload.TenantID)
		assert.Equal(t, "secret-token", payload.ClientGitToken)
	}
}

func TestCreateScanValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateScanRequest
	}{
		{"missing type", CreateScanRequest{TargetRepo: "org/repo"}},
		{"unknown type", CreateScanRequest{Type: "QUANTUM", TargetRepo: "org/repo"}},
		{"missing target", CreateScanRequest{Type: "REPO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobDao := newFakeJobDAO()
			svc := newTestScanService(jobDao, nil)

			_, err := svc.CreateScan(context.Background(), tt.req, "tenant-1", "user-1")
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Empty(t, jobDao.outbox, "no event should be queued on validation failure")
		})
	}
}

func TestCreateScanQuotaDenied(t *testing.T) {
	jobDao := newFakeJobDAO()
	gate := quota.NewGate(quota.StaticLimitsSource{Limits: quota.PlanLimits{MaxScansPerMonth: 1}})
	svc := newTestScanService(jobDao, gate)

	_, err := svc.CreateScan(context.Background(), CreateScanRequest{Type: "STATIC", TargetURL: "https://a"}, "tenant-1", "user-1")
	assert.NoError(t, err)

	_, err = svc.CreateScan(context.Background(), CreateScanRequest{Type: "STATIC", TargetURL: "https://b"}, "tenant-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)

	// A different tenant has its own counter.
	_, err = svc.CreateScan(context.Background(), CreateScanRequest{Type: "STATIC", TargetURL: "https://c"}, "tenant-2", "user-1")
	assert.NoError(t, err)
}

type failingLimitsSource struct{}

func (failingLimitsSource) TenantLimits(ctx context.Context, tenantID string) (quota.PlanLimits, error) {
	return quota.PlanLimits{}, errors.New("tenant service down")
}

func TestCreateScanQuotaFailsOpen(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, quota.NewGate(failingLimitsSource{}))

	_, err := svc.CreateScan(context.Background(), CreateScanRequest{Type: "STATIC", TargetURL: "https://a"}, "tenant-1", "user-1")
	assert.NoError(t, err)
}

func TestGetScanNotFound(t *testing.T) {
	svc := newTestScanService(newFakeJobDAO(), nil)

	_, err := svc.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApplyStatusLifecycle(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, err := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")
	assert.NoError(t, err)

	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusRunning, ""))
	stored := jobDao.job(job.ID)
	assert.Equal(t, models.StatusRunning, stored.Status)
	assert.NotNil(t, stored.StartedAt)

	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusCompleted, ""))
	stored = jobDao.job(job.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

func TestApplyStatusIdempotent(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")

	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusCompleted, ""))
	first := *jobDao.job(job.ID)

	// Replaying the same terminal event leaves the job untouched.
	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusCompleted, ""))
	assert.Equal(t, first, *jobDao.job(job.ID))

	// A reordered RUNNING after COMPLETED is ignored, not an error.
	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusRunning, ""))
	assert.Equal(t, models.StatusCompleted, jobDao.job(job.ID).Status)
	assert.Nil(t, jobDao.job(job.ID).StartedAt)
}

func TestCancel(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "DOMAIN", TargetURL: "https://example.com"}, "tenant-1", "user-1")

	assert.NoError(t, svc.Cancel(ctx, job.ID))
	stored := jobDao.job(job.ID)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	assert.ErrorIs(t, svc.Cancel(ctx, job.ID), apperrors.ErrConflict)
}

func TestHandleStatusEvent(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")

	env, err := messaging.NewEnvelope(messaging.EventScanProgress, messaging.ScanStatusChanged{
		ScanID: job.ID,
		Status: "RUNNING",
	})
	assert.NoError(t, err)
	body, _ := env.Marshal()

	assert.NoError(t, svc.HandleStatusEvent(ctx, messaging.Delivery{RoutingKey: "scan.progress.static", Body: body}))
	assert.Equal(t, models.StatusRunning, jobDao.job(job.ID).Status)
}

func TestHandleStatusEventLegacyFlatShape(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")

	body := []byte(`{"scanId":"` + job.ID + `","status":"FAILED","reason":"clone failed"}`)
	assert.NoError(t, svc.HandleStatusEvent(ctx, messaging.Delivery{RoutingKey: "scan.failed.repo", Body: body}))

	stored := jobDao.job(job.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, "clone failed", stored.FailureReason)
}

func TestHandleStatusEventUnknownScanDropped(t *testing.T) {
	svc := newTestScanService(newFakeJobDAO(), nil)

	body := []byte(`{"scanId":"nope","status":"RUNNING"}`)
	// Unknown scans are logged and acked, never retried.
	assert.NoError(t, svc.HandleStatusEvent(context.Background(), messaging.Delivery{Body: body}))
}

func TestHandleStatusEventUndecodable(t *testing.T) {
	svc := newTestScanService(newFakeJobDAO(), nil)

	err := svc.HandleStatusEvent(context.Background(), messaging.Delivery{Body: []byte(`{broken`)})
	assert.Error(t, err, "undecodable bodies must engage the retry/dead-letter path")
}

func TestCompletedBeforeRunningTolerated(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")

	// Broker redelivery can reorder: COMPLETED lands first.
	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusCompleted, ""))
	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusRunning, ""))

	stored := jobDao.job(job.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

func TestApplyStatusConcurrentTerminalWins(t *testing.T) {
	jobDao := newFakeJobDAO()
	svc := newTestScanService(jobDao, nil)
	ctx := context.Background()

	job, _ := svc.CreateScan(ctx, CreateScanRequest{Type: "STATIC", TargetRepo: "org/repo"}, "tenant-1", "user-1")

	// A COMPLETED delivery lands between the RUNNING transition's read and
	// its write. The stale RUNNING must not clobber the terminal state.
	jobDao.onGet = func() {
		assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusCompleted, ""))
	}
	assert.NoError(t, svc.ApplyStatus(ctx, job.ID, models.StatusRunning, ""))

	stored := jobDao.job(job.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.Nil(t, stored.StartedAt)
}

func TestCreateScanMonthlyWindow(t *testing.T) {
	jobDao := newFakeJobDAO()
	gate := quota.NewGate(quota.StaticLimitsSource{Limits: quota.PlanLimits{MaxScansPerMonth: 1}})
	svc := newTestScanService(jobDao, gate)

	// Seed a job from a previous month; it must not count against quota.
	old := &models.ScanJob{
		ID:        "old",
		TenantID:  "tenant-1",
		UserID:    "user-1",
		Type:      models.TypeStatic,
		Status:    models.StatusCompleted,
		CreatedAt: time.Now().UTC().AddDate(0, -2, 0),
	}
	assert.NoError(t, jobDao.SaveWithOutbox(old, &models.OutboxEntry{}))
	jobDao.outbox = nil

	_, err := svc.CreateScan(context.Background(), CreateScanRequest{Type: "STATIC", TargetURL: "https://a"}, "tenant-1", "user-1")
	assert.NoError(t, err)
}
