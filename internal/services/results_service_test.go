package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sentinel/internal/messaging"
	"sentinel/internal/models"
	"sentinel/pkg/apperrors"
)

func completedEvent(scanID string) messaging.ScanCompleted {
	return messaging.ScanCompleted{
		ScanID:   scanID,
		TenantID: "tenant-1",
		Type:     models.TypeStatic,
		Status:   models.StatusCompleted,
		Findings: []models.Finding{
			{Severity: models.SeverityCritical, Title: "sql injection"},
			{Severity: models.SeverityHigh, Title: "xss"},
			{Severity: models.SeverityHigh, Title: "open redirect"},
			{Severity: models.SeverityLow, Title: "verbose banner"},
		},
	}
}

func TestProcessScanResult(t *testing.T) {
	resultDao := newFakeResultDAO()
	orchestrator := &fakeOrchestratorClient{}
	artifacts := &fakeArtifactStore{}
	svc := NewResultsService(resultDao, orchestrator, artifacts)

	assert.NoError(t, svc.ProcessScanResult(context.Background(), completedEvent("scan-1")))

	stored, err := resultDao.GetByScanID("scan-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stored.CriticalCount)
	assert.Equal(t, 2, stored.HighCount)
	assert.Equal(t, 0, stored.MediumCount)
	assert.Equal(t, 1, stored.LowCount)
	assert.Len(t, stored.Findings, 4)
	assert.Equal(t, "reports/scan-1.json", stored.ReportKey)
	assert.False(t, stored.CompletedAt.IsZero())

	assert.Equal(t, []string{"scan-1:COMPLETED"}, orchestrator.calls)
	assert.Equal(t, []string{"reports/scan-1.json"}, artifacts.keys)
}

func TestProcessScanResultDuplicateDropped(t *testing.T) {
	resultDao := newFakeResultDAO()
	orchestrator := &fakeOrchestratorClient{}
	svc := NewResultsService(resultDao, orchestrator, nil)
	evt := completedEvent("scan-1")

	assert.NoError(t, svc.ProcessScanResult(context.Background(), evt))
	first, _ := resultDao.GetByScanID("scan-1")

	// Redelivery of the same completion must not overwrite or double count.
	evt.Findings = evt.Findings[:1]
	assert.NoError(t, svc.ProcessScanResult(context.Background(), evt))

	stored, _ := resultDao.GetByScanID("scan-1")
	assert.Equal(t, first, stored)
	assert.Equal(t, 1, orchestrator.callCount(), "no second orchestrator callback")
}

func TestProcessScanResultCallbackFailureSwallowed(t *testing.T) {
	resultDao := newFakeResultDAO()
	orchestrator := &fakeOrchestratorClient{err: errors.New("orchestrator down")}
	svc := NewResultsService(resultDao, orchestrator, nil)

	// Findings are durable; the callback is best-effort.
	assert.NoError(t, svc.ProcessScanResult(context.Background(), completedEvent("scan-1")))

	_, err := resultDao.GetByScanID("scan-1")
	assert.NoError(t, err)
}

func TestProcessScanResultArchiveFailureOnlyLosesReportKey(t *testing.T) {
	resultDao := newFakeResultDAO()
	artifacts := &fakeArtifactStore{err: errors.New("bucket gone")}
	svc := NewResultsService(resultDao, nil, artifacts)

	assert.NoError(t, svc.ProcessScanResult(context.Background(), completedEvent("scan-1")))

	stored, err := resultDao.GetByScanID("scan-1")
	assert.NoError(t, err)
	assert.Empty(t, stored.ReportKey)
}

func TestProcessScanResultHonoursReportedCompletedAt(t *testing.T) {
	resultDao := newFakeResultDAO()
	svc := NewResultsService(resultDao, nil, nil)

	completedAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	evt := completedEvent("scan-1")
	evt.CompletedAt = &completedAt

	assert.NoError(t, svc.ProcessScanResult(context.Background(), evt))

	stored, _ := resultDao.GetByScanID("scan-1")
	assert.Equal(t, completedAt, stored.CompletedAt)
}

func TestProcessScanResultWithoutScanIDDropped(t *testing.T) {
	resultDao := newFakeResultDAO()
	svc := NewResultsService(resultDao, nil, nil)

	assert.NoError(t, svc.ProcessScanResult(context.Background(), messaging.ScanCompleted{TenantID: "tenant-1"}))
	assert.Empty(t, resultDao.results)
}

func TestProcessScanResultNormalizesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status models.ScanStatus
	}{
		{"unknown status", "DONE"},
		{"empty status", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resultDao := newFakeResultDAO()
			orchestrator := &fakeOrchestratorClient{}
			svc := NewResultsService(resultDao, orchestrator, nil)

			evt := completedEvent("scan-1")
			evt.Status = tt.status

			assert.NoError(t, svc.ProcessScanResult(context.Background(), evt))

			stored, _ := resultDao.GetByScanID("scan-1")
			assert.Equal(t, models.StatusCompleted, stored.Status)
			assert.Equal(t, []string{"scan-1:COMPLETED"}, orchestrator.calls)
		})
	}
}

func TestGetResultNotFound(t *testing.T) {
	svc := NewResultsService(newFakeResultDAO(), nil, nil)

	_, err := svc.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleCompletedEventUndecodable(t *testing.T) {
	svc := NewResultsService(newFakeResultDAO(), nil, nil)

	err := svc.HandleCompletedEvent(context.Background(), messaging.Delivery{Body: []byte(`{broken`)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCompletedEventFlowsThroughBus(t *testing.T) {
	resultDao := newFakeResultDAO()
	svc := NewResultsService(resultDao, nil, nil)

	bus := messaging.NewMemoryBus()
	assert.NoError(t, bus.Subscribe("aggregator.results", []string{messaging.BindingCompleted}, svc.HandleCompletedEvent))

	env, err := messaging.NewEnvelope(messaging.EventScanCompleted, completedEvent("scan-1"))
	assert.NoError(t, err)
	assert.NoError(t, bus.Publish(context.Background(), "scan.completed.static", env))

	stored, err := resultDao.GetByScanID("scan-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stored.CriticalCount)
}
