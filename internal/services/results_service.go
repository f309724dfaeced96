package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentinel/internal/clients"
	"sentinel/internal/dao"
	"sentinel/internal/messaging"
	"sentinel/internal/models"
	"sentinel/internal/storage"
	"sentinel/pkg/apperrors"
	"sentinel/pkg/logger"
)

type ResultsServiceMethods interface {
	ProcessScanResult(ctx context.Context, evt messaging.ScanCompleted) error
	GetResult(ctx context.Context, scanID string) (*models.ScanResult, error)
	HandleCompletedEvent(ctx context.Context, d messaging.Delivery) error
}

type resultsService struct {
	resultDao    dao.ScanResultDAO
	orchestrator clients.OrchestratorClient
	artifacts    storage.ArtifactStore
	logger       *logger.Logger
	now          nowFunc
}

func NewResultsService(resultDao dao.ScanResultDAO, orchestrator clients.OrchestratorClient, artifacts storage.ArtifactStore) ResultsServiceMethods {
	return &resultsService{
		resultDao:    resultDao,
		orchestrator: orchestrator,
		artifacts:    artifacts,
		logger:       logger.NewLogger(logrus.InfoLevel),
		now:          utcNow,
	}
}

// ProcessScanResult ingests one completion event: archive the raw payload,
// store the result exactly once, then push the status to the orchestrator
// best-effort. Findings are durable before the callback, so a callback
// failure is logged and swallowed, never returned to the consumer.
func (s *resultsService) ProcessScanResult(ctx context.Context, evt messaging.ScanCompleted) error {
	if evt.ScanID == "" {
		s.logger.Warn("Completion event without scanId, dropping")
		return nil
	}
	s.logger.Info("Processing scan result", logger.Fields{"scan_id": evt.ScanID})

	reportKey := s.archive(ctx, evt)

	// Scanners are not trusted to send a valid status; a completion event
	// with a missing or unknown one still means the scan finished.
	status, err := models.ParseScanStatus(string(evt.Status))
	if err != nil {
		s.logger.Warn("Completion event with unrecognized status, defaulting to COMPLETED", logger.Fields{
			"scan_id": evt.ScanID,
			"status":  string(evt.Status),
		})
		status = models.StatusCompleted
	}

	completedAt := s.now()
	if evt.CompletedAt != nil {
		completedAt = *evt.CompletedAt
	}

	counts := models.CountBySeverity(evt.Findings)
	result := &models.ScanResult{
		ID:            uuid.New().String(),
		ScanID:        evt.ScanID,
		TenantID:      evt.TenantID,
		Type:          evt.Type,
		Status:        status,
		Findings:      evt.Findings,
		CriticalCount: counts.Critical,
		HighCount:     counts.High,
		MediumCount:   counts.Medium,
		LowCount:      counts.Low,
		ReportKey:     reportKey,
		DetectedAt:    s.now(),
		CompletedAt:   completedAt,
	}

	if err := s.resultDao.Insert(result); err != nil {
		if errors.Is(err, dao.ErrDuplicateResult) {
			s.logger.Warn("Result already ingested, dropping duplicate", logger.Fields{"scan_id": evt.ScanID})
			return nil
		}
		return err
	}
	s.logger.Info("Scan result stored", logger.Fields{
		"scan_id":  evt.ScanID,
		"findings": len(evt.Findings),
	})

	if s.orchestrator != nil {
		if err := s.orchestrator.UpdateScanStatus(ctx, evt.ScanID, status, ""); err != nil {
			s.logger.Error("Failed to update orchestrator status", logger.Fields{
				"scan_id": evt.ScanID,
				"error":   err,
			})
		}
	}
	return nil
}

// archive stores the raw event for later audit; failures only cost the
// report key.
func (s *resultsService) archive(ctx context.Context, evt messaging.ScanCompleted) string {
	if s.artifacts == nil {
		return ""
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return ""
	}
	key := fmt.Sprintf("reports/%s.json", evt.ScanID)
	if err := s.artifacts.PutReport(ctx, key, raw); err != nil {
		s.logger.Error("Failed to archive raw report", logger.Fields{"scan_id": evt.ScanID, "error": err})
		return ""
	}
	return key
}

func (s *resultsService) GetResult(ctx context.Context, scanID string) (*models.ScanResult, error) {
	result, err := s.resultDao.GetByScanID(scanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("result", scanID)
		}
		return nil, err
	}
	return result, nil
}

// HandleCompletedEvent is the bus entry point for scan.completed messages.
func (s *resultsService) HandleCompletedEvent(ctx context.Context, d messaging.Delivery) error {
	var evt messaging.ScanCompleted
	if err := messaging.DecodeLenient(d.Body, &evt); err != nil {
		return apperrors.NewValidation("body", "undecodable completion event: "+err.Error())
	}
	return s.ProcessScanResult(ctx, evt)
}
