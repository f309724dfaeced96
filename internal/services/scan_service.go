package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentinel/internal/dao"
	"sentinel/internal/messaging"
	"sentinel/internal/models"
	"sentinel/internal/quota"
	"sentinel/pkg/apperrors"
	"sentinel/pkg/logger"
)

// CreateScanRequest carries the accepted fields of a scan request.
type CreateScanRequest struct {
	Type       string
	TargetURL  string
	TargetRepo string
	ProjectID  string
	GitToken   string
}

type ScanServiceMethods interface {
	CreateScan(ctx context.Context, req CreateScanRequest, tenantID, userID string) (*models.ScanJob, error)
	GetScan(ctx context.Context, id string) (*models.ScanJob, error)
	ListByTenant(ctx context.Context, tenantID string, page, limit int) ([]models.ScanJob, int64, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]models.ScanJob, int64, error)
	ApplyStatus(ctx context.Context, scanID string, status models.ScanStatus, reason string) error
	Cancel(ctx context.Context, scanID string) error
	HandleStatusEvent(ctx context.Context, d messaging.Delivery) error
}

type scanService struct {
	jobDao dao.ScanJobDAO
	gate   *quota.Gate
	logger *logger.Logger
	now    func() time.Time
}

func NewScanService(jobDao dao.ScanJobDAO, gate *quota.Gate) ScanServiceMethods {
	return &scanService{
		jobDao: jobDao,
		gate:   gate,
		logger: logger.NewLogger(logrus.InfoLevel),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateScan validates the request, gates it against the tenant's monthly
// quota, then commits the PENDING job together with its scan-requested
// outbox entry in one transaction. The relay publishes the event; a broker
// outage delays dispatch but can no longer strand the job.
func (s *scanService) CreateScan(ctx context.Context, req CreateScanRequest, tenantID, userID string) (*models.ScanJob, error) {
	scanType, err := models.ParseScanType(req.Type)
	if err != nil {
		return nil, err
	}
	if req.TargetURL == "" && req.TargetRepo == "" {
		return nil, apperrors.NewValidation("target", "either target_url or target_repo is required")
	}

	if s.gate != nil {
		monthStart := time.Date(s.now().Year(), s.now().Month(), 1, 0, 0, 0, 0, time.UTC)
		used, err := s.jobDao.CountByTenantSince(tenantID, monthStart)
		if err != nil {
			s.logger.Error("Failed to count monthly scans, skipping quota check", logger.Fields{
				"tenant_id": tenantID,
				"error":     err,
			})
		} else if v := s.gate.CheckScanQuota(ctx, tenantID, int(used)); !v.Allowed {
			return nil, apperrors.NewLimitExceeded("scans", v.Limit, v.Current, v.Message)
		}
	}

	job := &models.ScanJob{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ProjectID:  req.ProjectID,
		UserID:     userID,
		Type:       scanType,
		Status:     models.StatusPending,
		TargetURL:  req.TargetURL,
		TargetRepo: req.TargetRepo,
		GitToken:   req.GitToken,
		CreatedAt:  s.now(),
	}

	env, err := messaging.NewEnvelope(messaging.EventScanRequested, messaging.ScanRequested{
		ScanID:           job.ID,
		RequestedService: job.Type,
		TargetURL:        job.TargetURL,
		TargetRepo:       job.TargetRepo,
		ClientGitToken:   req.GitToken,
		TenantID:         tenantID,
	})
	if err != nil {
		return nil, err
	}
	body, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	entry := &models.OutboxEntry{
		RoutingKey: messaging.KeyScanRequested,
		Body:       body,
		CreatedAt:  s.now(),
	}
	if err := s.jobDao.SaveWithOutbox(job, entry); err != nil {
		s.logger.Error("Failed to persist scan job", logger.Fields{"tenant_id": tenantID, "error": err})
		return nil, err
	}

	s.logger.Info("Scan created", logger.Fields{
		"scan_id":   job.ID,
		"tenant_id": tenantID,
		"type":      job.Type,
	})
	return job, nil
}

func (s *scanService) GetScan(ctx context.Context, id string) (*models.ScanJob, error) {
	job, err := s.jobDao.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("scan", id)
		}
		return nil, err
	}
	return job, nil
}

func (s *scanService) ListByTenant(ctx context.Context, tenantID string, page, limit int) ([]models.ScanJob, int64, error) {
	return s.jobDao.ListByTenant(tenantID, page, limit)
}

func (s *scanService) ListByUser(ctx context.Context, userID string, page, limit int) ([]models.ScanJob, int64, error) {
	return s.jobDao.ListByUser(userID, page, limit)
}

// A job's status rank can advance at most twice, so two lost races is the
// worst case before a transition either applies or becomes a no-op.
const maxTransitionAttempts = 3

// ApplyStatus is the single transition path for a job, shared by the bus
// consumer and the internal endpoint. Transitions that do not advance the
// state machine are no-ops, and the write is conditional on the status the
// job was loaded with, so concurrent deliveries cannot overwrite a terminal
// state with a stale one.
func (s *scanService) ApplyStatus(ctx context.Context, scanID string, status models.ScanStatus, reason string) error {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		job, err := s.GetScan(ctx, scanID)
		if err != nil {
			return err
		}

		loaded := job.Status
		if !job.ApplyTransition(status, reason, s.now()) {
			s.logger.Debug("Ignoring non-advancing transition", logger.Fields{
				"scan_id": scanID,
				"from":    loaded,
				"to":      status,
			})
			return nil
		}

		applied, err := s.jobDao.UpdateIfStatus(job, loaded)
		if err != nil {
			return err
		}
		if applied {
			s.logger.Info("Scan status updated", logger.Fields{"scan_id": scanID, "status": status})
			return nil
		}
		// Lost the race to a concurrent transition; re-read and re-evaluate.
	}
	return apperrors.NewConflict("scan " + scanID + " is transitioning concurrently")
}

// Cancel marks a job CANCELLED. Jobs already in a terminal state conflict.
func (s *scanService) Cancel(ctx context.Context, scanID string) error {
	job, err := s.GetScan(ctx, scanID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return apperrors.NewConflict("scan already finished, cannot cancel")
	}
	return s.ApplyStatus(ctx, scanID, models.StatusCancelled, "")
}

// HandleStatusEvent consumes scan.progress/completed/failed messages. An
// unknown scan ID is logged and dropped; an undecodable body is returned as
// an error so the bus retry and dead-letter policy engages.
func (s *scanService) HandleStatusEvent(ctx context.Context, d messaging.Delivery) error {
	var evt messaging.ScanStatusChanged
	if err := messaging.DecodeLenient(d.Body, &evt); err != nil {
		return apperrors.NewValidation("body", "undecodable status event: "+err.Error())
	}
	if evt.ScanID == "" {
		s.logger.Warn("Status event without scanId, dropping", logger.Fields{"key": d.RoutingKey})
		return nil
	}

	status, err := models.ParseScanStatus(evt.Status)
	if err != nil {
		return err
	}

	if err := s.ApplyStatus(ctx, evt.ScanID, status, evt.Reason); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Status event for unknown scan, dropping", logger.Fields{"scan_id": evt.ScanID})
			return nil
		}
		return err
	}
	return nil
}
