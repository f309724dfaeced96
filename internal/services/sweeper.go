package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sentinel/internal/dao"
	"sentinel/internal/messaging"
	"sentinel/internal/models"
	"sentinel/pkg/logger"
)

// Sweeper fails jobs stuck beyond their TTL. A job left PENDING means the
// scan-requested event was never picked up; a job left RUNNING means the
// scanner died without reporting. Both would otherwise sit stuck until a
// user queried them.
type Sweeper struct {
	jobDao     dao.ScanJobDAO
	scans      ScanServiceMethods
	alerter    messaging.Alerter
	interval   time.Duration
	pendingTTL time.Duration
	runningTTL time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

func NewSweeper(jobDao dao.ScanJobDAO, scans ScanServiceMethods, alerter messaging.Alerter, interval, pendingTTL, runningTTL time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if pendingTTL <= 0 {
		pendingTTL = 15 * time.Minute
	}
	if runningTTL <= 0 {
		runningTTL = 2 * time.Hour
	}
	return &Sweeper{
		jobDao:     jobDao,
		scans:      scans,
		alerter:    alerter,
		interval:   interval,
		pendingTTL: pendingTTL,
		runningTTL: runningTTL,
		logger:     logger.NewLogger(logrus.InfoLevel),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep fails all stale jobs once and alerts with the count.
func (s *Sweeper) Sweep(ctx context.Context) {
	swept := 0
	swept += s.sweepStatus(ctx, models.StatusPending, s.pendingTTL)
	swept += s.sweepStatus(ctx, models.StatusRunning, s.runningTTL)

	if swept > 0 && s.alerter != nil {
		s.alerter.Alert("Stuck scans failed by sweeper",
			fmt.Sprintf("%d scan(s) exceeded their TTL and were marked FAILED", swept),
			map[string]string{"count": fmt.Sprintf("%d", swept)})
	}
}

func (s *Sweeper) sweepStatus(ctx context.Context, status models.ScanStatus, ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	jobs, err := s.jobDao.ListStale(status, cutoff)
	if err != nil {
		s.logger.Error("Failed to list stale jobs", logger.Fields{"status": status, "error": err})
		return 0
	}

	swept := 0
	for _, job := range jobs {
		reason := fmt.Sprintf("timed out waiting for scanner after %s in %s", ttl, status)
		if err := s.scans.ApplyStatus(ctx, job.ID, models.StatusFailed, reason); err != nil {
			s.logger.Error("Failed to fail stale job", logger.Fields{"scan_id": job.ID, "error": err})
			continue
		}
		s.logger.Warn("Stale scan marked failed", logger.Fields{"scan_id": job.ID, "was": status})
		swept++
	}
	return swept
}
