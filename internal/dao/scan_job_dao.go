package dao

import (
	"time"

	"gorm.io/gorm"

	"sentinel/internal/models"
)

type ScanJobDAO interface {
	// SaveWithOutbox commits the job and its scan-requested outbox entry in
	// one transaction.
	SaveWithOutbox(job *models.ScanJob, entry *models.OutboxEntry) error
	GetByID(id string) (*models.ScanJob, error)
	ListByTenant(tenantID string, page, limit int) ([]models.ScanJob, int64, error)
	ListByUser(userID string, page, limit int) ([]models.ScanJob, int64, error)
	// UpdateIfStatus persists the job's lifecycle fields only while the
	// stored status still matches expected. A false return means a concurrent
	// transition won the race and the caller must re-read.
	UpdateIfStatus(job *models.ScanJob, expected models.ScanStatus) (bool, error)
	CountByTenantSince(tenantID string, since time.Time) (int64, error)
	// ListStale returns non-terminal jobs in the given status past the
	// cutoff.
	ListStale(status models.ScanStatus, before time.Time) ([]models.ScanJob, error)
}

type scanJobDAO struct {
	db *gorm.DB
}

func NewScanJobDAO(db *gorm.DB) ScanJobDAO {
	return &scanJobDAO{db: db}
}

func (dao *scanJobDAO) SaveWithOutbox(job *models.ScanJob, entry *models.OutboxEntry) error {
	return dao.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}

func (dao *scanJobDAO) GetByID(id string) (*models.ScanJob, error) {
	var job models.ScanJob
	if err := dao.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (dao *scanJobDAO) ListByTenant(tenantID string, page, limit int) ([]models.ScanJob, int64, error) {
	return dao.list("tenant_id = ?", tenantID, page, limit)
}

func (dao *scanJobDAO) ListByUser(userID string, page, limit int) ([]models.ScanJob, int64, error) {
	return dao.list("user_id = ?", userID, page, limit)
}

func (dao *scanJobDAO) list(where, value string, page, limit int) ([]models.ScanJob, int64, error) {
	var jobs []models.ScanJob
	var total int64

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	if err := dao.db.Model(&models.ScanJob{}).Where(where, value).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := dao.db.Where(where, value).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

func (dao *scanJobDAO) UpdateIfStatus(job *models.ScanJob, expected models.ScanStatus) (bool, error) {
	res := dao.db.Model(&models.ScanJob{}).
		Where("id = ? AND status = ?", job.ID, expected).
		Updates(map[string]interface{}{
			"status":         job.Status,
			"started_at":     job.StartedAt,
			"finished_at":    job.FinishedAt,
			"failure_reason": job.FailureReason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (dao *scanJobDAO) CountByTenantSince(tenantID string, since time.Time) (int64, error) {
	var count int64
	err := dao.db.Model(&models.ScanJob{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Count(&count).Error
	return count, err
}

// ListStale measures PENDING staleness from creation and RUNNING staleness
// from when the scanner picked the job up.
func (dao *scanJobDAO) ListStale(status models.ScanStatus, before time.Time) ([]models.ScanJob, error) {
	column := "created_at"
	if status == models.StatusRunning {
		column = "started_at"
	}
	var jobs []models.ScanJob
	err := dao.db.Where("status = ? AND "+column+" < ?", status, before).
		Find(&jobs).Error
	return jobs, err
}
