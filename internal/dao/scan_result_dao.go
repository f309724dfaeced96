package dao

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentinel/internal/models"
)

// ErrDuplicateResult marks an insert that lost to an earlier ingestion of
// the same scan.
var ErrDuplicateResult = errors.New("result already ingested for scan")

type SeverityTrendPoint struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

type ScanResultDAO interface {
	// Insert stores a result once per scan ID; a second insert for the same
	// scan returns ErrDuplicateResult.
	Insert(result *models.ScanResult) error
	GetByScanID(scanID string) (*models.ScanResult, error)
	// SeveritySummary sums the bucket counters over results ingested since
	// the cutoff.
	SeveritySummary(tenantID string, since time.Time) (models.SeverityCounts, error)
	// FindingTrend returns per-day finding totals since the cutoff.
	FindingTrend(tenantID string, since time.Time) ([]SeverityTrendPoint, error)
	// ComplianceCounts returns how many results have zero critical findings
	// and how many have at least one, since the cutoff.
	ComplianceCounts(tenantID string, since time.Time) (passing int64, failing int64, err error)
	// StaticAnalysisSummary counts static-analysis results and sums their
	// severity buckets since the cutoff.
	StaticAnalysisSummary(tenantID string, since time.Time) (int64, models.SeverityCounts, error)
}

type scanResultDAO struct {
	db *gorm.DB
}

func NewScanResultDAO(db *gorm.DB) ScanResultDAO {
	return &scanResultDAO{db: db}
}

func (dao *scanResultDAO) Insert(result *models.ScanResult) error {
	res := dao.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scan_id"}},
		DoNothing: true,
	}).Create(result)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateResult
	}
	return nil
}

func (dao *scanResultDAO) GetByScanID(scanID string) (*models.ScanResult, error) {
	var result models.ScanResult
	if err := dao.db.Where("scan_id = ?", scanID).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (dao *scanResultDAO) SeveritySummary(tenantID string, since time.Time) (models.SeverityCounts, error) {
	var counts models.SeverityCounts
	err := dao.db.Model(&models.ScanResult{}).
		Select("COALESCE(SUM(critical_count),0) as critical, COALESCE(SUM(high_count),0) as high, COALESCE(SUM(medium_count),0) as medium, COALESCE(SUM(low_count),0) as low").
		Where("tenant_id = ? AND detected_at >= ?", tenantID, since).
		Scan(&counts).Error
	return counts, err
}

func (dao *scanResultDAO) FindingTrend(tenantID string, since time.Time) ([]SeverityTrendPoint, error) {
	var points []SeverityTrendPoint
	err := dao.db.Model(&models.ScanResult{}).
		Select("DATE_TRUNC('day', detected_at) as day, SUM(critical_count + high_count + medium_count + low_count) as count").
		Where("tenant_id = ? AND detected_at >= ?", tenantID, since).
		Group("DATE_TRUNC('day', detected_at)").
		Order("day").
		Scan(&points).Error
	return points, err
}

func (dao *scanResultDAO) StaticAnalysisSummary(tenantID string, since time.Time) (int64, models.SeverityCounts, error) {
	var scans int64
	var counts models.SeverityCounts
	if err := dao.db.Model(&models.ScanResult{}).
		Where("tenant_id = ? AND detected_at >= ? AND type = ?", tenantID, since, models.TypeStatic).
		Count(&scans).Error; err != nil {
		return 0, counts, err
	}
	err := dao.db.Model(&models.ScanResult{}).
		Select("COALESCE(SUM(critical_count),0) as critical, COALESCE(SUM(high_count),0) as high, COALESCE(SUM(medium_count),0) as medium, COALESCE(SUM(low_count),0) as low").
		Where("tenant_id = ? AND detected_at >= ? AND type = ?", tenantID, since, models.TypeStatic).
		Scan(&counts).Error
	return scans, counts, err
}

func (dao *scanResultDAO) ComplianceCounts(tenantID string, since time.Time) (int64, int64, error) {
	var passing, failing int64
	base := func() *gorm.DB {
		return dao.db.Model(&models.ScanResult{}).
			Where("tenant_id = ? AND detected_at >= ?", tenantID, since)
	}
	if err := base().Where("critical_count = 0").Count(&passing).Error; err != nil {
		return 0, 0, err
	}
	if err := base().Where("critical_count > 0").Count(&failing).Error; err != nil {
		return 0, 0, err
	}
	return passing, failing, nil
}
