package services

import (
	"context"
	"fmt"
	"time"

	"sentinel/internal/dao"
	"sentinel/internal/models"
)

type nowFunc func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// VulnerabilityReport summarizes findings ingested over a window.
type VulnerabilityReport struct {
	TenantID          string                   `json:"tenant_id"`
	Period            string                   `json:"period"`
	Total             int                      `json:"total_vulnerabilities"`
	SeverityBreakdown models.SeverityCounts    `json:"severity_breakdown"`
	Trend             []dao.SeverityTrendPoint `json:"trend"`
}

// CodeQualityReport grades a tenant's static-analysis results by issue
// density.
type CodeQualityReport struct {
	TenantID      string                `json:"tenant_id"`
	Period        string                `json:"period"`
	ScansAnalyzed int64                 `json:"scans_analyzed"`
	Issues        models.SeverityCounts `json:"issues"`
	IssuesPerScan float64               `json:"issues_per_scan"`
	Grade         string                `json:"grade"`
}

// ComplianceReport scores a tenant by the share of scans with no critical
// findings.
type ComplianceReport struct {
	TenantID string `json:"tenant_id"`
	Period   string `json:"period"`
	Score    int    `json:"score"`
	Passing  int64  `json:"passing_scans"`
	Failing  int64  `json:"failing_scans"`
	Status   string `json:"status"`
}

type AnalyticsServiceMethods interface {
	VulnerabilityAnalytics(ctx context.Context, tenantID string, days int) (*VulnerabilityReport, error)
	CodeQualityAnalytics(ctx context.Context, tenantID string, days int) (*CodeQualityReport, error)
	ComplianceAnalytics(ctx context.Context, tenantID string, days int) (*ComplianceReport, error)
}

type analyticsService struct {
	resultDao dao.ScanResultDAO
	now       nowFunc
}

func NewAnalyticsService(resultDao dao.ScanResultDAO) AnalyticsServiceMethods {
	return &analyticsService{resultDao: resultDao, now: utcNow}
}

func (s *analyticsService) VulnerabilityAnalytics(ctx context.Context, tenantID string, days int) (*VulnerabilityReport, error) {
	since, period := s.window(days)

	counts, err := s.resultDao.SeveritySummary(tenantID, since)
	if err != nil {
		return nil, err
	}
	trend, err := s.resultDao.FindingTrend(tenantID, since)
	if err != nil {
		return nil, err
	}

	return &VulnerabilityReport{
		TenantID:          tenantID,
		Period:            period,
		Total:             counts.Critical + counts.High + counts.Medium + counts.Low,
		SeverityBreakdown: counts,
		Trend:             trend,
	}, nil
}

func (s *analyticsService) CodeQualityAnalytics(ctx context.Context, tenantID string, days int) (*CodeQualityReport, error) {
	since, period := s.window(days)

	scans, counts, err := s.resultDao.StaticAnalysisSummary(tenantID, since)
	if err != nil {
		return nil, err
	}

	total := counts.Critical + counts.High + counts.Medium + counts.Low
	perScan := 0.0
	if scans > 0 {
		perScan = float64(total) / float64(scans)
	}

	return &CodeQualityReport{
		TenantID:      tenantID,
		Period:        period,
		ScansAnalyzed: scans,
		Issues:        counts,
		IssuesPerScan: perScan,
		Grade:         qualityGrade(counts.Critical, perScan),
	}, nil
}

// qualityGrade maps issue density to a letter grade. Any critical finding
// caps the grade at C.
func qualityGrade(critical int, perScan float64) string {
	grade := "F"
	switch {
	case perScan <= 1:
		grade = "A"
	case perScan <= 3:
		grade = "B"
	case perScan <= 7:
		grade = "C"
	case perScan <= 15:
		grade = "D"
	}
	if critical > 0 && (grade == "A" || grade == "B") {
		grade = "C"
	}
	return grade
}

func (s *analyticsService) ComplianceAnalytics(ctx context.Context, tenantID string, days int) (*ComplianceReport, error) {
	since, period := s.window(days)

	passing, failing, err := s.resultDao.ComplianceCounts(tenantID, since)
	if err != nil {
		return nil, err
	}

	score := 100
	if passing+failing > 0 {
		score = int(passing * 100 / (passing + failing))
	}
	status := "COMPLIANT"
	if failing > 0 {
		status = "NON_COMPLIANT"
	}

	return &ComplianceReport{
		TenantID: tenantID,
		Period:   period,
		Score:    score,
		Passing:  passing,
		Failing:  failing,
		Status:   status,
	}, nil
}

func (s *analyticsService) window(days int) (time.Time, string) {
	if days < 1 {
		days = 30
	}
	since := s.now().AddDate(0, 0, -days)
	return since, fmt.Sprintf("Last %d days", days)
}
