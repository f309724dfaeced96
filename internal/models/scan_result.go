package models

import (
	"strings"
	"time"
)

// Severity labels a finding. Counting buckets must match these labels
// exactly.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Finding is a single detected issue reported by a scanner.
type Finding struct {
	Severity    Severity          `json:"severity"`
	RuleID      string            `json:"rule_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SeverityCounts summarizes findings per bucket.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// CountBySeverity buckets findings by their severity label. Labels are
// compared case-insensitively; unknown labels are ignored.
func CountBySeverity(findings []Finding) SeverityCounts {
	var counts SeverityCounts
	for _, f := range findings {
		switch Severity(strings.ToUpper(string(f.Severity))) {
		case SeverityCritical:
			counts.Critical++
		case SeverityHigh:
			counts.High++
		case SeverityMedium:
			counts.Medium++
		case SeverityLow:
			counts.Low++
		}
	}
	return counts
}

// ScanResult is the aggregator's record of a finished scan. Exactly zero or
// one result exists per scan: the unique index on scan_id rejects
// re-ingestion, keeping duplicate completion events idempotent.
type ScanResult struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ScanID        string     `gorm:"uniqueIndex;type:varchar(36);not null" json:"scan_id"`
	TenantID      string     `gorm:"index;type:varchar(36);not null" json:"tenant_id"`
	Type          ScanType   `gorm:"type:varchar(16)" json:"type"`
	Status        ScanStatus `gorm:"type:varchar(16)" json:"status"`
	Findings      []Finding  `gorm:"serializer:json" json:"findings"`
	CriticalCount int        `json:"critical_count"`
	HighCount     int        `json:"high_count"`
	MediumCount   int        `json:"medium_count"`
	LowCount      int        `json:"low_count"`
	ReportKey     string     `json:"report_key,omitempty"`
	DetectedAt    time.Time  `json:"detected_at"`
	CompletedAt   time.Time  `json:"completed_at"`
}

func (ScanResult) TableName() string {
	return "scan_results"
}
