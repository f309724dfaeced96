package models

import "time"

// ScanJob is the orchestrator's unit of work. Only the orchestrator (or its
// internal status endpoint) mutates it; the aggregator goes through the
// status-update operation, never the table.
type ScanJob struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TenantID      string     `gorm:"index;type:varchar(36);not null" json:"tenant_id"`
	ProjectID     string     `gorm:"type:varchar(36)" json:"project_id,omitempty"`
	UserID        string     `gorm:"index;type:varchar(36);not null" json:"user_id"`
	Type          ScanType   `gorm:"type:varchar(16);not null" json:"type"`
	Status        ScanStatus `gorm:"type:varchar(16);not null" json:"status"`
	TargetURL     string     `json:"target_url,omitempty"`
	TargetRepo    string     `json:"target_repo,omitempty"`
	GitToken      string     `json:"-"`
	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (ScanJob) TableName() string {
	return "scan_jobs"
}

// ApplyTransition moves the job to the given status, stamping the lifecycle
// timestamps exactly once. It returns false when the transition does not
// advance the state machine, leaving the job untouched.
func (j *ScanJob) ApplyTransition(status ScanStatus, reason string, now time.Time) bool {
	if !CanTransition(j.Status, status) {
		return false
	}

	j.Status = status
	switch {
	case status == StatusRunning:
		if j.StartedAt == nil {
			t := now
			j.StartedAt = &t
		}
	case status.IsTerminal():
		if j.FinishedAt == nil {
			t := now
			j.FinishedAt = &t
		}
		if status == StatusFailed {
			j.FailureReason = reason
		}
	}
	return true
}
