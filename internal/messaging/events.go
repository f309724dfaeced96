package messaging

import (
	"time"

	"sentinel/internal/models"
)

// Event types and routing keys. Routing keys may carry a scanner-specific
// suffix (scan.completed.static); bindings use the # wildcard.
const (
	EventScanRequested = "scan.requested"
	EventScanProgress  = "scan.progress"
	EventScanCompleted = "scan.completed"
	EventScanFailed    = "scan.failed"

	KeyScanRequested   = "scan.requested"
	KeyDeadLetter      = "scan.deadletter"
	BindingProgress    = "scan.progress.#"
	BindingCompleted   = "scan.completed.#"
	BindingFailed      = "scan.failed.#"
	BindingDeadLetters = "scan.deadletter"
)

// ScanRequested asks an external scanner to pick up a job.
type ScanRequested struct {
	ScanID           string          `json:"scanId"`
	RequestedService models.ScanType `json:"requestedService"`
	TargetURL        string          `json:"targetUrl,omitempty"`
	TargetRepo       string          `json:"targetRepo,omitempty"`
	ClientGitToken   string          `json:"clientGitToken,omitempty"`
	TenantID         string          `json:"tenantId"`
}

// ScanStatusChanged reports scanner progress back to the orchestrator.
type ScanStatusChanged struct {
	ScanID string `json:"scanId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ScanCompleted carries the full findings payload to the aggregator.
type ScanCompleted struct {
	ScanID      string            `json:"scanId"`
	TenantID    string            `json:"tenantId"`
	Type        models.ScanType   `json:"type"`
	Status      models.ScanStatus `json:"status"`
	Findings    []models.Finding  `json:"findings"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}
