package models

import (
	"strings"

	"sentinel/pkg/apperrors"
)

// ScanStatus tracks a job through its lifecycle. PENDING is initial,
// COMPLETED, FAILED and CANCELLED are terminal.
type ScanStatus string

const (
	StatusPending   ScanStatus = "PENDING"
	StatusRunning   ScanStatus = "RUNNING"
	StatusCompleted ScanStatus = "COMPLETED"
	StatusFailed    ScanStatus = "FAILED"
	StatusCancelled ScanStatus = "CANCELLED"
)

// statusRank orders the lifecycle so that transitions only ever advance.
// All terminal states share the highest rank, so no terminal state can be
// replaced by another.
var statusRank = map[ScanStatus]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
	StatusCancelled: 2,
}

// ParseScanStatus normalizes and validates a status string.
func ParseScanStatus(s string) (ScanStatus, error) {
	status := ScanStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statusRank[status]; !ok {
		return "", apperrors.NewValidation("status", "unknown scan status "+s)
	}
	return status, nil
}

// IsTerminal reports whether the status admits no further transitions.
func (s ScanStatus) IsTerminal() bool {
	return statusRank[s] == 2
}

// CanTransition reports whether moving from one status to another advances
// the state machine. Replays of an already-applied status and regressions
// (a late RUNNING after COMPLETED) return false so consumers treat them as
// no-ops rather than errors.
func CanTransition(from, to ScanStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// ScanType enumerates the scanner services a job can be routed to.
type ScanType string

const (
	TypeStatic     ScanType = "STATIC"
	TypeDependency ScanType = "DEPENDENCY"
	TypeDomain     ScanType = "DOMAIN"
	TypeRepo       ScanType = "REPO"
)

var validScanTypes = map[ScanType]bool{
	TypeStatic:     true,
	TypeDependency: true,
	TypeDomain:     true,
	TypeRepo:       true,
}

// ParseScanType normalizes and validates a scan type string.
func ParseScanType(s string) (ScanType, error) {
	if strings.TrimSpace(s) == "" {
		return "", apperrors.NewValidation("type", "scan type is required")
	}
	t := ScanType(strings.ToUpper(strings.TrimSpace(s)))
	if !validScanTypes[t] {
		return "", apperrors.NewValidation("type", "unknown scan type "+s)
	}
	return t, nil
}
