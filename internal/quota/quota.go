// Package quota gates resource creation against per-tenant plan limits.
// Checks are advisory: when the limits source is unreachable the gate fails
// open with permissive defaults rather than blocking tenants on an outage.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"sentinel/pkg/logger"
)

// Unlimited disables a limit.
const Unlimited = -1

// PlanLimits are the caps attached to a subscription plan.
type PlanLimits struct {
	PlanID             string `json:"planId" yaml:"plan_id"`
	PlanName           string `json:"planName" yaml:"plan_name"`
	MaxUsers           int    `json:"maxUsers" yaml:"max_users"`
	MaxProjects        int    `json:"maxProjects" yaml:"max_projects"`
	MaxDomains         int    `json:"maxDomains" yaml:"max_domains"`
	MaxRepos           int    `json:"maxRepos" yaml:"max_repos"`
	MaxScansPerMonth   int    `json:"maxScansPerMonth" yaml:"max_scans_per_month"`
	IncludesBlockchain bool   `json:"includesBlockchain" yaml:"includes_blockchain"`
}

// Validation is the outcome of a limit check.
type Validation struct {
	Allowed           bool   `json:"allowed"`
	Limit             int    `json:"limit"`
	Current           int    `json:"current"`
	Remaining         int    `json:"remaining"`
	Message           string `json:"message,omitempty"`
	UpgradeSuggestion string `json:"upgradeSuggestion,omitempty"`
}

// PlanCatalog maps plan IDs to their limits.
type PlanCatalog struct {
	Plans map[string]PlanLimits `yaml:"plans"`
}

// DefaultCatalog is used when no plans file is configured.
func DefaultCatalog() PlanCatalog {
	return PlanCatalog{Plans: map[string]PlanLimits{
		"free":       {PlanID: "free", PlanName: "Free", MaxUsers: 3, MaxProjects: 1, MaxDomains: 1, MaxRepos: 0, MaxScansPerMonth: 5},
		"pro":        {PlanID: "pro", PlanName: "Pro", MaxUsers: 10, MaxProjects: 5, MaxDomains: 5, MaxRepos: 3, MaxScansPerMonth: 100},
		"enterprise": {PlanID: "enterprise", PlanName: "Enterprise", MaxUsers: Unlimited, MaxProjects: Unlimited, MaxDomains: Unlimited, MaxRepos: Unlimited, MaxScansPerMonth: Unlimited, IncludesBlockchain: true},
	}}
}

// LoadCatalog reads a plan catalog from a YAML file, falling back to the
// compiled-in defaults when the file is absent.
func LoadCatalog(path string) (PlanCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return PlanCatalog{}, fmt.Errorf("read plans file: %w", err)
	}
	var catalog PlanCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return PlanCatalog{}, fmt.Errorf("parse plans file: %w", err)
	}
	if len(catalog.Plans) == 0 {
		return DefaultCatalog(), nil
	}
	return catalog, nil
}

// LimitsSource resolves the effective limits for a tenant.
type LimitsSource interface {
	TenantLimits(ctx context.Context, tenantID string) (PlanLimits, error)
}

// HTTPLimitsSource asks the tenant service for a tenant's plan limits.
type HTTPLimitsSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPLimitsSource(baseURL string, timeout time.Duration) *HTTPLimitsSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPLimitsSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPLimitsSource) TenantLimits(ctx context.Context, tenantID string) (PlanLimits, error) {
	url := fmt.Sprintf("%s/api/tenants/%s/limits", s.BaseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PlanLimits{}, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return PlanLimits{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PlanLimits{}, fmt.Errorf("tenant service returned %d", resp.StatusCode)
	}

	var limits PlanLimits
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return PlanLimits{}, fmt.Errorf("decode limits: %w", err)
	}
	return limits, nil
}

// StaticLimitsSource serves every tenant the same plan, for development and
// tests.
type StaticLimitsSource struct {
	Limits PlanLimits
}

func (s StaticLimitsSource) TenantLimits(ctx context.Context, tenantID string) (PlanLimits, error) {
	return s.Limits, nil
}

// Gate performs limit checks against a LimitsSource.
type Gate struct {
	source LimitsSource
	logger *logger.Logger
}

func NewGate(source LimitsSource) *Gate {
	return &Gate{source: source, logger: logger.NewLogger(logrus.InfoLevel)}
}

// CheckScanQuota validates a new scan against the tenant's monthly cap.
// A limits-source failure allows the scan (fail open).
func (g *Gate) CheckScanQuota(ctx context.Context, tenantID string, usedThisMonth int) Validation {
	limits, err := g.source.TenantLimits(ctx, tenantID)
	if err != nil {
		g.logger.Warn("Limits source unavailable, allowing scan", logger.Fields{
			"tenant_id": tenantID,
			"error":     err,
		})
		return Validation{Allowed: true, Limit: Unlimited, Current: usedThisMonth}
	}
	return check("scans this month", limits.MaxScansPerMonth, usedThisMonth)
}

func check(resource string, limit, current int) Validation {
	if limit == Unlimited {
		return Validation{Allowed: true, Limit: limit, Current: current}
	}
	if current >= limit {
		return Validation{
			Allowed:           false,
			Limit:             limit,
			Current:           current,
			Message:           fmt.Sprintf("limit of %d %s reached", limit, resource),
			UpgradeSuggestion: "upgrade your plan to raise this limit",
		}
	}
	return Validation{Allowed: true, Limit: limit, Current: current, Remaining: limit - current}
}
