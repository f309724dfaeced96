// Package clients holds typed HTTP clients for peer services.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sentinel/internal/models"
	"sentinel/pkg/apperrors"
)

// OrchestratorClient pushes status updates to the orchestrator's internal
// endpoint, bypassing the bus. Calls are bounded by the client timeout.
type OrchestratorClient interface {
	UpdateScanStatus(ctx context.Context, scanID string, status models.ScanStatus, reason string) error
}

type orchestratorClient struct {
	baseURL string
	client  *http.Client
}

func NewOrchestratorClient(baseURL string, timeout time.Duration) OrchestratorClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &orchestratorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *orchestratorClient) UpdateScanStatus(ctx context.Context, scanID string, status models.ScanStatus, reason string) error {
	payload, err := json.Marshal(map[string]string{
		"status": string(status),
		"reason": reason,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/internal/scans/%s/status", c.baseURL, scanID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewUnavailable("scan-orchestrator", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFound("scan", scanID)
	case resp.StatusCode >= 400:
		return apperrors.NewUnavailable("scan-orchestrator", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
