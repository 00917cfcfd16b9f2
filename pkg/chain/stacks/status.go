// Package stacks binds the polled status endpoint to the Stacks blockchain
// API, which exposes no push-based confirmation hook.
package stacks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// StatusEndpoint reads the raw transaction status from the Stacks API
// (GET /extended/v1/tx/{ref}).
type StatusEndpoint struct {
	baseURL string
	client  *http.Client
}

func NewStatusEndpoint(baseURL string) *StatusEndpoint {
	return &StatusEndpoint{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (s *StatusEndpoint) GetStatus(ctx context.Context, ref string) (string, error) {
	url := fmt.Sprintf("%s/extended/v1/tx/%s", s.baseURL, ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request for %s failed: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status request for %s returned %d", ref, resp.StatusCode)
	}

	var payload struct {
		TxStatus string `json:"tx_status"`
	}

	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return "", fmt.Errorf("malformed status response for %s: %w", ref, err)
	}

	return payload.TxStatus, nil
}
