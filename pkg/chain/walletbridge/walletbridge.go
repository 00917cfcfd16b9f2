// Package walletbridge binds operation submission and read-only queries to the
// wallet bridge service that fronts the operator's connected wallet. Wallet
// connection and signing stay outside the engine; this client only forwards
// opaque operations and maps the bridge's responses onto the error taxonomy.
package walletbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultbridge/txflow/pkg/chain"
)

const defaultRequestTimeout = 60 * time.Second

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Submit forwards the operation to the wallet bridge. A 409 means the
// operator declined to sign; any other non-2xx response is a submission
// error.
func (c *Client) Submit(ctx context.Context, op chain.Operation) (chain.Handle, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return chain.Handle{}, &chain.SubmissionError{Op: op.Type, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/operations", bytes.NewReader(payload))
	if err != nil {
		return chain.Handle{}, &chain.SubmissionError{Op: op.Type, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return chain.Handle{}, &chain.SubmissionError{Op: op.Type, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return chain.Handle{}, chain.ErrRejectedByOperator
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return chain.Handle{}, &chain.SubmissionError{
			Op:  op.Type,
			Err: fmt.Errorf("wallet bridge returned %d", resp.StatusCode),
		}
	}

	var result struct {
		TxHash string `json:"tx_hash"`
	}

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return chain.Handle{}, &chain.SubmissionError{Op: op.Type, Err: err}
	}

	return chain.Handle{
		TxHash:      common.HexToHash(result.TxHash),
		Type:        op.Type,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Query forwards a read-only query. The result is returned as decoded JSON;
// callers own shape normalization.
func (c *Client) Query(ctx context.Context, spec chain.QuerySpec) (any, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", spec.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s returned %d", spec.Kind, resp.StatusCode)
	}

	var result struct {
		Result any `json:"result"`
	}

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("malformed query response for %s: %w", spec.Kind, err)
	}

	return result.Result, nil
}
