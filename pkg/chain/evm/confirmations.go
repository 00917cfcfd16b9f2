// Package evm binds the confirmation subscription to an EVM JSON-RPC
// endpoint: finality is read from the transaction receipt.
package evm

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vaultbridge/txflow/pkg/chain"
)

const defaultReceiptInterval = 3 * time.Second

type ConfirmationSource struct {
	client   *ethclient.Client
	interval time.Duration
}

func NewConfirmationSource(ctx context.Context, rpcURL string, interval time.Duration) (*ConfirmationSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	if interval <= 0 {
		interval = defaultReceiptInterval
	}

	return &ConfirmationSource{client: client, interval: interval}, nil
}

// AwaitConfirmation blocks until the transaction receipt is available or the
// context is done, then reports the settled outcome.
func (s *ConfirmationSource) AwaitConfirmation(ctx context.Context, handle chain.Handle) (chain.Outcome, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, handle.TxHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return chain.OutcomeConfirmed, nil
			}

			return chain.OutcomeFailed, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			return chain.OutcomeFailed, fmt.Errorf("failed to fetch receipt for %s: %w", handle.TxHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return chain.OutcomeFailed, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ConfirmationSource) Close() {
	s.client.Close()
}
