// Package chain defines the abstract on-chain capabilities the workflow engine
// consumes: operation submission, confirmation subscription, read-only queries
// and the external status endpoint for the polled deposit leg. Contract
// semantics stay behind these interfaces; the engine treats every operation as
// an opaque asynchronous call with a result or a typed failure.
package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultbridge/txflow/pkg/models"
)

// OperationType names the concrete on-chain call behind a step.
type OperationType string

const (
	OperationApprove            OperationType = "approve"
	OperationBridgeTransfer     OperationType = "bridge_transfer"
	OperationVaultDeposit       OperationType = "vault_deposit"
	OperationRentHarvest        OperationType = "rent_harvest"
	OperationLiquidationDeposit OperationType = "liquidation_deposit"
	OperationNavUpdate          OperationType = "nav_update"
	OperationStacksDeposit      OperationType = "stacks_deposit"
)

// Operation is the payload handed to a Submitter. Bridging operations carry a
// destination chain, a recipient and a minimum-received guard equal to the
// sent amount; there is no slippage tolerance.
type Operation struct {
	Type               OperationType    `json:"type"`
	Amount             models.Amount    `json:"amount"`
	Spender            common.Address   `json:"spender,omitempty"`
	Recipient          common.Address   `json:"recipient,omitempty"`
	DestinationChainID uint64           `json:"destination_chain_id,omitempty"`
	MinReceived        models.Amount    `json:"min_received"`
	Fee                *models.FeeQuote `json:"fee,omitempty"`
	Params             map[string]any   `json:"params,omitempty"`
}

// Handle references one in-flight submitted operation.
type Handle struct {
	TxHash      common.Hash
	Type        OperationType
	SubmittedAt time.Time
}

// Outcome is the settled result of a submitted operation.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// QuerySpec describes a read-only call: allowance level, bridging fee quote or
// any other contract view. Callers bound the call with a context deadline.
type QuerySpec struct {
	Kind    string         `json:"kind"`
	Owner   common.Address `json:"owner,omitempty"`
	Spender common.Address `json:"spender,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Submitter issues a single asynchronous on-chain operation.
type Submitter interface {
	Submit(ctx context.Context, op Operation) (Handle, error)
}

// ConfirmationSource resolves the finality of a submitted operation. It blocks
// until the outcome is settled or the context is done.
type ConfirmationSource interface {
	AwaitConfirmation(ctx context.Context, handle Handle) (Outcome, error)
}

// Querier executes read-only queries with a bounded timeout supplied through
// the context.
type Querier interface {
	Query(ctx context.Context, spec QuerySpec) (any, error)
}

// StatusEndpoint reports the raw remote status string for an external
// transaction reference. The status poller owns the mapping from the raw
// vocabulary to canonical deposit statuses.
type StatusEndpoint interface {
	GetStatus(ctx context.Context, ref string) (string, error)
}
