package models

// WorkflowKind names one of the supported transaction pipelines.
type WorkflowKind string

const (
	KindBridgeSend         WorkflowKind = "bridge_send"
	KindVaultDeposit       WorkflowKind = "vault_deposit"
	KindRentHarvest        WorkflowKind = "rent_harvest"
	KindLiquidationDeposit WorkflowKind = "liquidation_deposit"
	KindNavUpdate          WorkflowKind = "nav_update"
	KindStacksDeposit      WorkflowKind = "stacks_deposit"
)

// KindSpec declares the shape of one pipeline as data. The engine interprets
// these records instead of carrying per-kind control flow: whether a
// permission (approval) step may be needed, whether the action step must carry
// a bridging fee quote, and whether the submitted action is tracked by the
// external status poller.
type KindSpec struct {
	Kind               WorkflowKind `json:"kind"                validate:"required"`
	RequiresPermission bool         `json:"requires_permission"`
	RequiresFeeQuote   bool         `json:"requires_fee_quote"`
	TracksDeposit      bool         `json:"tracks_deposit"`
	AssetDecimals      uint8        `json:"asset_decimals"      validate:"required"`
	Spender            string       `json:"spender,omitempty"`
	DestinationChainID uint64       `json:"destination_chain_id,omitempty"`
}
