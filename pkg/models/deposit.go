package models

import "time"

// DepositStatus is the canonical lifecycle of a polled cross-chain deposit.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusMinted    DepositStatus = "minted"
	DepositStatusFailed    DepositStatus = "failed"
)

// CanTransitionTo enforces the monotonic status order: pending may move to
// confirmed or failed, confirmed may only move to minted. Terminal statuses
// never change.
func (s DepositStatus) CanTransitionTo(next DepositStatus) bool {
	switch s {
	case DepositStatusPending:
		return next == DepositStatusConfirmed || next == DepositStatusFailed
	case DepositStatusConfirmed:
		return next == DepositStatusMinted
	default:
		return false
	}
}

// DepositRecord is one registry entry for the externally polled deposit leg.
// Records are append-only for the session; only the status poller mutates
// their status.
type DepositRecord struct {
	ID              string        `json:"id"`
	RequestedAmount Amount        `json:"requested_amount"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	ExternalTxRef   string        `json:"external_tx_ref"`
	Status          DepositStatus `json:"status"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
