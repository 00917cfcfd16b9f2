package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusIdle               InstanceStatus = "idle"
	InstanceStatusAwaitingPermission InstanceStatus = "awaiting_permission"
	InstanceStatusPermissionGranted  InstanceStatus = "permission_granted"
	InstanceStatusAwaitingAction     InstanceStatus = "awaiting_action"
	InstanceStatusConfirmed          InstanceStatus = "confirmed"
	InstanceStatusFailed             InstanceStatus = "failed"
)

// Terminal reports whether the status allows a new submission on the same
// action slot.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusIdle || s == InstanceStatusConfirmed || s == InstanceStatusFailed
}

// ErrorCode classifies workflow failures surfaced to the operator.
type ErrorCode string

const (
	ErrorCodeOperatorRejected ErrorCode = "operator_rejected"
	ErrorCodeSubmissionError  ErrorCode = "submission_error"
	ErrorCodeExecutionFailed  ErrorCode = "execution_failed"
	ErrorCodeInvalidAmount    ErrorCode = "invalid_amount"
)

// WorkflowError is the structured error attached to a failed instance.
type WorkflowError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
}

func (e *WorkflowError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// WorkflowInstance tracks one user-initiated multi-step transaction pipeline.
// Instances live in memory for the session only; they are mutated exclusively
// by the workflow engine in response to guard, resolver and watcher results.
//
// Invariant: at most one of PermissionHandle/ActionHandle is unresolved at a
// time, and the status always matches handle presence (awaiting_action implies
// ActionHandle is set).
type WorkflowInstance struct {
	ID               string         `json:"id"`
	Kind             WorkflowKind   `json:"kind"`
	Status           InstanceStatus `json:"status"`
	Amount           Amount         `json:"amount"`
	Recipient        common.Address `json:"recipient,omitempty"`
	PermissionHandle *common.Hash   `json:"permission_handle,omitempty"`
	ActionHandle     *common.Hash   `json:"action_handle,omitempty"`
	FeeQuote         *FeeQuote      `json:"fee_quote,omitempty"`
	LastError        *WorkflowError `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
