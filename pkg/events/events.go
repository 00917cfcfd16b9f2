// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/vaultbridge/txflow/pkg/models"
)

type EventType string

// Topic carries all workflow lifecycle events.
const Topic = "txflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Operation finality events, raised once per handle by the confirmation
	// watcher.
	OperationConfirmedEvent EventType = "operation.confirmed"
	OperationFailedEvent    EventType = "operation.failed"

	// Workflow lifecycle events.
	WorkflowFinishedEvent EventType = "workflow.finished"
	WorkflowFailedEvent   EventType = "workflow.failed"

	// Polled deposit leg events.
	DepositStatusChangedEvent EventType = "deposit.status.changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OperationConfirmed signals that a submitted operation finalized
// successfully.
type OperationConfirmed struct {
	BaseEvent

	InstanceID string      `json:"instance_id"`
	Step       models.Step `json:"step"`
	TxHash     string      `json:"tx_hash"`
}

func (o OperationConfirmed) GetType() EventType {
	return OperationConfirmedEvent
}

// OperationFailed signals that a submitted operation finalized as failed.
type OperationFailed struct {
	BaseEvent

	InstanceID string      `json:"instance_id"`
	Step       models.Step `json:"step"`
	TxHash     string      `json:"tx_hash"`
	Error      string      `json:"error"`
}

func (o OperationFailed) GetType() EventType {
	return OperationFailedEvent
}

type WorkflowFinished struct {
	BaseEvent

	InstanceID string              `json:"instance_id"`
	Kind       models.WorkflowKind `json:"kind"`
	Duration   time.Duration       `json:"duration"`
}

func (w WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	InstanceID string               `json:"instance_id"`
	Kind       models.WorkflowKind  `json:"kind"`
	Error      models.WorkflowError `json:"error"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

type DepositStatusChanged struct {
	BaseEvent

	DepositID     string               `json:"deposit_id"`
	ExternalTxRef string               `json:"external_tx_ref"`
	Status        models.DepositStatus `json:"status"`
}

func (d DepositStatusChanged) GetType() EventType {
	return DepositStatusChangedEvent
}
