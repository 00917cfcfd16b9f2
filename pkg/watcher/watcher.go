// Package watcher observes the finality of submitted operations and raises
// exactly one terminal event per handle on the event bus.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/eventbus"
	"github.com/vaultbridge/txflow/pkg/events"
	"github.com/vaultbridge/txflow/pkg/models"
)

type terminal struct {
	outcome chain.Outcome
	message string
}

// Watcher awaits confirmation once per handle and publishes the terminal
// outcome. Watching an already-resolved handle replays the terminal event
// instead of hanging or awaiting twice.
type Watcher struct {
	source    chain.ConfirmationSource
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	mu       sync.Mutex
	resolved map[common.Hash]terminal
	inflight map[common.Hash]struct{}
}

func NewWatcher(source chain.ConfirmationSource, publisher eventbus.EventPublisher, logger *slog.Logger) *Watcher {
	return &Watcher{
		source:    source,
		publisher: publisher,
		logger:    logger.With("module", "confirmation_watcher"),
		resolved:  make(map[common.Hash]terminal),
		inflight:  make(map[common.Hash]struct{}),
	}
}

// Watch subscribes to the finality of a submitted operation. The terminal
// event carries the owning instance and step so the workflow engine can feed
// it into its transition function.
func (w *Watcher) Watch(ctx context.Context, instanceID string, step models.Step, handle chain.Handle) {
	w.mu.Lock()

	if result, ok := w.resolved[handle.TxHash]; ok {
		w.mu.Unlock()
		w.publish(ctx, instanceID, step, handle, result)

		return
	}

	if _, ok := w.inflight[handle.TxHash]; ok {
		w.mu.Unlock()

		return
	}

	w.inflight[handle.TxHash] = struct{}{}
	w.mu.Unlock()

	go w.await(ctx, instanceID, step, handle)
}

func (w *Watcher) await(ctx context.Context, instanceID string, step models.Step, handle chain.Handle) {
	outcome, err := w.source.AwaitConfirmation(ctx, handle)

	result := terminal{outcome: outcome}
	if err != nil {
		result = terminal{outcome: chain.OutcomeFailed, message: err.Error()}
	} else if outcome == chain.OutcomeFailed {
		result.message = "operation finalized as failed"
	}

	w.mu.Lock()
	w.resolved[handle.TxHash] = result
	delete(w.inflight, handle.TxHash)
	w.mu.Unlock()

	w.publish(ctx, instanceID, step, handle, result)
}

func (w *Watcher) publish(ctx context.Context, instanceID string, step models.Step, handle chain.Handle, result terminal) {
	base := events.BaseEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}

	var (
		event eventbus.Event
		err   error
	)

	if result.outcome == chain.OutcomeConfirmed {
		base.Type = events.OperationConfirmedEvent
		event = events.OperationConfirmed{
			BaseEvent:  base,
			InstanceID: instanceID,
			Step:       step,
			TxHash:     handle.TxHash.Hex(),
		}
	} else {
		base.Type = events.OperationFailedEvent
		event = events.OperationFailed{
			BaseEvent:  base,
			InstanceID: instanceID,
			Step:       step,
			TxHash:     handle.TxHash.Hex(),
			Error:      result.message,
		}
	}

	err = w.publisher.Publish(ctx, instanceID, event)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish terminal event",
			"instance_id", instanceID,
			"tx_hash", handle.TxHash.Hex(),
			"error", err)
	}
}
