// Package workflow orchestrates multi-step, multi-chain transaction pipelines:
// one parametrized state machine sequences the permission and action steps of
// every kind, advancing only on confirmation watcher events.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/eventbus"
	"github.com/vaultbridge/txflow/pkg/events"
	"github.com/vaultbridge/txflow/pkg/fees"
	"github.com/vaultbridge/txflow/pkg/guard"
	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/otelhelper"
	"github.com/vaultbridge/txflow/pkg/poller"
	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/watcher"
)

// Config wires the engine's collaborators.
type Config struct {
	Specs     map[models.WorkflowKind]models.KindSpec
	Submitter chain.Submitter
	Querier   chain.Querier
	Guard     *guard.Reader
	Watcher   *watcher.Watcher
	Fees      *fees.Resolver
	Poller    *poller.Poller
	Deposits  registry.DepositStore

	// Owner is the session account whose allowances and deposits the engine
	// manages.
	Owner common.Address

	// Tracer is optional; when set, each workflow start is traced.
	Tracer trace.Tracer
}

// StartRequest begins one workflow instance on the kind's action slot.
type StartRequest struct {
	Kind      models.WorkflowKind
	Amount    string
	Recipient common.Address
}

// Engine holds one live instance per kind slot. Different kinds may run
// concurrently, but a slot rejects new submissions until its current instance
// reaches a terminal state.
//
// The mutex guards the slot maps and instance fields only. It is never held
// across guard reads, fee resolution or operation submission, so a stalled
// external call for one kind cannot serialize the other slots or the event
// handlers. After any unlocked window the instance is re-checked by ID before
// its state is advanced.
type Engine struct {
	logger *slog.Logger
	config Config
	bus    eventbus.EventBus

	// baseCtx outlives individual requests so confirmations and polling keep
	// running after the initiating call returns.
	baseCtx context.Context

	mu    sync.Mutex
	slots map[models.WorkflowKind]*models.WorkflowInstance
	byID  map[string]*models.WorkflowInstance
}

func NewEngine(logger *slog.Logger, bus eventbus.EventBus, config Config) *Engine {
	if config.Specs == nil {
		config.Specs = DefaultKindSpecs()
	}

	return &Engine{
		logger:  logger.With("module", "workflow_engine"),
		config:  config,
		bus:     bus,
		baseCtx: context.Background(),
		slots:   make(map[models.WorkflowKind]*models.WorkflowInstance),
		byID:    make(map[string]*models.WorkflowInstance),
	}
}

// Subscribe registers the engine's transition handlers on the event bus. The
// given context becomes the base context for background confirmation and
// polling tasks.
func (e *Engine) Subscribe(ctx context.Context) error {
	e.baseCtx = ctx

	err := e.bus.Handle(events.OperationConfirmedEvent, e.handleOperationConfirmed)
	if err != nil {
		return err
	}

	return e.bus.Handle(events.OperationFailedEvent, e.handleOperationFailed)
}

// Start creates a workflow instance and issues its first step. The permission
// level is re-read on every start; when it already covers the amount, the
// permission step is skipped entirely and the action is submitted directly.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	spec, ok := e.config.Specs[req.Kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	amount, err := models.ParseAmount(req.Amount, spec.AssetDecimals)
	if err != nil {
		return nil, err
	}

	var span trace.Span

	if e.config.Tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.config.Tracer, "workflow.start",
			attribute.String(otelhelper.KindKey, string(req.Kind)))
		defer span.End()
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Status:    models.InstanceStatusIdle,
		Amount:    amount,
		Recipient: req.Recipient,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()

	if current, exists := e.slots[req.Kind]; exists {
		// Only a failed instance may be superseded. Confirmed instances free
		// their slot on transition; anything else (including an idle instance
		// still initializing) is in flight.
		if current.Status != models.InstanceStatusFailed {
			e.mu.Unlock()

			return nil, ErrWorkflowInFlight
		}

		delete(e.byID, current.ID)
	}

	e.slots[req.Kind] = instance
	e.byID[instance.ID] = instance
	e.mu.Unlock()

	logger := e.logger.With("instance_id", instance.ID, "kind", req.Kind)
	logger.InfoContext(ctx, "Starting workflow", "amount", amount.String())

	needsPermission := false
	spender := common.HexToAddress(spec.Spender)

	if spec.RequiresPermission {
		level, err := e.config.Guard.CurrentLevel(ctx, e.config.Owner, spender, spec.AssetDecimals)
		if err != nil {
			if span != nil {
				otelhelper.SetError(span, err)
			}

			e.mu.Lock()
			if _, live := e.byID[instance.ID]; live {
				e.failLocked(ctx, instance, models.ErrorCodeExecutionFailed, models.StepPermission, err)
			}
			e.mu.Unlock()

			return nil, err
		}

		needsPermission = guard.ShouldRequestPermission(level, amount)

		logger.DebugContext(ctx, "Evaluated permission guard",
			"current_level", level.String(),
			"needs_permission", needsPermission)
	}

	if !needsPermission {
		snapshot, err := e.submitAction(ctx, instance, spec)
		if err != nil && span != nil {
			otelhelper.SetError(span, err)
		}

		return snapshot, err
	}

	handle, err := e.config.Submitter.Submit(ctx, chain.Operation{
		Type:    chain.OperationApprove,
		Amount:  amount,
		Spender: spender,
	})
	if err != nil {
		if span != nil {
			otelhelper.SetError(span, err)
		}

		e.mu.Lock()
		e.absorbSubmitFailureLocked(ctx, instance, models.StepPermission, err)
		e.mu.Unlock()

		return nil, err
	}

	e.mu.Lock()
	instance.Status = models.InstanceStatusAwaitingPermission
	instance.PermissionHandle = &handle.TxHash
	instance.UpdatedAt = time.Now().UTC()
	live := e.byID[instance.ID] == instance
	snapshot := copyInstance(instance)
	e.mu.Unlock()

	if !live {
		logger.WarnContext(ctx, "Workflow cancelled during submission, terminal event will be ignored",
			"tx_hash", handle.TxHash.Hex())

		return snapshot, nil
	}

	logger.InfoContext(ctx, "Permission operation submitted", "tx_hash", handle.TxHash.Hex())

	e.config.Watcher.Watch(e.baseCtx, instance.ID, models.StepPermission, handle)

	return snapshot, nil
}

// Cancel discards the kind's current instance. Once an operation has been
// submitted the underlying transaction is not revocable; cancelling then only
// clears engine state, and the eventual terminal event is dropped as stale.
func (e *Engine) Cancel(ctx context.Context, kind models.WorkflowKind) (*models.WorkflowInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, exists := e.slots[kind]
	if !exists {
		return nil, ErrNoActiveWorkflow
	}

	if instance.PermissionHandle != nil || instance.ActionHandle != nil {
		e.logger.WarnContext(ctx, "Cancelling workflow with operation in flight, terminal event will be ignored",
			"instance_id", instance.ID,
			"kind", kind)
	}

	delete(e.slots, kind)
	delete(e.byID, instance.ID)

	return copyInstance(instance), nil
}

// Instance returns the kind's current instance, if any.
func (e *Engine) Instance(kind models.WorkflowKind) (*models.WorkflowInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, exists := e.slots[kind]
	if !exists {
		return nil, ErrNoActiveWorkflow
	}

	return copyInstance(instance), nil
}

// Instances lists the current instance of every occupied slot.
func (e *Engine) Instances() []*models.WorkflowInstance {
	e.mu.Lock()
	defer e.mu.Unlock()

	instances := make([]*models.WorkflowInstance, 0, len(e.slots))
	for _, instance := range e.slots {
		instances = append(instances, copyInstance(instance))
	}

	return instances
}

// handleOperationConfirmed is the engine's transition function for successful
// finality events. Auto-continuation (permission granted -> action submitted)
// is driven by the transition itself, never by timers.
func (e *Engine) handleOperationConfirmed(ctx context.Context, raw any) error {
	event, ok := raw.(*events.OperationConfirmed)
	if !ok {
		return nil
	}

	e.mu.Lock()

	instance, live := e.byID[event.InstanceID]
	if !live {
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "Dropping stale confirmation event",
			"instance_id", event.InstanceID,
			"tx_hash", event.TxHash)

		return nil
	}

	spec := e.config.Specs[instance.Kind]

	switch event.Step {
	case models.StepPermission:
		if instance.Status != models.InstanceStatusAwaitingPermission {
			e.mu.Unlock()

			return nil
		}

		instance.Status = models.InstanceStatusPermissionGranted
		instance.PermissionHandle = nil
		instance.UpdatedAt = time.Now().UTC()
		e.mu.Unlock()

		e.logger.InfoContext(ctx, "Permission confirmed, continuing to action step",
			"instance_id", instance.ID,
			"kind", instance.Kind)

		_, err := e.submitAction(e.baseCtx, instance, spec)
		if err != nil {
			e.logger.WarnContext(ctx, "Action submission after permission failed",
				"instance_id", instance.ID,
				"error", err)
		}
	case models.StepAction:
		if instance.Status != models.InstanceStatusAwaitingAction {
			e.mu.Unlock()

			return nil
		}

		instance.Status = models.InstanceStatusConfirmed
		instance.ActionHandle = nil
		instance.UpdatedAt = time.Now().UTC()

		// Confirmed -> idle: the slot frees and the instance is discarded.
		delete(e.slots, instance.Kind)
		delete(e.byID, instance.ID)

		finished := events.WorkflowFinished{
			BaseEvent:  e.newBaseEvent(events.WorkflowFinishedEvent),
			InstanceID: instance.ID,
			Kind:       instance.Kind,
			Duration:   time.Since(instance.CreatedAt),
		}
		e.mu.Unlock()

		e.logger.InfoContext(ctx, "Workflow confirmed",
			"instance_id", instance.ID,
			"kind", instance.Kind)

		e.publishEvent(ctx, instance.ID, finished)
	default:
		e.mu.Unlock()
	}

	return nil
}

// handleOperationFailed transitions the owning instance to failed. A failed
// step is never retried automatically; the operator resubmits, which creates
// a fresh instance. Redelivered failure events for an already terminal
// instance are dropped, not re-applied.
func (e *Engine) handleOperationFailed(ctx context.Context, raw any) error {
	event, ok := raw.(*events.OperationFailed)
	if !ok {
		return nil
	}

	e.mu.Lock()

	instance, live := e.byID[event.InstanceID]
	if !live || instance.Status.Terminal() {
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "Dropping stale failure event",
			"instance_id", event.InstanceID,
			"tx_hash", event.TxHash)

		return nil
	}

	e.failLocked(ctx, instance, models.ErrorCodeExecutionFailed, event.Step, errors.New(event.Error))
	e.mu.Unlock()

	return nil
}

// submitAction resolves the fee quote when the kind requires one, builds the
// bridging payload and submits the action step. The engine mutex must NOT be
// held: fee resolution and submission block on external calls, and the
// instance is re-checked by ID before the handle is attached.
func (e *Engine) submitAction(ctx context.Context, instance *models.WorkflowInstance, spec models.KindSpec) (*models.WorkflowInstance, error) {
	var feeQuote *models.FeeQuote

	if spec.RequiresFeeQuote {
		quote := e.config.Fees.Resolve(ctx, func(ctx context.Context) (any, error) {
			return e.config.Querier.Query(ctx, chain.QuerySpec{
				Kind: "bridge_fee",
				Params: map[string]any{
					"destination_chain_id": spec.DestinationChainID,
					"amount":               instance.Amount.String(),
				},
			})
		})

		feeQuote = &quote

		e.logger.InfoContext(ctx, "Resolved bridging fee",
			"instance_id", instance.ID,
			"fee", quote.Amount.String(),
			"source", quote.Source)
	}

	operation := chain.Operation{
		Type:               actionOperationType(instance.Kind),
		Amount:             instance.Amount,
		Recipient:          instance.Recipient,
		DestinationChainID: spec.DestinationChainID,
		// Exact-amount guarantee: no slippage tolerance is modeled.
		MinReceived: instance.Amount,
		Fee:         feeQuote,
	}

	handle, err := e.config.Submitter.Submit(ctx, operation)
	if err != nil {
		e.mu.Lock()
		e.absorbSubmitFailureLocked(ctx, instance, models.StepAction, err)
		e.mu.Unlock()

		return nil, err
	}

	e.mu.Lock()
	instance.FeeQuote = feeQuote
	instance.ActionHandle = &handle.TxHash
	instance.Status = models.InstanceStatusAwaitingAction
	instance.UpdatedAt = time.Now().UTC()
	live := e.byID[instance.ID] == instance
	snapshot := copyInstance(instance)
	e.mu.Unlock()

	if !live {
		e.logger.WarnContext(ctx, "Workflow cancelled during submission, terminal event will be ignored",
			"instance_id", instance.ID,
			"tx_hash", handle.TxHash.Hex())

		return snapshot, nil
	}

	e.logger.InfoContext(ctx, "Action operation submitted",
		"instance_id", instance.ID,
		"kind", instance.Kind,
		"tx_hash", handle.TxHash.Hex())

	e.config.Watcher.Watch(e.baseCtx, instance.ID, models.StepAction, handle)

	if spec.TracksDeposit {
		e.trackDeposit(ctx, instance, handle)
	}

	return snapshot, nil
}

// trackDeposit appends the deposit record for the polled leg and starts
// bounded polling against the external status endpoint.
func (e *Engine) trackDeposit(ctx context.Context, instance *models.WorkflowInstance, handle chain.Handle) {
	now := time.Now().UTC()
	record := &models.DepositRecord{
		ID:              uuid.NewString(),
		RequestedAmount: instance.Amount,
		SubmittedAt:     now,
		ExternalTxRef:   handle.TxHash.Hex(),
		Status:          models.DepositStatusPending,
		UpdatedAt:       now,
	}

	err := e.config.Deposits.Append(ctx, record)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append deposit record",
			"instance_id", instance.ID,
			"error", err)

		return
	}

	go func() {
		_, err := e.config.Poller.PollUntilTerminal(e.baseCtx, record.ID, record.ExternalTxRef)
		if err != nil {
			e.logger.WarnContext(e.baseCtx, "Deposit polling stopped",
				"deposit_id", record.ID,
				"error", err)
		}
	}()
}

// absorbSubmitFailureLocked applies the submission error taxonomy: an operator
// rejection resets the slot to idle quietly, a network/RPC failure resets the
// slot and surfaces the error. The slot is released only if this instance
// still owns it; a concurrent cancel may already have replaced or cleared it.
func (e *Engine) absorbSubmitFailureLocked(ctx context.Context, instance *models.WorkflowInstance, step models.Step, err error) {
	if e.slots[instance.Kind] == instance {
		delete(e.slots, instance.Kind)
	}

	delete(e.byID, instance.ID)

	if errors.Is(err, chain.ErrRejectedByOperator) {
		e.logger.InfoContext(ctx, "Operator rejected operation, workflow reset",
			"instance_id", instance.ID,
			"kind", instance.Kind,
			"step", step)

		return
	}

	e.logger.WarnContext(ctx, "Operation submission failed, workflow reset",
		"instance_id", instance.ID,
		"kind", instance.Kind,
		"step", step,
		"error", err)

	e.publishEvent(ctx, instance.ID, events.WorkflowFailed{
		BaseEvent:  e.newBaseEvent(events.WorkflowFailedEvent),
		InstanceID: instance.ID,
		Kind:       instance.Kind,
		Error: models.WorkflowError{
			Code:    models.ErrorCodeSubmissionError,
			Message: err.Error(),
			Step:    string(step),
		},
	})
}

// failLocked moves the instance to failed, clears in-flight handles and
// surfaces the structured error. Caller holds the mutex.
func (e *Engine) failLocked(ctx context.Context, instance *models.WorkflowInstance, code models.ErrorCode, step models.Step, err error) {
	instance.Status = models.InstanceStatusFailed
	instance.PermissionHandle = nil
	instance.ActionHandle = nil
	instance.LastError = &models.WorkflowError{
		Code:    code,
		Message: err.Error(),
		Step:    string(step),
	}
	instance.UpdatedAt = time.Now().UTC()

	e.logger.WarnContext(ctx, "Workflow failed",
		"instance_id", instance.ID,
		"kind", instance.Kind,
		"step", step,
		"error", err)

	e.publishEvent(ctx, instance.ID, events.WorkflowFailed{
		BaseEvent:  e.newBaseEvent(events.WorkflowFailedEvent),
		InstanceID: instance.ID,
		Kind:       instance.Kind,
		Error:      *instance.LastError,
	})
}

func (e *Engine) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	err := e.bus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish workflow event",
			"event_type", event.GetType(),
			"error", err)
	}
}

func (e *Engine) newBaseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func copyInstance(instance *models.WorkflowInstance) *models.WorkflowInstance {
	copied := *instance

	return &copied
}
