package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/eventbus"
	"github.com/vaultbridge/txflow/pkg/events"
	"github.com/vaultbridge/txflow/pkg/fees"
	"github.com/vaultbridge/txflow/pkg/guard"
	"github.com/vaultbridge/txflow/pkg/mocks"
	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/poller"
	"github.com/vaultbridge/txflow/pkg/registry/memory"
	"github.com/vaultbridge/txflow/pkg/watcher"
	"github.com/vaultbridge/txflow/pkg/workflow"
)

// fakeBus records every published event and delivers it to the registered
// handler asynchronously, like the real transport does.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[events.EventType]eventbus.EventHandler
	published []eventbus.Event
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers: make(map[events.EventType]eventbus.EventHandler),
	}
}

func (b *fakeBus) Publish(ctx context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handler := b.handlers[event.GetType()]
	b.mu.Unlock()

	if handler != nil {
		go func() {
			_ = handler(context.WithoutCancel(ctx), asPointer(event))
		}()
	}

	return nil
}

func (b *fakeBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = handler

	return nil
}

func (b *fakeBus) Subscribe(context.Context) error { return nil }
func (b *fakeBus) Close() error                    { return nil }
func (b *fakeBus) GenerateID() string              { return "test-id" }

func (b *fakeBus) eventsOfType(eventType events.EventType) []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := make([]eventbus.Event, 0)

	for _, event := range b.published {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

// Subscribed handlers receive decoded pointers.
func asPointer(event eventbus.Event) any {
	switch e := event.(type) {
	case events.OperationConfirmed:
		return &e
	case events.OperationFailed:
		return &e
	default:
		return event
	}
}

type engineFixture struct {
	engine    *workflow.Engine
	bus       *fakeBus
	submitter *mocks.MockSubmitter
	querier   *mocks.MockQuerier
	source    *mocks.MockConfirmationSource
	endpoint  *mocks.MockStatusEndpoint
	deposits  *memory.Store
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := slog.Default()
	bus := newFakeBus()
	submitter := &mocks.MockSubmitter{}
	querier := &mocks.MockQuerier{}
	source := &mocks.MockConfirmationSource{}
	endpoint := &mocks.MockStatusEndpoint{}
	deposits := memory.NewStore()

	engine := workflow.NewEngine(logger, bus, workflow.Config{
		Submitter: submitter,
		Querier:   querier,
		Guard:     guard.NewReader(querier, time.Second, logger),
		Watcher:   watcher.NewWatcher(source, bus, logger),
		Fees:      fees.NewResolver(50*time.Millisecond, fees.DefaultFallbackFee(), logger),
		Poller: poller.NewPoller(
			poller.Config{
				Interval:        time.Millisecond,
				MaxAttempts:     3,
				MintGracePeriod: time.Millisecond,
			},
			endpoint,
			deposits,
			bus,
			logger,
		),
		Deposits: deposits,
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	})

	require.NoError(t, engine.Subscribe(t.Context()))

	return &engineFixture{
		engine:    engine,
		bus:       bus,
		submitter: submitter,
		querier:   querier,
		source:    source,
		endpoint:  endpoint,
		deposits:  deposits,
	}
}

func queryOfKind(kind string) any {
	return mock.MatchedBy(func(spec chain.QuerySpec) bool {
		return spec.Kind == kind
	})
}

func operationOfType(opType chain.OperationType) any {
	return mock.MatchedBy(func(op chain.Operation) bool {
		return op.Type == opType
	})
}

func (f *engineFixture) submittedOperation(t *testing.T, opType chain.OperationType) chain.Operation {
	t.Helper()

	for _, call := range f.submitter.Calls {
		op := call.Arguments.Get(1).(chain.Operation)
		if op.Type == opType {
			return op
		}
	}

	t.Fatalf("no submitted operation of type %s", opType)

	return chain.Operation{}
}

func TestEngine_TwoStepFlowRunsToCompletion(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	approveHandle := chain.Handle{TxHash: common.HexToHash("0xa1"), Type: chain.OperationApprove}
	actionHandle := chain.Handle{TxHash: common.HexToHash("0xa2"), Type: chain.OperationBridgeTransfer}

	f.querier.On("Query", mock.Anything, queryOfKind("allowance")).Return("0", nil).Once()
	f.querier.On("Query", mock.Anything, queryOfKind("bridge_fee")).Return("2000000000000000000", nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationApprove)).Return(approveHandle, nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationBridgeTransfer)).Return(actionHandle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, approveHandle).Return(chain.OutcomeConfirmed, nil)
	f.source.On("AwaitConfirmation", mock.Anything, actionHandle).Return(chain.OutcomeConfirmed, nil)

	instance, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindBridgeSend,
		Amount: "1.5",
	})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusAwaitingPermission, instance.Status)
	require.NotNil(t, instance.PermissionHandle)
	assert.Equal(t, approveHandle.TxHash, *instance.PermissionHandle)

	require.Eventually(t, func() bool {
		return len(f.bus.eventsOfType(events.WorkflowFinishedEvent)) == 1
	}, time.Second, 5*time.Millisecond)

	// Confirmed workflows free their slot immediately.
	_, err = f.engine.Instance(models.KindBridgeSend)
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	f.submitter.AssertNumberOfCalls(t, "Submit", 2)

	action := f.submittedOperation(t, chain.OperationBridgeTransfer)
	require.NotNil(t, action.Fee)
	assert.Equal(t, models.QuoteSourceQuoted, action.Fee.Source)
	assert.Equal(t, "2", action.Fee.Amount.String())
	assert.Equal(t, 0, action.MinReceived.Cmp(action.Amount))
}

func TestEngine_SkipsPermissionWhenLevelCovers(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	handle := chain.Handle{TxHash: common.HexToHash("0xb1"), Type: chain.OperationVaultDeposit}

	// The current level equals the requested amount exactly; the comparison is
	// level >= amount, so the permission step is skipped.
	f.querier.On("Query", mock.Anything, queryOfKind("allowance")).Return("2000000000000000000", nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationVaultDeposit)).Return(handle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, handle).Return(chain.OutcomeConfirmed, nil)

	instance, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindVaultDeposit,
		Amount: "2",
	})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusAwaitingAction, instance.Status)
	assert.Nil(t, instance.PermissionHandle)
	require.NotNil(t, instance.ActionHandle)

	require.Eventually(t, func() bool {
		return len(f.bus.eventsOfType(events.WorkflowFinishedEvent)) == 1
	}, time.Second, 5*time.Millisecond)

	f.submitter.AssertNumberOfCalls(t, "Submit", 1)
}

func TestEngine_ActionFailureIsTerminalAndResubmittable(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	failing := chain.Handle{TxHash: common.HexToHash("0xc1"), Type: chain.OperationRentHarvest}
	retry := chain.Handle{TxHash: common.HexToHash("0xc2"), Type: chain.OperationRentHarvest}

	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(failing, nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(retry, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, failing).Return(chain.OutcomeFailed, nil)
	f.source.On("AwaitConfirmation", mock.Anything, retry).Return(chain.OutcomeConfirmed, nil)

	first, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindRentHarvest,
		Amount: "1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		instance, err := f.engine.Instance(models.KindRentHarvest)

		return err == nil && instance.Status == models.InstanceStatusFailed
	}, time.Second, 5*time.Millisecond)

	failed, err := f.engine.Instance(models.KindRentHarvest)
	require.NoError(t, err)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, models.ErrorCodeExecutionFailed, failed.LastError.Code)
	assert.Nil(t, failed.ActionHandle)
	assert.Len(t, f.bus.eventsOfType(events.WorkflowFailedEvent), 1)

	// A failed slot accepts a fresh submission; no automatic retry happened.
	second, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindRentHarvest,
		Amount: "1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngine_PermissionFailureNeverSubmitsAction(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	approveHandle := chain.Handle{TxHash: common.HexToHash("0xc9"), Type: chain.OperationApprove}

	f.querier.On("Query", mock.Anything, queryOfKind("allowance")).Return("0", nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationApprove)).Return(approveHandle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, approveHandle).Return(chain.OutcomeFailed, nil)

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindVaultDeposit,
		Amount: "1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		instance, err := f.engine.Instance(models.KindVaultDeposit)

		return err == nil && instance.Status == models.InstanceStatusFailed
	}, time.Second, 5*time.Millisecond)

	failed, err := f.engine.Instance(models.KindVaultDeposit)
	require.NoError(t, err)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, models.ErrorCodeExecutionFailed, failed.LastError.Code)

	// Only the permission submission happened.
	f.submitter.AssertNumberOfCalls(t, "Submit", 1)
}

func TestEngine_RejectsConcurrentSameKind(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	release := make(chan time.Time)
	t.Cleanup(func() { close(release) })

	harvestHandle := chain.Handle{TxHash: common.HexToHash("0xd1"), Type: chain.OperationRentHarvest}
	navHandle := chain.Handle{TxHash: common.HexToHash("0xd2"), Type: chain.OperationNavUpdate}

	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(harvestHandle, nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationNavUpdate)).Return(navHandle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, mock.Anything).WaitUntil(release).Return(chain.OutcomeConfirmed, nil)

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "1"})
	require.NoError(t, err)

	_, err = f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "2"})
	assert.ErrorIs(t, err, workflow.ErrWorkflowInFlight)

	// Different kinds occupy independent slots.
	_, err = f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindNavUpdate, Amount: "1"})
	require.NoError(t, err)

	assert.Len(t, f.engine.Instances(), 2)
}

// submitFunc adapts a function to the chain.Submitter interface.
type submitFunc func(ctx context.Context, op chain.Operation) (chain.Handle, error)

func (f submitFunc) Submit(ctx context.Context, op chain.Operation) (chain.Handle, error) {
	return f(ctx, op)
}

func TestEngine_StalledSubmissionDoesNotBlockOtherKinds(t *testing.T) {
	t.Parallel()

	logger := slog.Default()
	bus := newFakeBus()
	querier := &mocks.MockQuerier{}
	deposits := memory.NewStore()

	confirm := make(chan time.Time)
	t.Cleanup(func() { close(confirm) })

	source := &mocks.MockConfirmationSource{}
	source.On("AwaitConfirmation", mock.Anything, mock.Anything).
		WaitUntil(confirm).
		Return(chain.OutcomeConfirmed, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	submitter := submitFunc(func(_ context.Context, op chain.Operation) (chain.Handle, error) {
		if op.Type == chain.OperationRentHarvest {
			close(entered)
			<-release

			return chain.Handle{TxHash: common.HexToHash("0x91"), Type: op.Type}, nil
		}

		return chain.Handle{TxHash: common.HexToHash("0x92"), Type: op.Type}, nil
	})

	engine := workflow.NewEngine(logger, bus, workflow.Config{
		Submitter: submitter,
		Querier:   querier,
		Guard:     guard.NewReader(querier, time.Second, logger),
		Watcher:   watcher.NewWatcher(source, bus, logger),
		Fees:      fees.NewResolver(50*time.Millisecond, fees.DefaultFallbackFee(), logger),
		Poller: poller.NewPoller(
			poller.Config{Interval: time.Millisecond, MaxAttempts: 1, MintGracePeriod: time.Millisecond},
			&mocks.MockStatusEndpoint{},
			deposits,
			bus,
			logger,
		),
		Deposits: deposits,
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	})
	require.NoError(t, engine.Subscribe(t.Context()))

	go func() {
		_, _ = engine.Start(context.WithoutCancel(t.Context()), workflow.StartRequest{
			Kind:   models.KindRentHarvest,
			Amount: "1",
		})
	}()
	<-entered

	// A submission stalled on one kind must not serialize the other slots.
	done := make(chan error, 1)

	go func() {
		_, err := engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindNavUpdate, Amount: "1"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("starting an unrelated kind blocked behind a stalled submission")
	}

	// The stalled kind's slot stays reserved while its submission is in flight.
	_, err := engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "2"})
	assert.ErrorIs(t, err, workflow.ErrWorkflowInFlight)
}

func TestEngine_ReplayedFailureForSupersededInstanceIsDropped(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	failing := chain.Handle{TxHash: common.HexToHash("0xc5"), Type: chain.OperationRentHarvest}
	retry := chain.Handle{TxHash: common.HexToHash("0xc6"), Type: chain.OperationRentHarvest}

	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(failing, nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(retry, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, failing).Return(chain.OutcomeFailed, nil)
	f.source.On("AwaitConfirmation", mock.Anything, retry).Return(chain.OutcomeConfirmed, nil)

	first, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		instance, err := f.engine.Instance(models.KindRentHarvest)

		return err == nil && instance.Status == models.InstanceStatusFailed
	}, time.Second, 5*time.Millisecond)

	require.Len(t, f.bus.eventsOfType(events.WorkflowFailedEvent), 1)

	staleFailure := events.OperationFailed{
		BaseEvent: events.BaseEvent{
			ID:        "redelivery-1",
			Type:      events.OperationFailedEvent,
			Timestamp: time.Now().UTC(),
		},
		InstanceID: first.ID,
		Step:       models.StepAction,
		TxHash:     failing.TxHash.Hex(),
		Error:      "operation finalized as failed",
	}

	// A redelivered failure for the already failed instance is not re-applied.
	require.NoError(t, f.bus.Publish(t.Context(), first.ID, staleFailure))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.bus.eventsOfType(events.WorkflowFailedEvent), 1)

	// Resubmitting the kind discards the failed instance entirely.
	second, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "1"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// Replaying the superseded instance's failure must not touch the live
	// workflow or raise another failure event.
	require.NoError(t, f.bus.Publish(t.Context(), first.ID, staleFailure))

	require.Eventually(t, func() bool {
		return len(f.bus.eventsOfType(events.WorkflowFinishedEvent)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, f.bus.eventsOfType(events.WorkflowFailedEvent), 1)
	assert.Empty(t, f.engine.Instances())
}

func TestEngine_RejectsInvalidAmountBeforeSubmission(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	tests := []struct {
		name   string
		kind   models.WorkflowKind
		amount string
	}{
		{"malformed", models.KindBridgeSend, "abc"},
		{"negative", models.KindBridgeSend, "-1"},
		{"excess precision", models.KindStacksDeposit, "0.123456789"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: tc.kind, Amount: tc.amount})
			require.ErrorIs(t, err, models.ErrInvalidAmount)

			_, err = f.engine.Instance(tc.kind)
			assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)
		})
	}

	f.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestEngine_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: "teleport", Amount: "1"})
	assert.ErrorIs(t, err, workflow.ErrUnknownKind)
}

func TestEngine_OperatorRejectionResetsQuietly(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	f.querier.On("Query", mock.Anything, queryOfKind("allowance")).Return("0", nil)
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationApprove)).
		Return(chain.Handle{}, chain.ErrRejectedByOperator).
		Once()

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindVaultDeposit, Amount: "1"})
	require.ErrorIs(t, err, chain.ErrRejectedByOperator)

	// The slot is free again and no failure event was raised.
	_, err = f.engine.Instance(models.KindVaultDeposit)
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)
	assert.Empty(t, f.bus.eventsOfType(events.WorkflowFailedEvent))
}

func TestEngine_SubmissionErrorResetsAndSurfaces(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	submitErr := errors.New("rpc: connection refused")

	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).
		Return(chain.Handle{}, submitErr).
		Once()

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "1"})
	require.ErrorIs(t, err, submitErr)

	_, err = f.engine.Instance(models.KindRentHarvest)
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	failures := f.bus.eventsOfType(events.WorkflowFailedEvent)
	require.Len(t, failures, 1)

	failure, ok := failures[0].(events.WorkflowFailed)
	require.True(t, ok)
	assert.Equal(t, models.ErrorCodeSubmissionError, failure.Error.Code)
}

func TestEngine_CancelDropsLateTerminalEvent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	release := make(chan time.Time)
	handle := chain.Handle{TxHash: common.HexToHash("0xe1"), Type: chain.OperationRentHarvest}

	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationRentHarvest)).Return(handle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, handle).WaitUntil(release).Return(chain.OutcomeConfirmed, nil)

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{Kind: models.KindRentHarvest, Amount: "1"})
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(t.Context(), models.KindRentHarvest)
	require.NoError(t, err)
	require.NotNil(t, cancelled.ActionHandle)

	_, err = f.engine.Instance(models.KindRentHarvest)
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	_, err = f.engine.Cancel(t.Context(), models.KindRentHarvest)
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	// The confirmation arriving after cancellation is stale and must not
	// resurrect the instance or finish the workflow.
	close(release)

	require.Eventually(t, func() bool {
		return len(f.bus.eventsOfType(events.OperationConfirmedEvent)) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.bus.eventsOfType(events.WorkflowFinishedEvent))
	assert.Empty(t, f.engine.Instances())
}

func TestEngine_TrackedDepositFlowWithFallbackFee(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)

	approveHandle := chain.Handle{TxHash: common.HexToHash("0xf1"), Type: chain.OperationApprove}
	actionHandle := chain.Handle{TxHash: common.HexToHash("0xf2"), Type: chain.OperationStacksDeposit}

	f.querier.On("Query", mock.Anything, queryOfKind("allowance")).Return("0", nil).Once()
	f.querier.On("Query", mock.Anything, queryOfKind("bridge_fee")).
		Return(nil, errors.New("quote endpoint down")).
		Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationApprove)).Return(approveHandle, nil).Once()
	f.submitter.On("Submit", mock.Anything, operationOfType(chain.OperationStacksDeposit)).Return(actionHandle, nil).Once()
	f.source.On("AwaitConfirmation", mock.Anything, approveHandle).Return(chain.OutcomeConfirmed, nil)
	f.source.On("AwaitConfirmation", mock.Anything, actionHandle).Return(chain.OutcomeConfirmed, nil)
	f.endpoint.On("GetStatus", mock.Anything, actionHandle.TxHash.Hex()).Return("success", nil)

	_, err := f.engine.Start(t.Context(), workflow.StartRequest{
		Kind:   models.KindStacksDeposit,
		Amount: "0.5",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.bus.eventsOfType(events.WorkflowFinishedEvent)) == 1
	}, time.Second, 5*time.Millisecond)

	// The fee quote fell back; the source stays visible on the operation.
	action := f.submittedOperation(t, chain.OperationStacksDeposit)
	require.NotNil(t, action.Fee)
	assert.Equal(t, models.QuoteSourceFallback, action.Fee.Source)

	// The deposit leg was registered and reached the minted state through the
	// external status poller.
	require.Eventually(t, func() bool {
		records, err := f.deposits.List(t.Context())
		if err != nil || len(records) != 1 {
			return false
		}

		return records[0].Status == models.DepositStatusMinted
	}, time.Second, 5*time.Millisecond)

	records, err := f.deposits.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, actionHandle.TxHash.Hex(), records[0].ExternalTxRef)
}
