// Package poller tracks external transaction finality for legs that expose no
// local confirmation hook, by bounded polling of a remote status endpoint.
package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/eventbus"
	"github.com/vaultbridge/txflow/pkg/events"
	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/registry"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxAttempts = 30

	// DefaultMintGracePeriod is the delay between on-chain confirmation and
	// the assumed completion of the remote minting step. The mint itself has
	// no direct confirmation signal, so this transition is a documented
	// approximation, not a guarantee.
	DefaultMintGracePeriod = 2 * time.Minute
)

type Config struct {
	Interval        time.Duration
	MaxAttempts     int
	MintGracePeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.MintGracePeriod <= 0 {
		c.MintGracePeriod = DefaultMintGracePeriod
	}

	return c
}

type Poller struct {
	config    Config
	endpoint  chain.StatusEndpoint
	deposits  registry.DepositStore
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	wg        sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

func NewPoller(
	config Config,
	endpoint chain.StatusEndpoint,
	deposits registry.DepositStore,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		config:    config.withDefaults(),
		endpoint:  endpoint,
		deposits:  deposits,
		publisher: publisher,
		logger:    logger.With("module", "status_poller"),
		active:    make(map[string]struct{}),
	}
}

// MapStatus translates the raw remote status vocabulary into the canonical
// deposit lifecycle. Unknown statuses stay pending rather than failing a
// deposit that may still settle.
func MapStatus(raw string) models.DepositStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "confirmed", "completed":
		return models.DepositStatusConfirmed
	case "abort_by_miner", "abort_by_post_condition", "failed", "dropped", "dropped_replace_by_fee", "dropped_stale_garbage_collect":
		return models.DepositStatusFailed
	default:
		return models.DepositStatusPending
	}
}

// PollUntilTerminal performs up to MaxAttempts status queries spaced Interval
// apart. On confirmation it schedules the delayed Minted transition; on
// exhaustion it reports Pending (a timeout is not a failure) and the deposit
// stays resumable. At most one poll loop runs per deposit: a call for a
// deposit that is already being polled is a no-op reporting Pending, so a
// resume cannot race an in-flight loop into duplicate status events.
func (p *Poller) PollUntilTerminal(ctx context.Context, depositID, ref string) (models.DepositStatus, error) {
	logger := p.logger.With("deposit_id", depositID, "external_tx_ref", ref)

	if !p.begin(depositID) {
		logger.DebugContext(ctx, "Deposit already being polled, skipping")

		return models.DepositStatusPending, nil
	}
	defer p.end(depositID)

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		raw, err := p.endpoint.GetStatus(ctx, ref)
		if err != nil {
			logger.WarnContext(ctx, "Status query failed",
				"attempt", attempt,
				"error", err)
		} else {
			status := MapStatus(raw)

			logger.DebugContext(ctx, "Polled external status",
				"attempt", attempt,
				"raw_status", raw,
				"status", status)

			switch status {
			case models.DepositStatusConfirmed:
				p.markStatus(ctx, depositID, ref, models.DepositStatusConfirmed, logger)
				p.scheduleMint(ctx, depositID, ref, logger)

				return models.DepositStatusConfirmed, nil
			case models.DepositStatusFailed:
				p.markStatus(ctx, depositID, ref, models.DepositStatusFailed, logger)

				return models.DepositStatusFailed, nil
			case models.DepositStatusPending, models.DepositStatusMinted:
			}
		}

		if attempt == p.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return models.DepositStatusPending, ctx.Err()
		case <-time.After(p.config.Interval):
		}
	}

	logger.InfoContext(ctx, "Polling attempts exhausted, deposit stays pending",
		"max_attempts", p.config.MaxAttempts)

	return models.DepositStatusPending, nil
}

// Resume restarts polling for every pending deposit in the registry.
func (p *Poller) Resume(ctx context.Context) error {
	pending, err := p.deposits.Pending(ctx)
	if err != nil {
		return err
	}

	for _, record := range pending {
		p.wg.Add(1)

		go func(id, ref string) {
			defer p.wg.Done()

			_, err := p.PollUntilTerminal(ctx, id, ref)
			if err != nil {
				p.logger.WarnContext(ctx, "Resumed polling stopped",
					"deposit_id", id,
					"error", err)
			}
		}(record.ID, record.ExternalTxRef)
	}

	return nil
}

// Wait blocks until all background polling tasks have finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) begin(depositID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, inflight := p.active[depositID]; inflight {
		return false
	}

	p.active[depositID] = struct{}{}

	return true
}

func (p *Poller) end(depositID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, depositID)
}

// scheduleMint arms the delayed Confirmed -> Minted transition.
func (p *Poller) scheduleMint(ctx context.Context, depositID, ref string, logger *slog.Logger) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.MintGracePeriod):
		}

		p.markStatus(ctx, depositID, ref, models.DepositStatusMinted, logger)
	}()
}

func (p *Poller) markStatus(ctx context.Context, depositID, ref string, status models.DepositStatus, logger *slog.Logger) {
	_, err := p.deposits.UpdateStatus(ctx, depositID, status)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to update deposit status",
			"status", status,
			"error", err)

		return
	}

	event := events.DepositStatusChanged{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.DepositStatusChangedEvent,
			Timestamp: time.Now().UTC(),
		},
		DepositID:     depositID,
		ExternalTxRef: ref,
		Status:        status,
	}

	err = p.publisher.Publish(ctx, depositID, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish deposit status event",
			"status", status,
			"error", err)
	}
}
