// Package guard decides whether a permission-granting (approval) step is
// needed before a workflow's action step can spend tokens.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/models"
)

// ShouldRequestPermission returns false iff the observed permission level
// already covers the required amount. The comparison is exact fixed-point over
// smallest fractional units; floats near boundary values would produce false
// negatives.
func ShouldRequestPermission(currentLevel, requiredAmount models.Amount) bool {
	return currentLevel.Cmp(requiredAmount) < 0
}

const defaultReadTimeout = 10 * time.Second

// Reader queries the live permission level. The level is external state that
// can change outside this engine (a manual approval, another session), so it
// is re-read before every workflow start and never cached across instances.
type Reader struct {
	querier chain.Querier
	timeout time.Duration
	logger  *slog.Logger
}

func NewReader(querier chain.Querier, timeout time.Duration, logger *slog.Logger) *Reader {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	return &Reader{
		querier: querier,
		timeout: timeout,
		logger:  logger.With("module", "allowance_guard"),
	}
}

// CurrentLevel reads the allowance granted by owner to spender, scaled to the
// asset's fractional-unit precision.
func (r *Reader) CurrentLevel(ctx context.Context, owner, spender common.Address, decimals uint8) (models.Amount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.querier.Query(ctx, chain.QuerySpec{
		Kind:    "allowance",
		Owner:   owner,
		Spender: spender,
	})
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to read allowance for %s: %w", spender.Hex(), err)
	}

	level, err := normalizeLevel(raw, decimals)
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to read allowance for %s: %w", spender.Hex(), err)
	}

	r.logger.DebugContext(ctx, "Read current permission level",
		"spender", spender.Hex(),
		"level", level.String())

	return level, nil
}

// normalizeLevel accepts the unit-count shapes the query binding may return.
func normalizeLevel(raw any, decimals uint8) (models.Amount, error) {
	switch value := raw.(type) {
	case *big.Int:
		return models.AmountFromUnits(value, decimals), nil
	case uint64:
		return models.AmountFromUnits(new(big.Int).SetUint64(value), decimals), nil
	case int64:
		return models.AmountFromUnits(big.NewInt(value), decimals), nil
	case string:
		units, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return models.Amount{}, fmt.Errorf("allowance %q is not an integer unit count", value)
		}

		return models.AmountFromUnits(units, decimals), nil
	default:
		return models.Amount{}, fmt.Errorf("unsupported allowance type %T", raw)
	}
}
