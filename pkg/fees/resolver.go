// Package fees resolves the native-currency cost quote for a bridging
// operation, with a conservative fixed fallback when the quote call itself is
// unreliable. A missing quote must never block the workflow.
package fees

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/vaultbridge/txflow/pkg/models"
)

const (
	// DefaultTimeout bounds the remote quote call.
	DefaultTimeout = 5 * time.Second

	// NativeDecimals is the fractional-unit precision of the native currency.
	NativeDecimals uint8 = 18
)

// DefaultFallbackFee returns the configured conservative fallback of 0.001
// native currency, used whenever the remote quote is unavailable. A fallback
// quote can under- or over-charge, so its source stays visible to the
// operator.
func DefaultFallbackFee() models.Amount {
	return models.AmountFromUnits(big.NewInt(1_000_000_000_000_000), NativeDecimals)
}

// QuoteFunc is the external read-only query for the bridging cost.
type QuoteFunc func(ctx context.Context) (any, error)

type Resolver struct {
	timeout  time.Duration
	fallback models.Amount
	logger   *slog.Logger
}

func NewResolver(timeout time.Duration, fallback models.Amount, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if fallback.IsZero() {
		fallback = DefaultFallbackFee()
	}

	return &Resolver{
		timeout:  timeout,
		fallback: fallback,
		logger:   logger.With("module", "fee_resolver"),
	}
}

// Resolve invokes the quote call with a bounded timeout and normalizes the
// result. Any failure (timeout, revert, malformed response, panic inside the
// binding) yields the fallback quote instead of an error.
func (r *Resolver) Resolve(ctx context.Context, quote QuoteFunc) (feeQuote models.FeeQuote) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.WarnContext(ctx, "Fee quote call panicked, using fallback", "panic", recovered)

			feeQuote = models.FeeQuote{Amount: r.fallback, Source: models.QuoteSourceFallback}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := quote(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Fee quote unavailable, using fallback",
			"error", err,
			"fallback", r.fallback.String())

		return models.FeeQuote{Amount: r.fallback, Source: models.QuoteSourceFallback}
	}

	amount, err := normalizeFee(raw, r.fallback.Decimals())
	if err != nil {
		r.logger.WarnContext(ctx, "Malformed fee quote, using fallback",
			"error", err,
			"fallback", r.fallback.String())

		return models.FeeQuote{Amount: r.fallback, Source: models.QuoteSourceFallback}
	}

	return models.FeeQuote{Amount: amount, Source: models.QuoteSourceQuoted}
}

// normalizeFee extracts the native-fee component from the shapes the remote
// protocol is known to return: a bare unit count, a (nativeFee, tokenFee)
// tuple, or a structured record.
func normalizeFee(raw any, decimals uint8) (models.Amount, error) {
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
			return models.Amount{}, fmt.Errorf("fee %q is not an integer unit count", value)
		}

		return models.AmountFromUnits(units, decimals), nil
	case []any:
		if len(value) == 0 {
			return models.Amount{}, fmt.Errorf("empty fee tuple")
		}

		// The native-fee component is the first element of the tuple.
		return normalizeFee(value[0], decimals)
	case map[string]any:
		for _, key := range []string{"nativeFee", "native_fee", "fee"} {
			if component, ok := value[key]; ok {
				return normalizeFee(component, decimals)
			}
		}

		return models.Amount{}, fmt.Errorf("fee record has no native-fee component")
	default:
		return models.Amount{}, fmt.Errorf("unsupported fee type %T", raw)
	}
}
