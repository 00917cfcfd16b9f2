package models

// QuoteSource records where a bridging fee quote came from. Fallback quotes
// can under- or over-charge and must stay visible to the operator.
type QuoteSource string

const (
	QuoteSourceQuoted   QuoteSource = "quoted"
	QuoteSourceFallback QuoteSource = "fallback"
)

// FeeQuote is the native-currency cost of one bridging attempt. Immutable,
// created per attempt and discarded after use.
type FeeQuote struct {
	Amount Amount      `json:"amount"`
	Source QuoteSource `json:"source"`
}
