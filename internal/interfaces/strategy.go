package interfaces

import (
	"context"

	"intraday-scanner/internal/types"
)

// Strategy evaluates the current market snapshot and proposes candidate
// setups. Implementations are opaque to the pipeline: it only collects,
// deduplicates and ranks what they produce.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, snap types.MarketSnapshot) []types.Candidate
}
