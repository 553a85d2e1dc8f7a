package interfaces

import (
	"context"

	"intraday-scanner/internal/types"
)

// TradeStore is the persistence collaborator. Signals and trades are durable
// on the other side of this interface; the engine never owns their storage.
type TradeStore interface {
	// InsertSignal persists a final ranked signal.
	InsertSignal(ctx context.Context, sig types.Signal) error

	// GetActiveTrades returns all trades currently open.
	GetActiveTrades(ctx context.Context) ([]types.TradeRecord, error)

	// CloseTrade marks a trade closed with its exit price, realized P&L and reason.
	CloseTrade(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, reason string) error
}
