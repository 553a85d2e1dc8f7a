package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/types"
)

// PaperTradeStore holds signals and their paper trades in memory. Every
// accepted signal opens a simulated position at its entry price; durable
// journaling is the trade log's job, this store only tracks live state.
type PaperTradeStore struct {
	mu     sync.RWMutex
	trades map[string]*types.TradeRecord
	closed []types.TradeRecord
}

var _ interfaces.TradeStore = (*PaperTradeStore)(nil)

func NewPaperTradeStore() *PaperTradeStore {
	return &PaperTradeStore{
		trades: make(map[string]*types.TradeRecord),
	}
}

// InsertSignal opens a paper trade for the signal.
func (s *PaperTradeStore) InsertSignal(ctx context.Context, sig types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[sig.ID]; exists {
		return fmt.Errorf("signal %s already recorded", sig.ID)
	}
	ensureCreatedAt(&sig)
	s.trades[sig.ID] = &types.TradeRecord{
		ID:         sig.ID,
		Symbol:     sig.Candidate.Symbol,
		EntryPrice: sig.Candidate.EntryPrice,
		Quantity:   sig.Quantity,
		StopLoss:   sig.Candidate.StopLoss,
		Target1:    sig.Candidate.Target1,
		Target2:    sig.Candidate.Target2,
		Status:     types.TradeStatusOpen,
		EntryTime:  sig.CreatedAt,
	}
	return nil
}

// GetActiveTrades returns copies of all open trades.
func (s *PaperTradeStore) GetActiveTrades(ctx context.Context) ([]types.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]types.TradeRecord, 0, len(s.trades))
	for _, t := range s.trades {
		if t.Status == types.TradeStatusOpen {
			active = append(active, *t)
		}
	}
	return active, nil
}

// CloseTrade marks a trade closed. Closing an unknown or already-closed
// trade is an error; the exit monitor relies on that to avoid double exits.
func (s *PaperTradeStore) CloseTrade(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return fmt.Errorf("trade %s not found", id)
	}
	if t.Status != types.TradeStatusOpen {
		return fmt.Errorf("trade %s already closed", id)
	}
	t.Status = types.TradeStatusClosed
	t.ExitPrice = exitPrice
	t.PnL = pnl
	t.PnLPct = pnlPct
	t.ExitReason = reason
	t.ExitTime = time.Now()
	s.closed = append(s.closed, *t)
	delete(s.trades, id)
	return nil
}

// ClosedTrades returns copies of the day's closed trades.
func (s *PaperTradeStore) ClosedTrades() []types.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TradeRecord, len(s.closed))
	copy(out, s.closed)
	return out
}

// OpenCount returns the number of open trades.
func (s *PaperTradeStore) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// signal timestamps default to now when the pipeline left them zero
func ensureCreatedAt(sig *types.Signal) {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
}
