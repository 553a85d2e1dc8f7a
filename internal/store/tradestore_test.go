package store

import (
	"context"
	"testing"
	"time"

	"intraday-scanner/internal/types"
)

func testSignal(id, symbol string) types.Signal {
	return types.Signal{
		ID: id,
		Candidate: types.Candidate{
			Symbol:     symbol,
			EntryPrice: 100,
			StopLoss:   98,
			Target1:    104,
			Target2:    107,
		},
		Score:     0.7,
		Stars:     4,
		Quantity:  50,
		CreatedAt: time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestInsertSignalOpensTrade(t *testing.T) {
	s := NewPaperTradeStore()
	ctx := context.Background()

	if err := s.InsertSignal(ctx, testSignal("sig-1", "RELIANCE")); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}
	active, err := s.GetActiveTrades(ctx)
	if err != nil {
		t.Fatalf("GetActiveTrades: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active trades, want 1", len(active))
	}
	tr := active[0]
	if tr.Symbol != "RELIANCE" || tr.Quantity != 50 || tr.StopLoss != 98 {
		t.Errorf("unexpected trade record: %+v", tr)
	}
	if tr.Status != types.TradeStatusOpen {
		t.Errorf("status = %s, want %s", tr.Status, types.TradeStatusOpen)
	}
}

func TestInsertDuplicateSignalRejected(t *testing.T) {
	s := NewPaperTradeStore()
	ctx := context.Background()
	if err := s.InsertSignal(ctx, testSignal("sig-1", "RELIANCE")); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertSignal(ctx, testSignal("sig-1", "RELIANCE")); err == nil {
		t.Error("expected error on duplicate signal id")
	}
}

func TestCloseTradeRemovesFromActive(t *testing.T) {
	s := NewPaperTradeStore()
	ctx := context.Background()
	if err := s.InsertSignal(ctx, testSignal("sig-1", "RELIANCE")); err != nil {
		t.Fatal(err)
	}

	if err := s.CloseTrade(ctx, "sig-1", 104, 200, 4.0, types.ExitReasonTarget); err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	active, _ := s.GetActiveTrades(ctx)
	if len(active) != 0 {
		t.Errorf("got %d active trades after close, want 0", len(active))
	}
	closed := s.ClosedTrades()
	if len(closed) != 1 || closed[0].Status != types.TradeStatusClosed {
		t.Fatalf("unexpected closed trades: %+v", closed)
	}
	cr := closed[0]
	if cr.ExitPrice != 104 || cr.PnL != 200 || cr.PnLPct != 4.0 {
		t.Errorf("exit details not recorded: %+v", cr)
	}
	if cr.ExitReason != types.ExitReasonTarget {
		t.Errorf("ExitReason = %q, want %q", cr.ExitReason, types.ExitReasonTarget)
	}
	if cr.ExitTime.IsZero() {
		t.Error("ExitTime not set on close")
	}

	if err := s.CloseTrade(ctx, "sig-1", 104, 200, 4.0, types.ExitReasonTarget); err == nil {
		t.Error("expected error on double close")
	}
	if err := s.CloseTrade(ctx, "no-such", 104, 0, 0, types.ExitReasonTarget); err == nil {
		t.Error("expected error closing unknown trade")
	}
}
