package exit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/marketdata"
	"intraday-scanner/internal/session"
	"intraday-scanner/internal/tradelog"
	"intraday-scanner/internal/types"
)

// Config holds the exit thresholds. All tunable, none hard-coded.
type Config struct {
	BreakevenPct   float64 // entry-relative move that lifts the stop to entry
	TrailingPct    float64 // entry-relative move that activates trailing
	TrailingFactor float64 // trailing stop as a fraction of current price
}

// TrailingStopState tracks one monitored trade. CurrentSL is monotonically
// non-decreasing for the lifetime of the state.
type TrailingStopState struct {
	TradeID            string
	OriginalSL         float64
	CurrentSL          float64
	HighestPriceSeen   float64
	BreakevenTriggered bool
	TrailingActive     bool
	Target1Alerted     bool
}

type alertQueue interface {
	Enqueue(alert types.Alert)
}

type stopLossCounter interface {
	RecordStopLossExit() int
}

// Monitor supervises every open trade once per cycle: trailing-stop
// progression, stop/target detection and time-based exits. It owns the
// per-trade state map exclusively.
type Monitor struct {
	cfg     Config
	market  *marketdata.Store
	trades  interfaces.TradeStore
	alerts  alertQueue
	breaker stopLossCounter
	clock   *session.Clock

	mu            sync.Mutex
	states        map[string]*TrailingStopState
	advisoryFired map[string]bool

	nowFn func() time.Time
}

// NewMonitor creates an exit monitor over the shared market data store.
func NewMonitor(cfg Config, market *marketdata.Store, trades interfaces.TradeStore, alerts alertQueue, breaker stopLossCounter, clock *session.Clock) *Monitor {
	return &Monitor{
		cfg:           cfg,
		market:        market,
		trades:        trades,
		alerts:        alerts,
		breaker:       breaker,
		clock:         clock,
		states:        make(map[string]*TrailingStopState),
		advisoryFired: make(map[string]bool),
		nowFn:         time.Now,
	}
}

// CheckAllTrades runs one supervision pass. A failure on one trade never
// aborts the remaining trades in the same pass.
func (m *Monitor) CheckAllTrades(ctx context.Context) {
	active, err := m.trades.GetActiveTrades(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load active trades", err)
		return
	}

	m.pruneStale(active)

	now := m.nowFn()
	mandatory := m.clock != nil && m.clock.MandatoryExitDue(now)
	advisory := m.clock != nil && m.clock.AdvisoryExitDue(now)

	for _, trade := range active {
		if trade.Status != types.TradeStatusOpen {
			continue
		}
		if mandatory {
			m.mandatoryExit(ctx, trade)
			continue
		}
		if advisory {
			m.advisoryExitWarning(ctx, trade)
		}
		m.checkTrade(ctx, trade)
	}
}

// pruneStale drops monitoring state for trades no longer active so the map
// cannot grow across sessions.
func (m *Monitor) pruneStale(active []types.TradeRecord) {
	ids := make(map[string]bool, len(active))
	for _, t := range active {
		ids[t.ID] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.states {
		if !ids[id] {
			delete(m.states, id)
			delete(m.advisoryFired, id)
		}
	}
}

// StopMonitoring releases the trade's in-memory state.
func (m *Monitor) StopMonitoring(tradeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tradeID)
	delete(m.advisoryFired, tradeID)
}

// State returns a copy of the trade's monitoring state, if present.
func (m *Monitor) State(tradeID string) (TrailingStopState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[tradeID]
	if !ok {
		return TrailingStopState{}, false
	}
	return *st, true
}

func (m *Monitor) state(trade types.TradeRecord) *TrailingStopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[trade.ID]
	if !ok {
		st = &TrailingStopState{
			TradeID:          trade.ID,
			OriginalSL:       trade.StopLoss,
			CurrentSL:        trade.StopLoss,
			HighestPriceSeen: trade.EntryPrice,
		}
		m.states[trade.ID] = st
	}
	return st
}

func (m *Monitor) checkTrade(ctx context.Context, trade types.TradeRecord) {
	tick, ok := m.market.GetTick(trade.Symbol)
	if !ok {
		// No data this cycle is a skip, not an error.
		logger.Debug(ctx, "No tick for monitored trade, skipping", "symbol", trade.Symbol, "trade_id", trade.ID)
		return
	}

	price := tick.LastPrice
	st := m.state(trade)

	if price > st.HighestPriceSeen {
		st.HighestPriceSeen = price
	}

	movePct := (price - trade.EntryPrice) / trade.EntryPrice * 100.0

	if movePct >= m.cfg.BreakevenPct && !st.BreakevenTriggered {
		st.BreakevenTriggered = true
		if trade.EntryPrice > st.CurrentSL {
			st.CurrentSL = trade.EntryPrice
		}
		logger.Info(ctx, "Stop moved to breakeven",
			"symbol", trade.Symbol,
			"trade_id", trade.ID,
			"price", price,
			"stop", st.CurrentSL,
		)
		m.enqueue(types.Alert{
			Kind:    types.AlertKindAdvisory,
			Symbol:  trade.Symbol,
			Price:   price,
			Message: fmt.Sprintf("stop moved to breakeven at %.2f", st.CurrentSL),
			Time:    m.nowFn(),
		})
	}

	if movePct >= m.cfg.TrailingPct {
		// A direct jump past the trailing threshold must also latch the
		// breakeven flag, or a pullback through the breakeven band would
		// re-fire that branch.
		st.BreakevenTriggered = true
		candidate := price * m.cfg.TrailingFactor
		if candidate > st.CurrentSL {
			st.CurrentSL = candidate
			st.TrailingActive = true
			logger.Info(ctx, "Trailing stop raised",
				"symbol", trade.Symbol,
				"trade_id", trade.ID,
				"price", price,
				"stop", st.CurrentSL,
			)
			m.enqueue(types.Alert{
				Kind:    types.AlertKindAdvisory,
				Symbol:  trade.Symbol,
				Price:   price,
				Message: fmt.Sprintf("trailing stop raised to %.2f", st.CurrentSL),
				Time:    m.nowFn(),
			})
		}
	}

	// Exit triggers, strictly in this order: stop, target-2, target-1.
	switch {
	case price <= st.CurrentSL:
		m.closeTrade(ctx, trade, price, types.ExitReasonStopLoss)
	case trade.Target2 > 0 && price >= trade.Target2:
		m.closeTrade(ctx, trade, price, types.ExitReasonTarget)
	case trade.Target1 > 0 && price >= trade.Target1 && !st.Target1Alerted:
		st.Target1Alerted = true
		m.enqueue(types.Alert{
			Kind:    types.AlertKindAdvisory,
			Symbol:  trade.Symbol,
			Price:   price,
			Message: fmt.Sprintf("target 1 (%.2f) reached, consider partial booking", trade.Target1),
			Time:    m.nowFn(),
		})
	}
}

// advisoryExitWarning fires once per trade near end of session with the
// unrealized P&L. It does not close the trade.
func (m *Monitor) advisoryExitWarning(ctx context.Context, trade types.TradeRecord) {
	m.mu.Lock()
	fired := m.advisoryFired[trade.ID]
	if !fired {
		m.advisoryFired[trade.ID] = true
	}
	m.mu.Unlock()
	if fired {
		return
	}

	tick, ok := m.market.GetTick(trade.Symbol)
	if !ok {
		return
	}
	pnl := (tick.LastPrice - trade.EntryPrice) * float64(trade.Quantity)
	m.enqueue(types.Alert{
		Kind:    types.AlertKindAdvisory,
		Symbol:  trade.Symbol,
		Price:   tick.LastPrice,
		PnL:     pnl,
		Message: "session ending, consider manual exit",
		Time:    m.nowFn(),
	})
}

// mandatoryExit unconditionally closes a still-open trade at the end of the
// session. Falls back to the entry price if no tick ever arrived.
func (m *Monitor) mandatoryExit(ctx context.Context, trade types.TradeRecord) {
	price := trade.EntryPrice
	if tick, ok := m.market.GetTick(trade.Symbol); ok {
		price = tick.LastPrice
	}
	m.closeTrade(ctx, trade, price, types.ExitReasonTimeExit)
}

func (m *Monitor) closeTrade(ctx context.Context, trade types.TradeRecord, exitPrice float64, reason string) {
	pnl := (exitPrice - trade.EntryPrice) * float64(trade.Quantity)
	pnlPct := (exitPrice - trade.EntryPrice) / trade.EntryPrice * 100.0

	if err := m.trades.CloseTrade(ctx, trade.ID, exitPrice, pnl, pnlPct, reason); err != nil {
		// Keep monitoring; a later cycle retries the close.
		logger.ErrorWithErr(ctx, "Failed to close trade", err,
			"symbol", trade.Symbol,
			"trade_id", trade.ID,
			"reason", reason,
		)
		return
	}

	logger.Exit(ctx, trade.Symbol, reason, exitPrice, pnl, pnlPct, "trade_id", trade.ID)
	_ = tradelog.AppendExit(tradelog.ExitEntry{
		Symbol:    trade.Symbol,
		TradeID:   trade.ID,
		ExitPrice: exitPrice,
		Qty:       trade.Quantity,
		PnL:       pnl,
		PnLPct:    pnlPct,
		Reason:    reason,
	})

	if reason == types.ExitReasonStopLoss && m.breaker != nil {
		m.breaker.RecordStopLossExit()
	}

	m.enqueue(types.Alert{
		Kind:    types.AlertKindExit,
		Symbol:  trade.Symbol,
		Price:   exitPrice,
		PnL:     pnl,
		PnLPct:  pnlPct,
		Reason:  reason,
		Message: fmt.Sprintf("closed %d @ %.2f (%s)", trade.Quantity, exitPrice, reason),
		Time:    m.nowFn(),
	})

	m.StopMonitoring(trade.ID)
}

func (m *Monitor) enqueue(alert types.Alert) {
	if m.alerts != nil {
		m.alerts.Enqueue(alert)
	}
}
