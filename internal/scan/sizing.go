package scan

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/types"
)

// RiskSizingStage converts ranked signals into sized final signals bounded by
// capital, per-trade risk and the position-count cap.
type RiskSizingStage struct {
	capital         float64
	perTradeRiskPct float64
	maxPositions    int
}

// NewRiskSizingStage creates the sizing stage from risk configuration.
func NewRiskSizingStage(capital, perTradeRiskPct float64, maxPositions int) *RiskSizingStage {
	return &RiskSizingStage{
		capital:         capital,
		perTradeRiskPct: perTradeRiskPct,
		maxPositions:    maxPositions,
	}
}

func (s *RiskSizingStage) Name() string { return "risk_sizing" }

func (s *RiskSizingStage) Process(ctx context.Context, sc *Context) error {
	maxPositions := s.maxPositions
	if sc.MaxPositions > 0 && sc.MaxPositions < maxPositions {
		maxPositions = sc.MaxPositions
	}

	slots := maxPositions - sc.OpenPositions
	if slots <= 0 {
		logger.Debug(ctx, "Position cap reached, no new signals sized",
			"open_positions", sc.OpenPositions,
			"max_positions", maxPositions,
		)
		return nil
	}

	for _, rc := range sc.RankedSignals {
		if len(sc.FinalSignals) >= slots {
			break
		}
		qty := s.quantityFor(rc.Candidate, sc.SizeMultiplier)
		if qty <= 0 {
			logger.Debug(ctx, "Candidate dropped, risk budget sizes to zero",
				"symbol", rc.Candidate.Symbol,
				"entry_price", rc.Candidate.EntryPrice,
			)
			continue
		}
		sc.FinalSignals = append(sc.FinalSignals, types.Signal{
			ID:        uuid.NewString(),
			Candidate: rc.Candidate,
			Score:     rc.Score,
			Stars:     rc.Stars,
			Quantity:  qty,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// quantityFor sizes a position so the stop-loss distance risks at most the
// per-trade risk budget, capped by deployable capital per slot.
func (s *RiskSizingStage) quantityFor(c types.Candidate, multiplier float64) int {
	if c.EntryPrice <= 0 {
		return 0
	}
	riskPerShare := c.EntryPrice - c.StopLoss
	if riskPerShare <= 0 {
		return 0
	}

	riskBudget := s.capital * s.perTradeRiskPct / 100.0 * multiplier
	qty := int(math.Floor(riskBudget / riskPerShare))

	// Never deploy more than an equal capital share per position slot.
	if s.maxPositions > 0 {
		capQty := int(math.Floor(s.capital / float64(s.maxPositions) / c.EntryPrice))
		if capQty < qty {
			qty = capQty
		}
	}
	return qty
}
