package strategy

import (
	"context"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/types"
)

// GapAndGoConfig tunes the gap-and-go evaluator.
type GapAndGoConfig struct {
	MinGapPct      float64 // minimum open gap over previous close
	MinVolumeRatio float64 // minimum day volume vs average daily volume
	StopLossPct    float64 // initial stop distance below entry
	Target1R       float64 // target 1 as a multiple of risk
	Target2R       float64 // target 2 as a multiple of risk
}

// DefaultGapAndGoConfig returns the standard tuning.
func DefaultGapAndGoConfig() GapAndGoConfig {
	return GapAndGoConfig{
		MinGapPct:      3.0,
		MinVolumeRatio: 1.0,
		StopLossPct:    2.0,
		Target1R:       2.0,
		Target2R:       3.5,
	}
}

// GapAndGo proposes longs on stocks gapping up from the previous close with
// supporting volume.
type GapAndGo struct {
	cfg GapAndGoConfig
}

var _ interfaces.Strategy = (*GapAndGo)(nil)

// NewGapAndGo creates the evaluator.
func NewGapAndGo(cfg GapAndGoConfig) *GapAndGo {
	return &GapAndGo{cfg: cfg}
}

func (s *GapAndGo) Name() string { return "gap-and-go" }

func (s *GapAndGo) Evaluate(ctx context.Context, snap types.MarketSnapshot) []types.Candidate {
	var out []types.Candidate
	for _, symbol := range sortedSymbols(snap) {
		tick := snap.Ticks[symbol]
		ref, ok := snap.References[symbol]
		if !ok || ref.PrevClose <= 0 {
			continue
		}

		gapPct := (tick.LastPrice - ref.PrevClose) / ref.PrevClose * 100.0
		if gapPct < s.cfg.MinGapPct {
			continue
		}

		volumeRatio := 0.0
		if ref.AvgDailyVolume > 0 {
			volumeRatio = float64(snap.Volumes[symbol]) / ref.AvgDailyVolume
		}
		if volumeRatio < s.cfg.MinVolumeRatio {
			continue
		}

		distancePct := 0.0
		if ref.PrevHigh > 0 {
			distancePct = (tick.LastPrice - ref.PrevHigh) / ref.PrevHigh * 100.0
		}

		entry := tick.LastPrice
		stop := entry * (1.0 - s.cfg.StopLossPct/100.0)
		risk := entry - stop
		out = append(out, types.Candidate{
			Symbol:           symbol,
			Strategy:         s.Name(),
			EntryPrice:       entry,
			StopLoss:         stop,
			Target1:          entry + s.cfg.Target1R*risk,
			Target2:          entry + s.cfg.Target2R*risk,
			GapPct:           gapPct,
			VolumeRatio:      volumeRatio,
			PriceDistancePct: distancePct,
		})
	}
	return out
}
