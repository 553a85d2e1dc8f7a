package strategy

import (
	"context"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/types"
)

// VolumeBreakoutConfig tunes the volume-breakout evaluator.
type VolumeBreakoutConfig struct {
	MinVolumeRatio float64 // minimum day volume vs average daily volume
	StopLossPct    float64
	Target1R       float64
	Target2R       float64
}

// DefaultVolumeBreakoutConfig returns the standard tuning.
func DefaultVolumeBreakoutConfig() VolumeBreakoutConfig {
	return VolumeBreakoutConfig{
		MinVolumeRatio: 1.5,
		StopLossPct:    1.5,
		Target1R:       2.0,
		Target2R:       3.0,
	}
}

// VolumeBreakout proposes longs on stocks trading above the previous day's
// high on unusually heavy volume.
type VolumeBreakout struct {
	cfg VolumeBreakoutConfig
}

var _ interfaces.Strategy = (*VolumeBreakout)(nil)

// NewVolumeBreakout creates the evaluator.
func NewVolumeBreakout(cfg VolumeBreakoutConfig) *VolumeBreakout {
	return &VolumeBreakout{cfg: cfg}
}

func (s *VolumeBreakout) Name() string { return "volume-breakout" }

func (s *VolumeBreakout) Evaluate(ctx context.Context, snap types.MarketSnapshot) []types.Candidate {
	var out []types.Candidate
	for _, symbol := range sortedSymbols(snap) {
		tick := snap.Ticks[symbol]
		ref, ok := snap.References[symbol]
		if !ok || ref.PrevHigh <= 0 || ref.PrevClose <= 0 {
			continue
		}
		if tick.LastPrice <= ref.PrevHigh {
			continue
		}

		volumeRatio := 0.0
		if ref.AvgDailyVolume > 0 {
			volumeRatio = float64(snap.Volumes[symbol]) / ref.AvgDailyVolume
		}
		if volumeRatio < s.cfg.MinVolumeRatio {
			continue
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
			GapPct:           (tick.LastPrice - ref.PrevClose) / ref.PrevClose * 100.0,
			VolumeRatio:      volumeRatio,
			PriceDistancePct: (tick.LastPrice - ref.PrevHigh) / ref.PrevHigh * 100.0,
		})
	}
	return out
}
