package regime

import (
	"context"
	"fmt"
	"testing"

	"intraday-scanner/internal/types"
)

func breadthSnapshot(advancing, declining int) types.MarketSnapshot {
	snap := types.MarketSnapshot{
		Ticks:      make(map[string]types.Tick),
		References: make(map[string]types.HistoricalReference),
	}
	for i := 0; i < advancing; i++ {
		sym := fmt.Sprintf("UP%d", i)
		snap.Ticks[sym] = types.Tick{Symbol: sym, LastPrice: 105}
		snap.References[sym] = types.HistoricalReference{Symbol: sym, PrevClose: 100}
	}
	for i := 0; i < declining; i++ {
		sym := fmt.Sprintf("DN%d", i)
		snap.Ticks[sym] = types.Tick{Symbol: sym, LastPrice: 95}
		snap.References[sym] = types.HistoricalReference{Symbol: sym, PrevClose: 100}
	}
	return snap
}

func TestNeutralBeforeFirstClassification(t *testing.T) {
	c := NewClassifier()

	mods := c.Current()
	if mods.Regime != RegimeNeutral || mods.MinStars != 1 || mods.SizeMultiplier != 1.0 {
		t.Errorf("Expected neutral defaults before classification, got %+v", mods)
	}
	if c.Classified() {
		t.Error("Expected Classified() false before first classification")
	}
}

func TestBullishClassification(t *testing.T) {
	c := NewClassifier()
	c.Classify(context.Background(), breadthSnapshot(8, 2))

	mods := c.Current()
	if mods.Regime != RegimeBullish {
		t.Errorf("Expected BULLISH at 80%% breadth, got %s", mods.Regime)
	}
	if mods.SizeMultiplier != 1.2 {
		t.Errorf("Expected size multiplier 1.2, got %f", mods.SizeMultiplier)
	}
}

func TestBearishClassificationTightensThreshold(t *testing.T) {
	c := NewClassifier()
	c.Classify(context.Background(), breadthSnapshot(2, 8))

	mods := c.Current()
	if mods.Regime != RegimeBearish {
		t.Errorf("Expected BEARISH at 20%% breadth, got %s", mods.Regime)
	}
	if mods.MinStars != 4 {
		t.Errorf("Expected min stars 4 in bearish regime, got %d", mods.MinStars)
	}
	if mods.SizeMultiplier != 0.5 {
		t.Errorf("Expected size multiplier 0.5, got %f", mods.SizeMultiplier)
	}
}

func TestTooFewSymbolsKeepsPrevious(t *testing.T) {
	c := NewClassifier()
	c.Classify(context.Background(), breadthSnapshot(2, 1))

	if c.Classified() {
		t.Error("Expected classification skipped with too few symbols")
	}
	if mods := c.Current(); mods.Regime != RegimeNeutral {
		t.Errorf("Expected neutral regime preserved, got %s", mods.Regime)
	}
}
