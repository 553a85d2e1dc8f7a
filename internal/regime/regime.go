package regime

import (
	"context"
	"sync"
	"time"

	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/types"
)

// Regime classifies the day's broad market condition.
type Regime string

const (
	RegimeBullish Regime = "BULLISH"
	RegimeBearish Regime = "BEARISH"
	RegimeNeutral Regime = "NEUTRAL"
)

// Modifiers are the overlay values applied to a scan cycle. Neutral values
// leave the pipeline unchanged.
type Modifiers struct {
	Regime         Regime
	MinStars       int
	SizeMultiplier float64
}

func neutralModifiers() Modifiers {
	return Modifiers{Regime: RegimeNeutral, MinStars: 1, SizeMultiplier: 1.0}
}

// Classifier derives the daily regime from universe breadth: the share of
// symbols trading above versus below their previous close. Classification is
// best-effort; until the first one completes, readers get neutral defaults.
type Classifier struct {
	mu           sync.RWMutex
	current      Modifiers
	classified   bool
	classifiedAt time.Time
}

// NewClassifier starts with neutral modifiers.
func NewClassifier() *Classifier {
	return &Classifier{current: neutralModifiers()}
}

// Classify recomputes the regime from breadth over the snapshot. Symbols
// without reference data are ignored; too few usable symbols keeps the
// previous classification.
func (c *Classifier) Classify(ctx context.Context, snap types.MarketSnapshot) {
	advancing, declining := 0, 0
	for symbol, tick := range snap.Ticks {
		ref, ok := snap.References[symbol]
		if !ok || ref.PrevClose <= 0 {
			continue
		}
		if tick.LastPrice > ref.PrevClose {
			advancing++
		} else if tick.LastPrice < ref.PrevClose {
			declining++
		}
	}

	total := advancing + declining
	if total < 5 {
		logger.Debug(ctx, "Too few symbols for regime classification", "usable", total)
		return
	}

	breadth := float64(advancing) / float64(total)
	mods := neutralModifiers()
	switch {
	case breadth >= 0.65:
		mods.Regime = RegimeBullish
		mods.SizeMultiplier = 1.2
	case breadth <= 0.35:
		mods.Regime = RegimeBearish
		mods.MinStars = 4
		mods.SizeMultiplier = 0.5
	}

	c.mu.Lock()
	c.current = mods
	c.classified = true
	c.classifiedAt = time.Now()
	c.mu.Unlock()

	logger.Info(ctx, "Market regime classified",
		"regime", string(mods.Regime),
		"breadth", breadth,
		"advancing", advancing,
		"declining", declining,
	)
}

// Current returns the active modifiers. Neutral until the first successful
// classification of the session.
func (c *Classifier) Current() Modifiers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Classified reports whether at least one classification completed.
func (c *Classifier) Classified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classified
}

// Reset returns the classifier to neutral at session rollover.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = neutralModifiers()
	c.classified = false
}
