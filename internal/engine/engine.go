// Package engine owns the scanner's runtime: it seeds reference data, drains
// the tick feed into the market cache, and drives the scan pipeline and exit
// monitor on a fixed cadence.
package engine

import (
	"context"
	"fmt"
	"time"

	"intraday-scanner/internal/alerts"
	"intraday-scanner/internal/broker/zerodha"
	"intraday-scanner/internal/eod"
	"intraday-scanner/internal/exit"
	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/marketdata"
	"intraday-scanner/internal/regime"
	"intraday-scanner/internal/scan"
	"intraday-scanner/internal/session"
	"intraday-scanner/internal/store"
	"intraday-scanner/internal/types"
)

// tickSource is the streaming side of the broker.
type tickSource interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	Events() <-chan zerodha.TickEvent
}

// referenceBuilder resolves pre-open reference data for the universe.
type referenceBuilder interface {
	BuildHistoricalReferences(ctx context.Context, symbols []string) (map[string]types.HistoricalReference, []string)
}

// Engine is the long-lived coordinator. It is the only writer into the
// market cache: the feed hands ticks over a channel and the engine loop
// applies them between scan cycles.
type Engine struct {
	cfg        *store.Config
	market     *marketdata.Store
	trades     interfaces.TradeStore
	feed       tickSource
	refs       referenceBuilder
	pipeline   *scan.Pipeline
	breaker    *scan.CircuitBreaker
	monitor    *exit.Monitor
	classifier *regime.Classifier
	dispatcher *alerts.Dispatcher
	clock      *session.Clock

	universe []string
	weights  scan.Weights
	nowFn    func() time.Time
	stopCh   chan struct{}
}

// Deps carries the engine's collaborators.
type Deps struct {
	Market     *marketdata.Store
	Trades     interfaces.TradeStore
	Feed       tickSource
	Refs       referenceBuilder
	Pipeline   *scan.Pipeline
	Breaker    *scan.CircuitBreaker
	Monitor    *exit.Monitor
	Classifier *regime.Classifier
	Dispatcher *alerts.Dispatcher
	Clock      *session.Clock
}

func New(cfg *store.Config, d Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		market:     d.Market,
		trades:     d.Trades,
		feed:       d.Feed,
		refs:       d.Refs,
		pipeline:   d.Pipeline,
		breaker:    d.Breaker,
		monitor:    d.Monitor,
		classifier: d.Classifier,
		dispatcher: d.Dispatcher,
		clock:      d.Clock,
		universe:   append([]string(nil), cfg.Universe...),
		weights: scan.Weights{
			Gap:      cfg.Scoring.GapWeight,
			Volume:   cfg.Scoring.VolumeWeight,
			Distance: cfg.Scoring.DistanceWeight,
		},
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
	}
}

// Universe returns today's effective symbol set after pre-open exclusions.
func (e *Engine) Universe() []string {
	return append([]string(nil), e.universe...)
}

// seedReferences fetches reference data and narrows the universe to symbols
// with usable history.
func (e *Engine) seedReferences(ctx context.Context) error {
	timer := logger.StartOperation(ctx, "seed_references")
	refs, excluded := e.refs.BuildHistoricalReferences(timer.Context(), e.universe)
	if len(refs) == 0 {
		err := fmt.Errorf("no reference data for any of %d symbols", len(e.universe))
		timer.EndWithError(err)
		return err
	}

	kept := make([]string, 0, len(refs))
	for _, symbol := range e.universe {
		ref, ok := refs[symbol]
		if !ok {
			continue
		}
		e.market.SetHistorical(symbol, ref)
		kept = append(kept, symbol)
	}
	e.universe = kept
	timer.End()

	logger.Info(ctx, "Universe prepared",
		"symbols", len(kept),
		"excluded", len(excluded),
	)
	return nil
}

// Run starts the engine and blocks until the context is cancelled or Stop
// is called.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info(ctx, "Engine starting",
		"mode", e.cfg.Mode,
		"exchange", e.cfg.Exchange,
		"universe", len(e.universe),
		"scan_seconds", e.cfg.ScanSeconds,
	)

	if err := e.seedReferences(ctx); err != nil {
		return err
	}

	e.dispatcher.Start(ctx)
	if err := e.feed.Connect(ctx); err != nil {
		e.dispatcher.Stop()
		return fmt.Errorf("feed connect: %w", err)
	}

	e.dispatcher.Enqueue(types.Alert{
		Kind:    types.AlertKindStatus,
		Message: fmt.Sprintf("scanner up, watching %d symbols", len(e.universe)),
		Time:    e.nowFn(),
	})

	ticker := time.NewTicker(time.Duration(e.cfg.ScanSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown(context.Background())
			return ctx.Err()
		case <-e.stopCh:
			e.shutdown(context.Background())
			return nil
		case <-ticker.C:
			e.drainEvents()
			e.cycle(ctx)
		}
	}
}

// Stop requests a graceful shutdown.
func (e *Engine) Stop() {
	close(e.stopCh)
}

// drainEvents applies every queued tick to the market cache. Runs on the
// engine loop only.
func (e *Engine) drainEvents() {
	for {
		select {
		case ev := <-e.feed.Events():
			e.market.UpdateTick(ev.Tick.Symbol, ev.Tick)
			if ev.VolumeDelta > 0 {
				e.market.AccumulateVolume(ev.Tick.Symbol, ev.VolumeDelta)
			}
		default:
			return
		}
	}
}

// cycle runs one scan pass: classify the regime, build a fresh context from
// the cache snapshot, run the pipeline, then sweep open trades.
func (e *Engine) cycle(ctx context.Context) {
	now := e.nowFn()
	phase := e.clock.PhaseAt(now)
	if phase == session.PhaseClosed {
		return
	}

	snap := e.market.Snapshot()

	if e.cfg.Regime.Enabled {
		e.classifier.Classify(ctx, snap)
	}
	mods := e.classifier.Current()

	active, err := e.trades.GetActiveTrades(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load active trades, skipping cycle", err)
		return
	}

	sc := scan.NewContext(now, phase, snap)
	sc.ScoreWeights = e.weights
	sc.OpenPositions = len(active)
	sc.MaxPositions = e.cfg.Risk.MaxPositions
	sc.SizeMultiplier = mods.SizeMultiplier
	sc.MinStars = e.cfg.Scoring.MinStars
	if mods.MinStars > sc.MinStars {
		sc.MinStars = mods.MinStars
	}

	e.pipeline.Run(ctx, sc)
	e.monitor.CheckAllTrades(ctx)

	if should, _ := eod.ShouldRunNow(e.clock.MarketClose(now)); should {
		if path, err := eod.SummarizeToday(); err != nil {
			logger.ErrorWithErr(ctx, "End-of-day summary failed", err)
		} else if path != "" {
			logger.Info(ctx, "End-of-day summary written", "path", path)
		}
	}
}

// shutdown closes the stream, sweeps trades one last time so a due
// mandatory exit is not lost, and flushes pending alerts.
func (e *Engine) shutdown(ctx context.Context) {
	logger.Info(ctx, "Engine stopping")

	e.feed.Disconnect(ctx)
	e.drainEvents()
	e.monitor.CheckAllTrades(ctx)

	if path, err := eod.SummarizeToday(); err != nil {
		logger.ErrorWithErr(ctx, "End-of-day summary failed", err)
	} else if path != "" {
		logger.Info(ctx, "End-of-day summary written", "path", path)
	}

	e.dispatcher.Enqueue(types.Alert{
		Kind:    types.AlertKindStatus,
		Message: "scanner shutting down",
		Time:    e.nowFn(),
	})
	e.dispatcher.Stop()
	logger.Info(ctx, "Engine stopped")
}
