package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/session"
	"intraday-scanner/internal/types"
)

type recordingStage struct {
	name string
	runs int
	err  error
}

func (s *recordingStage) Name() string { return s.name }
func (s *recordingStage) Process(ctx context.Context, sc *Context) error {
	s.runs++
	return s.err
}

func newTestContext(phase session.Phase) *Context {
	sc := NewContext(time.Now(), phase, types.MarketSnapshot{})
	sc.ScoreWeights = Weights{Gap: 0.4, Volume: 0.4, Distance: 0.2}
	return sc
}

func TestSignalStagesSkippedOutsideEntryPhases(t *testing.T) {
	signal := &recordingStage{name: "signal"}
	always := &recordingStage{name: "always"}

	p := NewPipeline().Append(signal, true).Append(always, false)
	p.Run(context.Background(), newTestContext(session.PhaseSquareOff))

	if signal.runs != 0 {
		t.Errorf("Signal stage must not run during square-off, ran %d times", signal.runs)
	}
	if always.runs != 1 {
		t.Errorf("Non-signal stage must always run, ran %d times", always.runs)
	}
}

func TestSignalStagesSkippedWhenAcceptFlagFalse(t *testing.T) {
	signal := &recordingStage{name: "signal"}

	sc := newTestContext(session.PhaseEntryWindow)
	sc.AcceptNewSignals = false

	NewPipeline().Append(signal, true).Run(context.Background(), sc)
	if signal.runs != 0 {
		t.Errorf("Signal stage must not run with accept flag false, ran %d times", signal.runs)
	}
}

func TestStageFailureDoesNotAbortPipeline(t *testing.T) {
	failing := &recordingStage{name: "failing", err: errors.New("boom")}
	next := &recordingStage{name: "next"}

	p := NewPipeline().Append(failing, true).Append(next, true)
	p.Run(context.Background(), newTestContext(session.PhaseContinuous))

	if next.runs != 1 {
		t.Errorf("Stage after a failure must still run, ran %d times", next.runs)
	}
}

type fixedStrategy struct {
	name       string
	candidates []types.Candidate
}

func (s *fixedStrategy) Name() string { return s.name }
func (s *fixedStrategy) Evaluate(ctx context.Context, snap types.MarketSnapshot) []types.Candidate {
	return s.candidates
}

func TestDedupeKeepsFirstAndCountsConfirmations(t *testing.T) {
	gapCand := types.Candidate{Symbol: "INFY", Strategy: "gap-and-go", GapPct: 4.0}
	volCand := types.Candidate{Symbol: "INFY", Strategy: "volume-breakout", GapPct: 3.5}

	sc := newTestContext(session.PhaseEntryWindow)
	collect := NewCandidateScanStage([]interfaces.Strategy{
		&fixedStrategy{name: "gap-and-go", candidates: []types.Candidate{gapCand}},
		&fixedStrategy{name: "volume-breakout", candidates: []types.Candidate{volCand}},
	})
	dedupe := NewDedupeStage()

	ctx := context.Background()
	if err := collect.Process(ctx, sc); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if err := dedupe.Process(ctx, sc); err != nil {
		t.Fatalf("dedupe failed: %v", err)
	}

	if len(sc.AllCandidates) != 2 {
		t.Fatalf("Expected 2 raw candidates, got %d", len(sc.AllCandidates))
	}
	kept := sc.ConfirmationMap["INFY"]
	if kept.Strategy != "gap-and-go" {
		t.Errorf("Expected first proposal kept, got %q", kept.Strategy)
	}
	if sc.Confirmations["INFY"] != 2 {
		t.Errorf("Expected 2 confirmations, got %d", sc.Confirmations["INFY"])
	}
}

func TestScoreRankStageFiltersByMinStars(t *testing.T) {
	strong := types.Candidate{Symbol: "A", GapPct: 5.0, VolumeRatio: 3.0, PriceDistancePct: 3.0}
	weak := types.Candidate{Symbol: "B", GapPct: 3.1, VolumeRatio: 0.6, PriceDistancePct: 0.1}

	sc := newTestContext(session.PhaseEntryWindow)
	sc.AllCandidates = []types.Candidate{strong, weak}
	sc.ConfirmationMap = map[string]types.Candidate{"A": strong, "B": weak}
	sc.MinStars = 3

	if err := NewScoreRankStage(5).Process(context.Background(), sc); err != nil {
		t.Fatalf("score stage failed: %v", err)
	}

	if len(sc.RankedSignals) != 1 {
		t.Fatalf("Expected 1 ranked signal above threshold, got %d", len(sc.RankedSignals))
	}
	if sc.RankedSignals[0].Candidate.Symbol != "A" {
		t.Errorf("Expected A ranked first, got %s", sc.RankedSignals[0].Candidate.Symbol)
	}
	if sc.RankedSignals[0].Stars != 5 {
		t.Errorf("Expected 5 stars for maximum factors, got %d", sc.RankedSignals[0].Stars)
	}
}

func TestRiskSizingRespectsPositionCap(t *testing.T) {
	cand := types.Candidate{Symbol: "A", EntryPrice: 100, StopLoss: 98}

	sc := newTestContext(session.PhaseEntryWindow)
	sc.RankedSignals = []ScoredCandidate{{Candidate: cand, Score: 0.9, Stars: 5}}
	sc.OpenPositions = 5

	stage := NewRiskSizingStage(100000, 1.0, 5)
	if err := stage.Process(context.Background(), sc); err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	if len(sc.FinalSignals) != 0 {
		t.Errorf("Expected no signals sized at the position cap, got %d", len(sc.FinalSignals))
	}
}

func TestRiskSizingQuantity(t *testing.T) {
	cand := types.Candidate{Symbol: "A", EntryPrice: 100, StopLoss: 98}

	sc := newTestContext(session.PhaseEntryWindow)
	sc.RankedSignals = []ScoredCandidate{{Candidate: cand, Score: 0.9, Stars: 5}}

	// Risk budget 1% of 100000 = 1000; risk/share 2 => 500 shares, capped by
	// capital share 100000/5/100 = 200.
	stage := NewRiskSizingStage(100000, 1.0, 5)
	if err := stage.Process(context.Background(), sc); err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	if len(sc.FinalSignals) != 1 {
		t.Fatalf("Expected 1 sized signal, got %d", len(sc.FinalSignals))
	}
	sig := sc.FinalSignals[0]
	if sig.Quantity != 200 {
		t.Errorf("Expected quantity 200, got %d", sig.Quantity)
	}
	if sig.ID == "" {
		t.Error("Expected signal to carry an ID")
	}
}
