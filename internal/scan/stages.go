package scan

import (
	"context"
	"fmt"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/tradelog"
	"intraday-scanner/internal/types"
)

// CandidateScanStage runs every registered strategy evaluator over the cycle
// snapshot and collects their proposals.
type CandidateScanStage struct {
	strategies []interfaces.Strategy
}

// NewCandidateScanStage creates the collection stage over a fixed strategy set.
func NewCandidateScanStage(strategies []interfaces.Strategy) *CandidateScanStage {
	return &CandidateScanStage{strategies: strategies}
}

func (s *CandidateScanStage) Name() string { return "candidate_scan" }

func (s *CandidateScanStage) Process(ctx context.Context, sc *Context) error {
	for _, strat := range s.strategies {
		candidates := strat.Evaluate(ctx, sc.Snapshot)
		logger.Debug(ctx, "Strategy evaluated",
			"strategy", strat.Name(),
			"candidates", len(candidates),
		)
		sc.AllCandidates = append(sc.AllCandidates, candidates...)
	}
	return nil
}

// DedupeStage collapses multiple proposals for one symbol into a single
// candidate, keeping the first proposal and counting confirmations.
type DedupeStage struct{}

func NewDedupeStage() *DedupeStage { return &DedupeStage{} }

func (s *DedupeStage) Name() string { return "dedupe" }

func (s *DedupeStage) Process(ctx context.Context, sc *Context) error {
	sc.ConfirmationMap = make(map[string]types.Candidate, len(sc.AllCandidates))
	sc.Confirmations = make(map[string]int, len(sc.AllCandidates))
	for _, cand := range sc.AllCandidates {
		sc.Confirmations[cand.Symbol]++
		if _, ok := sc.ConfirmationMap[cand.Symbol]; !ok {
			sc.ConfirmationMap[cand.Symbol] = cand
		}
	}
	return nil
}

type alertQueue interface {
	Enqueue(alert types.Alert)
}

// PublishStage persists each final signal and hands a structured alert to
// the async dispatcher.
type PublishStage struct {
	store  interfaces.TradeStore
	alerts alertQueue
}

// NewPublishStage creates the terminal signal stage.
func NewPublishStage(store interfaces.TradeStore, alerts alertQueue) *PublishStage {
	return &PublishStage{store: store, alerts: alerts}
}

func (s *PublishStage) Name() string { return "publish" }

func (s *PublishStage) Process(ctx context.Context, sc *Context) error {
	var firstErr error
	for _, sig := range sc.FinalSignals {
		if err := s.store.InsertSignal(ctx, sig); err != nil {
			// One failed insert must not block the remaining signals.
			logger.ErrorWithErr(ctx, "Failed to persist signal", err,
				"symbol", sig.Candidate.Symbol,
				"signal_id", sig.ID,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("persist signal %s: %w", sig.ID, err)
			}
			continue
		}

		logger.Signal(ctx, sig.Candidate.Symbol, sig.Candidate.Strategy, sig.Score, sig.Stars, sig.Quantity)
		_ = tradelog.AppendSignal(tradelog.SignalEntry{
			Symbol:   sig.Candidate.Symbol,
			Strategy: sig.Candidate.Strategy,
			Score:    sig.Score,
			Stars:    sig.Stars,
			Qty:      sig.Quantity,
			Entry:    sig.Candidate.EntryPrice,
			StopLoss: sig.Candidate.StopLoss,
		})

		if s.alerts != nil {
			s.alerts.Enqueue(types.Alert{
				Kind:    types.AlertKindSignal,
				Symbol:  sig.Candidate.Symbol,
				Price:   sig.Candidate.EntryPrice,
				Message: fmt.Sprintf("%s %d★ signal (score %.2f), qty %d", sig.Candidate.Strategy, sig.Stars, sig.Score, sig.Quantity),
				Time:    sig.CreatedAt,
			})
		}
	}
	return firstErr
}
