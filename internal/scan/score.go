package scan

import (
	"context"
	"sort"

	"intraday-scanner/internal/types"
)

// Normalization bounds for each signal-quality factor. Values at or below
// the lower bound map to 0.0, at or above the upper bound to 1.0.
const (
	gapLow  = 3.0
	gapHigh = 5.0

	volRatioLow  = 0.5
	volRatioHigh = 3.0

	distanceLow  = 0.0
	distanceHigh = 3.0
)

// normalize is a clamped linear interpolation of v between lo and hi.
func normalize(v, lo, hi float64) float64 {
	if v <= lo {
		return 0.0
	}
	if v >= hi {
		return 1.0
	}
	return (v - lo) / (hi - lo)
}

// NormalizeGap maps gap percentage into [0,1].
func NormalizeGap(gapPct float64) float64 {
	return normalize(gapPct, gapLow, gapHigh)
}

// NormalizeVolumeRatio maps current-vs-average volume ratio into [0,1].
func NormalizeVolumeRatio(ratio float64) float64 {
	return normalize(ratio, volRatioLow, volRatioHigh)
}

// NormalizeDistance maps price-distance percentage into [0,1]. Negative
// distances clamp to 0.
func NormalizeDistance(distPct float64) float64 {
	return normalize(distPct, distanceLow, distanceHigh)
}

// CompositeScore computes the weighted sum of the candidate's normalized
// factors. Weights are taken as given; callers wanting a [0,1] composite must
// supply weights summing to 1.
func CompositeScore(c types.Candidate, w Weights) float64 {
	return w.Gap*NormalizeGap(c.GapPct) +
		w.Volume*NormalizeVolumeRatio(c.VolumeRatio) +
		w.Distance*NormalizeDistance(c.PriceDistancePct)
}

// StarRating maps a composite score onto five contiguous bands: [0,0.2) is
// one star up through [0.8,1.0] five stars.
func StarRating(score float64) int {
	switch {
	case score < 0.2:
		return 1
	case score < 0.4:
		return 2
	case score < 0.6:
		return 3
	case score < 0.8:
		return 4
	default:
		return 5
	}
}

// Rank sorts scored candidates descending by score, preserving input order on
// ties, and returns at most maxN results.
func Rank(scored []ScoredCandidate, maxN int) []ScoredCandidate {
	ranked := make([]ScoredCandidate, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if maxN > 0 && len(ranked) > maxN {
		ranked = ranked[:maxN]
	}
	return ranked
}

// ScoreRankStage scores every deduplicated candidate, ranks them and keeps
// the top N at or above the cycle's minimum star threshold.
type ScoreRankStage struct {
	maxRanked int
}

// NewScoreRankStage creates the scoring stage with the configured result cap.
func NewScoreRankStage(maxRanked int) *ScoreRankStage {
	return &ScoreRankStage{maxRanked: maxRanked}
}

func (s *ScoreRankStage) Name() string { return "score_rank" }

func (s *ScoreRankStage) Process(ctx context.Context, sc *Context) error {
	// Deduplicated candidates keep the original collection order so the
	// stable sort has a deterministic tie-break.
	seen := make(map[string]bool, len(sc.ConfirmationMap))
	for _, cand := range sc.AllCandidates {
		if seen[cand.Symbol] {
			continue
		}
		kept, ok := sc.ConfirmationMap[cand.Symbol]
		if !ok {
			continue
		}
		seen[cand.Symbol] = true
		sc.CompositeScores = append(sc.CompositeScores, ScoredCandidate{
			Candidate: kept,
			Score:     CompositeScore(kept, sc.ScoreWeights),
		})
	}

	ranked := Rank(sc.CompositeScores, s.maxRanked)
	for _, rc := range ranked {
		rc.Stars = StarRating(rc.Score)
		if rc.Stars < sc.MinStars {
			continue
		}
		sc.RankedSignals = append(sc.RankedSignals, rc)
	}
	return nil
}
