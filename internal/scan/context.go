package scan

import (
	"time"

	"intraday-scanner/internal/session"
	"intraday-scanner/internal/types"
)

// Weights are the caller-supplied composite score weights. No implicit
// renormalization happens if they do not sum to 1.
type Weights struct {
	Gap      float64
	Volume   float64
	Distance float64
}

// ScoredCandidate pairs a candidate with its composite score.
type ScoredCandidate struct {
	Candidate types.Candidate
	Score     float64
	Stars     int
}

// Context is the mutable per-cycle state shared by pipeline stages. A fresh
// one is created every cycle and discarded when the cycle completes; no stage
// may retain it or stash cross-cycle state on it.
type Context struct {
	Now           time.Time
	Phase         session.Phase
	Snapshot      types.MarketSnapshot
	OpenPositions int

	// AcceptNewSignals gates every signal stage. The breaker gate may flip
	// it false; nothing flips it back within a cycle.
	AcceptNewSignals bool

	// Overlay modifiers, neutral unless a regime or adaptive overlay is
	// active.
	MinStars       int
	SizeMultiplier float64
	MaxPositions   int
	ScoreWeights   Weights

	// Stage outputs, populated in pipeline order.
	AllCandidates   []types.Candidate
	ConfirmationMap map[string]types.Candidate
	Confirmations   map[string]int
	CompositeScores []ScoredCandidate
	RankedSignals   []ScoredCandidate
	FinalSignals    []types.Signal
}

// NewContext creates the per-cycle context with neutral modifiers.
func NewContext(now time.Time, phase session.Phase, snap types.MarketSnapshot) *Context {
	return &Context{
		Now:              now,
		Phase:            phase,
		Snapshot:         snap,
		AcceptNewSignals: true,
		MinStars:         1,
		SizeMultiplier:   1.0,
	}
}
