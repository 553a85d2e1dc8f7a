package types

import "time"

// Tick is a single price/volume update for one instrument. Only the most
// recent tick per symbol is retained by the market data store.
type Tick struct {
	Symbol            string
	LastPrice         float64
	VolumeTradedToday int64
	Timestamp         time.Time
}

// HistoricalReference carries the prior-day reference data for a symbol.
// Immutable once set for the session.
type HistoricalReference struct {
	Symbol         string
	PrevClose      float64
	PrevHigh       float64
	AvgDailyVolume float64
}

// Candidate is an unscored proposed trade setup produced by a strategy
// evaluator. Scoring and ranking consume it read-only.
type Candidate struct {
	Symbol           string
	Strategy         string
	EntryPrice       float64
	StopLoss         float64
	Target1          float64
	Target2          float64
	GapPct           float64
	VolumeRatio      float64
	PriceDistancePct float64
}

// Signal is a ranked, sized candidate emitted by the final pipeline stage.
type Signal struct {
	ID        string
	Candidate Candidate
	Score     float64
	Stars     int
	Quantity  int
	CreatedAt time.Time
}

// TradeRecord is an accepted, persisted trade. The persistence collaborator
// owns it; the engine holds only a transient reference while monitoring.
type TradeRecord struct {
	ID         string
	Symbol     string
	EntryPrice float64
	Quantity   int
	StopLoss   float64
	Target1    float64
	Target2    float64
	Status     string
	EntryTime  time.Time
	ExitPrice  float64
	PnL        float64
	PnLPct     float64
	ExitReason string
	ExitTime   time.Time
}

const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// Exit reasons reported on trade close.
const (
	ExitReasonStopLoss = "stop-loss"
	ExitReasonTarget   = "target"
	ExitReasonTimeExit = "time-exit"
)

// Alert kinds delivered through the alert collaborator.
const (
	AlertKindSignal   = "signal"
	AlertKindAdvisory = "advisory"
	AlertKindExit     = "exit"
	AlertKindStatus   = "status"
)

// Alert is a structured notification payload. The engine only constructs it;
// formatting and transport belong to the delivery collaborator.
type Alert struct {
	Kind    string
	Symbol  string
	Message string
	Price   float64
	PnL     float64
	PnLPct  float64
	Reason  string
	Time    time.Time
}

// MarketSnapshot is an independent copy of the store's current state handed
// to strategy evaluators and pipeline stages. Mutating it does not affect
// the store.
type MarketSnapshot struct {
	Ticks      map[string]Tick
	References map[string]HistoricalReference
	Volumes    map[string]int64
}
