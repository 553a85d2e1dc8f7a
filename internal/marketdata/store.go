package marketdata

import (
	"sync"

	"intraday-scanner/internal/types"
)

// Store is the concurrency-safe cache of current market state: latest tick,
// prior-day reference and running day volume per symbol. It is the single
// synchronization point between the feed ingestion path and the scan cycle.
type Store struct {
	mu      sync.RWMutex
	ticks   map[string]types.Tick
	refs    map[string]types.HistoricalReference
	volumes map[string]int64
}

// NewStore creates an empty market data store.
func NewStore() *Store {
	return &Store{
		ticks:   make(map[string]types.Tick),
		refs:    make(map[string]types.HistoricalReference),
		volumes: make(map[string]int64),
	}
}

// UpdateTick overwrites the latest tick for a symbol. Last write wins.
func (s *Store) UpdateTick(symbol string, tick types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[symbol] = tick
}

// GetTick returns the latest tick for a symbol, if any.
func (s *Store) GetTick(symbol string) (types.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.ticks[symbol]
	return tick, ok
}

// SetHistorical stores the prior-day reference for a symbol. Set once per
// session during seeding.
func (s *Store) SetHistorical(symbol string, ref types.HistoricalReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[symbol] = ref
}

// GetHistorical returns the prior-day reference for a symbol, if any.
func (s *Store) GetHistorical(symbol string) (types.HistoricalReference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[symbol]
	return ref, ok
}

// AccumulateVolume adds a traded-volume delta to the symbol's day counter.
// The read-modify-write runs under the store lock so concurrent writers
// never lose an increment.
func (s *Store) AccumulateVolume(symbol string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[symbol] += delta
}

// GetAccumulatedVolume returns the day volume accumulated since the last Clear.
func (s *Store) GetAccumulatedVolume(symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volumes[symbol]
}

// GetAllTicks returns an independent copy of the symbol to tick map.
func (s *Store) GetAllTicks() map[string]types.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.Tick, len(s.ticks))
	for sym, tick := range s.ticks {
		out[sym] = tick
	}
	return out
}

// Snapshot returns an independent copy of the full store state for one
// scan cycle.
func (s *Store) Snapshot() types.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := types.MarketSnapshot{
		Ticks:      make(map[string]types.Tick, len(s.ticks)),
		References: make(map[string]types.HistoricalReference, len(s.refs)),
		Volumes:    make(map[string]int64, len(s.volumes)),
	}
	for sym, tick := range s.ticks {
		snap.Ticks[sym] = tick
	}
	for sym, ref := range s.refs {
		snap.References[sym] = ref
	}
	for sym, vol := range s.volumes {
		snap.Volumes[sym] = vol
	}
	return snap
}

// Clear drops all ticks, references and volume counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = make(map[string]types.Tick)
	s.refs = make(map[string]types.HistoricalReference)
	s.volumes = make(map[string]int64)
}
