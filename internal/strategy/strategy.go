package strategy

import (
	"sort"

	"intraday-scanner/internal/types"
)

// sortedSymbols returns the snapshot's symbols in lexical order. Evaluators
// walk this instead of the tick map so candidate order, and with it
// downstream tie-breaking, is the same on every cycle.
func sortedSymbols(snap types.MarketSnapshot) []string {
	symbols := make([]string, 0, len(snap.Ticks))
	for symbol := range snap.Ticks {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
