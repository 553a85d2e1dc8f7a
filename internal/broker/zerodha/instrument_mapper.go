package zerodha

import (
	"fmt"
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// instrumentMapper holds the bidirectional symbol/token mapping for the
// subscribed universe.
type instrumentMapper struct {
	mu            sync.RWMutex
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		symbolToToken: make(map[string]uint32),
		tokenToSymbol: make(map[uint32]string),
	}
}

func (im *instrumentMapper) addMapping(symbol string, token uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.symbolToToken[symbol] = token
	im.tokenToSymbol[token] = symbol
}

func (im *instrumentMapper) getToken(symbol string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	token, ok := im.symbolToToken[symbol]
	return token, ok
}

func (im *instrumentMapper) getSymbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.tokenToSymbol[token]
}

func (im *instrumentMapper) tokens() []uint32 {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]uint32, 0, len(im.tokenToSymbol))
	for token := range im.tokenToSymbol {
		out = append(out, token)
	}
	return out
}

// LoadInstrumentMappings resolves instrument tokens for the universe from the
// exchange instrument dump. Symbols missing from the dump are reported, not
// silently dropped.
func LoadInstrumentMappings(kc *kiteconnect.Client, exchange string, symbols []string) (*instrumentMapper, []string, error) {
	instruments, err := kc.GetInstrumentsByExchange(exchange)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch instruments for %s: %w", exchange, err)
	}

	byName := make(map[string]uint32, len(instruments))
	for _, inst := range instruments {
		byName[inst.Tradingsymbol] = uint32(inst.InstrumentToken)
	}

	mapper := newInstrumentMapper()
	var missing []string
	for _, symbol := range symbols {
		token, ok := byName[symbol]
		if !ok {
			missing = append(missing, symbol)
			continue
		}
		mapper.addMapping(symbol, token)
	}
	return mapper, missing, nil
}
