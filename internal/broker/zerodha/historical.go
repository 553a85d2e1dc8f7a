package zerodha

import (
	"context"
	"fmt"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/session"
	"intraday-scanner/internal/types"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// primaryProvider serves daily candles from the broker's historical API.
type primaryProvider interface {
	DailyCandles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}

// secondaryProvider serves a reference snapshot when the primary fails.
type secondaryProvider interface {
	FetchReference(ctx context.Context, symbol string) (types.HistoricalReference, error)
}

// kitePrimary adapts the Kite Connect historical endpoint.
type kitePrimary struct {
	kc     *kiteconnect.Client
	mapper *instrumentMapper
}

func (p *kitePrimary) DailyCandles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error) {
	token, ok := p.mapper.getToken(symbol)
	if !ok {
		return nil, fmt.Errorf("no instrument token for %s", symbol)
	}
	data, err := p.kc.GetHistoricalData(int(token), "day", from, to, false, false)
	if err != nil {
		return nil, fmt.Errorf("historical data for %s: %w", symbol, err)
	}
	candles := make([]Candle, 0, len(data))
	for _, d := range data {
		candles = append(candles, Candle{
			Date:   d.Date.Time,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: int64(d.Volume),
		})
	}
	return candles, nil
}

// HistoricalConfig tunes the reference-data fetch.
type HistoricalConfig struct {
	LookbackDays   int
	RequestsPerSec float64
	MinCandles     int
}

// HistoricalFetcher builds per-symbol reference data before market open. It
// prefers the broker's candle API and falls back to the NSE public quote
// endpoint per symbol; a symbol both sources fail on is dropped from the
// day's universe rather than failing the batch.
type HistoricalFetcher struct {
	cfg       HistoricalConfig
	primary   primaryProvider
	secondary secondaryProvider
	limiter   *rate.Limiter
	nowFn     func() time.Time
}

// NewHistoricalFetcher wires the live Kite and NSE providers.
func NewHistoricalFetcher(kc *kiteconnect.Client, mapper *instrumentMapper, cfg HistoricalConfig) *HistoricalFetcher {
	return newHistoricalFetcher(&kitePrimary{kc: kc, mapper: mapper}, NewNSEQuoteClient(), cfg)
}

func newHistoricalFetcher(primary primaryProvider, secondary secondaryProvider, cfg HistoricalConfig) *HistoricalFetcher {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 15
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 3
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = 2
	}
	return &HistoricalFetcher{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		nowFn:     time.Now,
	}
}

// FetchReference resolves one symbol's reference data, primary first.
func (f *HistoricalFetcher) FetchReference(ctx context.Context, symbol string) (types.HistoricalReference, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return types.HistoricalReference{}, err
	}

	to := f.nowFn()
	from := to.AddDate(0, 0, -f.cfg.LookbackDays)

	candles, err := f.primary.DailyCandles(ctx, symbol, from, to)
	if err == nil {
		ref, verr := referenceFromCandles(dropFormingBar(candles, to), f.cfg.MinCandles)
		if verr == nil {
			return ref, nil
		}
		err = verr
	}
	logger.Warn(ctx, "Primary historical source failed, trying fallback",
		"symbol", symbol,
		"error", err,
	)

	ref, ferr := f.secondary.FetchReference(ctx, symbol)
	if ferr != nil {
		return types.HistoricalReference{}, fmt.Errorf("both sources failed for %s: primary: %v, fallback: %w", symbol, err, ferr)
	}
	return ref, nil
}

// BuildHistoricalReferences fetches every symbol's reference data and returns
// the partial result plus the symbols excluded after both sources failed.
func (f *HistoricalFetcher) BuildHistoricalReferences(ctx context.Context, symbols []string) (map[string]types.HistoricalReference, []string) {
	refs := make(map[string]types.HistoricalReference, len(symbols))
	var excluded []string

	for _, symbol := range symbols {
		ref, err := f.FetchReference(ctx, symbol)
		if err != nil {
			logger.Warn(ctx, "Excluding symbol from today's universe", "symbol", symbol, "error", err)
			excluded = append(excluded, symbol)
			continue
		}
		ref.Symbol = symbol
		refs[symbol] = ref
	}

	logger.Info(ctx, "Historical references built",
		"included", len(refs),
		"excluded", len(excluded),
	)
	return refs, excluded
}

// dropFormingBar trims a trailing candle dated today. A fetch during market
// hours returns the live session's partial bar, which must not become the
// previous day's reference.
func dropFormingBar(candles []Candle, now time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1].Date.In(session.IST)
	today := now.In(session.IST)
	if last.Year() == today.Year() && last.YearDay() == today.YearDay() {
		return candles[:len(candles)-1]
	}
	return candles
}

// referenceFromCandles derives reference data from completed daily bars, the
// newest being the reference day.
func referenceFromCandles(candles []Candle, minCandles int) (types.HistoricalReference, error) {
	var ref types.HistoricalReference
	if len(candles) < minCandles {
		return ref, fmt.Errorf("only %d candles returned, need at least %d", len(candles), minCandles)
	}

	last := candles[len(candles)-1]
	if last.Close <= 0 || last.High <= 0 || last.High < last.Low {
		return ref, fmt.Errorf("malformed candle for %s", last.Date.Format("2006-01-02"))
	}

	ref.PrevClose = last.Close
	ref.PrevHigh = last.High

	var total int64
	for _, c := range candles {
		total += c.Volume
	}
	ref.AvgDailyVolume = float64(total) / float64(len(candles))
	if ref.AvgDailyVolume <= 0 {
		return ref, fmt.Errorf("no traded volume across %d candles", len(candles))
	}
	return ref, nil
}
