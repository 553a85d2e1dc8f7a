package zerodha

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"intraday-scanner/internal/api"
	"intraday-scanner/internal/types"
)

// nseQuoteResponse mirrors the fields we need from NSE India's quote-equity
// endpoint.
type nseQuoteResponse struct {
	PriceInfo struct {
		PreviousClose   float64 `json:"previousClose"`
		IntraDayHighLow struct {
			Max float64 `json:"max"`
		} `json:"intraDayHighLow"`
	} `json:"priceInfo"`
	SecurityWiseDP struct {
		QuantityTraded int64 `json:"quantityTraded"`
	} `json:"securityWiseDP"`
}

// NSEQuoteClient is the fallback reference-data source when the broker's
// historical API is unavailable. NSE keys equity quotes by plain symbol; the
// broker uses the "-EQ" series suffix, which is stripped before the lookup.
type NSEQuoteClient struct {
	client *api.Client
}

// NewNSEQuoteClient builds a quote client with browser-style headers the NSE
// endpoints require.
func NewNSEQuoteClient() *NSEQuoteClient {
	return &NSEQuoteClient{
		client: api.NewClient(
			api.WithTimeout(45*time.Second),
			api.WithLogging(true),
		),
	}
}

// FetchReference fetches previous close and day high for one symbol. NSE's
// public quote endpoint carries no volume history, so AvgDailyVolume is the
// current day's traded quantity, the closest available proxy.
func (n *NSEQuoteClient) FetchReference(ctx context.Context, symbol string) (types.HistoricalReference, error) {
	var ref types.HistoricalReference

	quoteURL := fmt.Sprintf("https://www.nseindia.com/api/quote-equity?symbol=%s",
		url.QueryEscape(stripSeriesSuffix(symbol)))

	resp, err := n.client.GET(ctx, quoteURL, api.NSEHeaders())
	if err != nil {
		return ref, fmt.Errorf("NSE quote request for %s: %w", symbol, err)
	}

	var quote nseQuoteResponse
	if err := resp.ParseJSON(&quote); err != nil {
		return ref, fmt.Errorf("NSE quote parse for %s: %w", symbol, err)
	}
	if quote.PriceInfo.PreviousClose <= 0 {
		return ref, fmt.Errorf("NSE quote for %s has no previous close", symbol)
	}

	ref.PrevClose = quote.PriceInfo.PreviousClose
	ref.PrevHigh = quote.PriceInfo.IntraDayHighLow.Max
	if ref.PrevHigh <= 0 {
		ref.PrevHigh = quote.PriceInfo.PreviousClose
	}
	ref.AvgDailyVolume = float64(quote.SecurityWiseDP.QuantityTraded)
	return ref, nil
}

// stripSeriesSuffix converts a broker trading symbol like "RELIANCE-EQ" to
// the bare NSE symbol "RELIANCE".
func stripSeriesSuffix(symbol string) string {
	const suffix = "-EQ"
	if len(symbol) > len(suffix) && symbol[len(symbol)-len(suffix):] == suffix {
		return symbol[:len(symbol)-len(suffix)]
	}
	return symbol
}
