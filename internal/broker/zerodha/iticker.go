package zerodha

import (
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// tickerConn is the slice of the kiteticker API the feed depends on, kept
// narrow so tests can substitute a scripted connection.
type tickerConn interface {
	OnConnect(f func())
	OnTick(f func(models.Tick))
	OnError(f func(err error))
	OnClose(f func(code int, reason string))
	Subscribe(tokens []uint32) error
	SetMode(mode kiteticker.Mode, tokens []uint32) error
	Unsubscribe(tokens []uint32) error
	Serve()
	Stop()
}

var _ tickerConn = (*kiteticker.Ticker)(nil)

// newKiteConn dials a fresh ticker connection. The feed owns reconnection,
// so the client's built-in auto-reconnect stays disabled.
func newKiteConn(apiKey, accessToken string) tickerConn {
	t := kiteticker.New(apiKey, accessToken)
	t.SetAutoReconnect(false)
	return t
}
