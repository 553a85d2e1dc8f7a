package zerodha

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/types"
)

// Feed connection states.
const (
	FeedDisconnected = "DISCONNECTED"
	FeedConnecting   = "CONNECTING"
	FeedSubscribed   = "SUBSCRIBED"
)

// TickEvent is one parsed tick plus the traded-volume delta since the
// previous tick for the same instrument.
type TickEvent struct {
	Tick        types.Tick
	VolumeDelta int64
}

// FeedConfig tunes the streaming client.
type FeedConfig struct {
	Backoff          []time.Duration // reconnect delay schedule, last entry is the cap
	MaxTokensPerConn int             // venue's per-connection subscription limit
	QueueSize        int             // tick hand-off buffer
}

// connAttempt tracks one physical connection. Dial errors, refused
// subscriptions, and socket closes can each end an attempt; exactly one
// reconnect is scheduled per attempt regardless of which handler reports it.
type connAttempt struct {
	conn       tickerConn
	dialFailed atomic.Bool
	retried    atomic.Bool
}

// Feed maintains one persistent subscription to the Kite tick stream. Ticks
// are parsed on the websocket's own goroutine and handed into a bounded
// queue; the engine loop is the only consumer, so downstream state keeps a
// single writer.
type Feed struct {
	cfg     FeedConfig
	mapper  *instrumentMapper
	newConn func() tickerConn
	events  chan TickEvent

	mu       sync.Mutex
	conn     tickerConn
	state    string
	attempts int
	stopped  bool
	lastVol  map[uint32]int64

	sleepFn func(d time.Duration) bool // false when interrupted by stop
	stopCh  chan struct{}
}

// NewFeed creates a streaming client over live Kite credentials.
func NewFeed(apiKey, accessToken string, mapper *instrumentMapper, cfg FeedConfig) *Feed {
	return newFeed(func() tickerConn { return newKiteConn(apiKey, accessToken) }, mapper, cfg)
}

func newFeed(newConn func() tickerConn, mapper *instrumentMapper, cfg FeedConfig) *Feed {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	}
	f := &Feed{
		cfg:     cfg,
		mapper:  mapper,
		newConn: newConn,
		events:  make(chan TickEvent, cfg.QueueSize),
		state:   FeedDisconnected,
		lastVol: make(map[uint32]int64),
		stopCh:  make(chan struct{}),
	}
	f.sleepFn = func(d time.Duration) bool {
		select {
		case <-time.After(d):
			return true
		case <-f.stopCh:
			return false
		}
	}
	return f
}

// Events is the tick hand-off queue consumed by the engine loop.
func (f *Feed) Events() <-chan TickEvent {
	return f.events
}

// State returns the current connection state.
func (f *Feed) State() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ReconnectAttempts returns the consecutive failed-connection count. It
// resets to zero only after a confirmed re-subscription.
func (f *Feed) ReconnectAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Connect opens the connection and subscribes the full universe in one
// batch. The token set must fit the venue's per-connection limit; it is
// never silently truncated.
func (f *Feed) Connect(ctx context.Context) error {
	tokens := f.mapper.tokens()
	if len(tokens) == 0 {
		return fmt.Errorf("no instrument tokens to subscribe")
	}
	if f.cfg.MaxTokensPerConn > 0 && len(tokens) > f.cfg.MaxTokensPerConn {
		return fmt.Errorf("universe of %d tokens exceeds per-connection limit %d",
			len(tokens), f.cfg.MaxTokensPerConn)
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return fmt.Errorf("feed is stopped")
	}
	f.state = FeedConnecting
	conn := f.newConn()
	f.conn = conn
	f.mu.Unlock()

	st := &connAttempt{conn: conn}
	conn.OnConnect(func() { f.onConnect(st, tokens) })
	conn.OnTick(f.onTick)
	conn.OnError(func(err error) { f.onError(st, err) })
	conn.OnClose(func(code int, reason string) { f.onClose(st, code, reason) })

	go conn.Serve()
	return nil
}

// onConnect subscribes the batch. Only a fully confirmed subscription resets
// the reconnect counter; a refused subscription schedules the next attempt
// right here rather than waiting for a close event the ticker never delivers
// after Stop.
func (f *Feed) onConnect(st *connAttempt, tokens []uint32) {
	ctx := context.Background()

	// With auto-reconnect off, a failed dial still fires the connect
	// callback with no socket underneath it. The error callback has
	// already booked the retry; subscribing here would panic.
	if st.dialFailed.Load() {
		return
	}

	if err := st.conn.Subscribe(tokens); err != nil {
		logger.ErrorWithErr(ctx, "Subscription failed after connect", err, "tokens", len(tokens))
		f.scheduleReconnect(st, "subscribe failed")
		return
	}
	if err := st.conn.SetMode(kiteticker.ModeFull, tokens); err != nil {
		logger.ErrorWithErr(ctx, "Setting ticker mode failed", err, "tokens", len(tokens))
		f.scheduleReconnect(st, "set mode failed")
		return
	}

	f.mu.Lock()
	f.state = FeedSubscribed
	attempts := f.attempts
	f.attempts = 0
	f.mu.Unlock()

	logger.Info(ctx, "Feed subscribed",
		"tokens", len(tokens),
		"recovered_after_attempts", attempts,
	)
}

// onError reports connection errors. While still connecting the error is a
// failed dial, which ends the attempt; once subscribed, errors are
// informational and the close handler owns any reconnect.
func (f *Feed) onError(st *connAttempt, err error) {
	logger.ErrorWithErr(context.Background(), "Feed error", err)

	f.mu.Lock()
	connecting := f.state == FeedConnecting
	f.mu.Unlock()
	if connecting {
		st.dialFailed.Store(true)
		f.scheduleReconnect(st, "dial failed")
	}
}

func (f *Feed) onClose(st *connAttempt, code int, reason string) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	logger.Warn(context.Background(), "Feed closed", "code", code, "reason", reason)
	f.scheduleReconnect(st, reason)
}

// scheduleReconnect tears the attempt down and books the next one after the
// backoff delay. The per-attempt guard makes it safe to call from any
// handler, including several for the same connection.
func (f *Feed) scheduleReconnect(st *connAttempt, reason string) {
	if !st.retried.CompareAndSwap(false, true) {
		return
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.state = FeedDisconnected
	delay := f.backoffDelay(f.attempts)
	f.attempts++
	attempt := f.attempts
	f.mu.Unlock()

	st.conn.Stop()

	logger.Warn(context.Background(), "Feed connection lost, scheduling reconnect",
		"reason", reason,
		"attempt", attempt,
		"delay", delay,
	)

	go func() {
		if !f.sleepFn(delay) {
			return
		}
		if err := f.Connect(context.Background()); err != nil {
			logger.ErrorWithErr(context.Background(), "Reconnect failed", err, "attempt", attempt)
		}
	}()
}

// backoffDelay returns the schedule entry for the given attempt count,
// capped at the last entry.
func (f *Feed) backoffDelay(attempt int) time.Duration {
	if attempt >= len(f.cfg.Backoff) {
		return f.cfg.Backoff[len(f.cfg.Backoff)-1]
	}
	return f.cfg.Backoff[attempt]
}

// onTick parses a wire tick and forwards it into the hand-off queue. A
// malformed or unmapped tick is logged with its payload and skipped; it
// never tears down the connection.
func (f *Feed) onTick(tick models.Tick) {
	symbol := f.mapper.getSymbol(tick.InstrumentToken)
	if symbol == "" {
		logger.Warn(context.Background(), "Tick for unknown instrument token",
			"token", tick.InstrumentToken,
			"payload", fmt.Sprintf("%+v", tick),
		)
		return
	}
	if tick.LastPrice <= 0 {
		logger.Warn(context.Background(), "Malformed tick payload",
			"symbol", symbol,
			"payload", fmt.Sprintf("%+v", tick),
		)
		return
	}

	volume := int64(tick.VolumeTraded)
	f.mu.Lock()
	last := f.lastVol[tick.InstrumentToken]
	delta := volume - last
	if delta < 0 {
		// Venue volume counter restarted; treat the reading as the new base.
		delta = volume
	}
	f.lastVol[tick.InstrumentToken] = volume
	f.mu.Unlock()

	event := TickEvent{
		Tick: types.Tick{
			Symbol:            symbol,
			LastPrice:         tick.LastPrice,
			VolumeTradedToday: volume,
			Timestamp:         tick.Timestamp.Time,
		},
		VolumeDelta: delta,
	}

	select {
	case f.events <- event:
	default:
		logger.Warn(context.Background(), "Tick queue full, dropping tick", "symbol", symbol)
	}
}

// Disconnect unsubscribes and closes the socket. Cleanup errors are logged,
// never propagated; the feed always releases its resources.
func (f *Feed) Disconnect(ctx context.Context) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	conn := f.conn
	f.state = FeedDisconnected
	f.mu.Unlock()

	close(f.stopCh)

	if conn != nil {
		if err := conn.Unsubscribe(f.mapper.tokens()); err != nil {
			logger.Warn(ctx, "Unsubscribe during disconnect failed", "error", err)
		}
		conn.Stop()
	}
	logger.Info(ctx, "Feed disconnected")
}
