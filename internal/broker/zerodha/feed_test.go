package zerodha

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// fakeConn is a scripted ticker connection. Handlers are captured on
// registration and fired from test goroutines via the accessors below.
type fakeConn struct {
	mu             sync.Mutex
	onConnect      func()
	onTick         func(models.Tick)
	onError        func(error)
	onClose        func(int, string)
	subscribed     [][]uint32
	modes          [][]uint32
	unsubscribed   [][]uint32
	stopped        bool
	subscribeErr   error
	setModeErr     error
	serveStarted   chan struct{}
	serveStartOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{serveStarted: make(chan struct{})}
}

func (c *fakeConn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

func (c *fakeConn) OnTick(fn func(models.Tick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

func (c *fakeConn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *fakeConn) OnClose(fn func(int, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeConn) Subscribe(tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, tokens)
	return nil
}

func (c *fakeConn) SetMode(mode kiteticker.Mode, tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setModeErr != nil {
		return c.setModeErr
	}
	c.modes = append(c.modes, tokens)
	return nil
}

func (c *fakeConn) Unsubscribe(tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, tokens)
	return nil
}

func (c *fakeConn) Serve() {
	c.serveStartOnce.Do(func() { close(c.serveStarted) })
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// registered reports whether Connect has wired all handlers. The close
// handler is registered last, so it is the sentinel.
func (c *fakeConn) registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onClose != nil
}

// connect fires the connect callback as the websocket layer would.
func (c *fakeConn) connect() {
	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	fn()
}

// fail fires the error callback, the path a failed dial takes.
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	fn(err)
}

// drop fires the close callback as a server-side disconnect would.
func (c *fakeConn) drop(code int, reason string) {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	fn(code, reason)
}

func (c *fakeConn) subscribeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed)
}

func (c *fakeConn) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

type testError string

func (e testError) Error() string { return string(e) }

const errTestSubscribe = testError("subscription refused")
const errTestDial = testError("dial tcp: connection refused")

func testMapper(t *testing.T) *instrumentMapper {
	t.Helper()
	m := newInstrumentMapper()
	m.addMapping("RELIANCE", 100)
	m.addMapping("TCS", 200)
	return m
}

// newTestFeed wires a feed over a scripted sequence of connections. Each
// Connect call takes the next connection from the script. Sleeps complete
// immediately and are recorded.
func newTestFeed(t *testing.T, mapper *instrumentMapper, conns []*fakeConn, cfg FeedConfig) (*Feed, *[]time.Duration) {
	t.Helper()
	var mu sync.Mutex
	next := 0
	delays := &[]time.Duration{}
	f := newFeed(func() tickerConn {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(conns) {
			t.Errorf("feed requested connection %d, script has %d", next+1, len(conns))
			return newFakeConn()
		}
		c := conns[next]
		next++
		return c
	}, mapper, cfg)
	f.sleepFn = func(d time.Duration) bool {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return true
	}
	return f, delays
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectSubscribesFullBatch(t *testing.T) {
	conn := newFakeConn()
	f, _ := newTestFeed(t, testMapper(t), []*fakeConn{conn}, FeedConfig{MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn.registered)
	conn.connect()

	waitFor(t, "subscribed state", func() bool { return f.State() == FeedSubscribed })
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.subscribed) != 1 || len(conn.subscribed[0]) != 2 {
		t.Fatalf("expected one subscription of 2 tokens, got %v", conn.subscribed)
	}
	if len(conn.modes) != 1 {
		t.Fatalf("expected full mode set once, got %v", conn.modes)
	}
}

func TestConnectRejectsOversizedUniverse(t *testing.T) {
	m := newInstrumentMapper()
	m.addMapping("A", 1)
	m.addMapping("B", 2)
	m.addMapping("C", 3)
	f, _ := newTestFeed(t, m, nil, FeedConfig{MaxTokensPerConn: 2})

	if err := f.Connect(context.Background()); err == nil {
		t.Fatal("expected error for universe larger than the per-connection limit")
	}
}

func TestDialFailureSchedulesBackoffWithoutSubscribe(t *testing.T) {
	conn0 := newFakeConn()
	conn1 := newFakeConn()
	f, delays := newTestFeed(t, testMapper(t), []*fakeConn{conn0, conn1},
		FeedConfig{Backoff: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn0.registered)

	// A failed dial reports the error first, then still fires the connect
	// callback with no socket underneath.
	conn0.fail(errTestDial)
	conn0.connect()

	waitFor(t, "retry connection", conn1.registered)
	if got := conn0.subscribeCalls(); got != 0 {
		t.Fatalf("subscribed %d times on a dead connection, want 0", got)
	}
	if !conn0.isStopped() {
		t.Fatal("failed connection was not stopped")
	}
	if got := f.ReconnectAttempts(); got != 1 {
		t.Fatalf("ReconnectAttempts = %d, want 1", got)
	}
	if len(*delays) != 1 || (*delays)[0] != 2*time.Second {
		t.Fatalf("delays = %v, want [2s]", *delays)
	}

	conn1.connect()
	waitFor(t, "recovered subscription", func() bool { return f.State() == FeedSubscribed })
	if got := f.ReconnectAttempts(); got != 0 {
		t.Fatalf("ReconnectAttempts after recovery = %d, want 0", got)
	}
}

func TestSubscribeRefusalSchedulesRetry(t *testing.T) {
	conn0 := newFakeConn()
	conn0.subscribeErr = errTestSubscribe
	conn1 := newFakeConn()
	f, delays := newTestFeed(t, testMapper(t), []*fakeConn{conn0, conn1},
		FeedConfig{Backoff: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn0.registered)

	// The refused subscription ends the attempt by itself; stopping the
	// connection fires no close event, so the retry must not depend on one.
	conn0.connect()

	waitFor(t, "retry connection", conn1.registered)
	if !conn0.isStopped() {
		t.Fatal("refused connection was not stopped")
	}
	if got := f.ReconnectAttempts(); got != 1 {
		t.Fatalf("ReconnectAttempts = %d, want 1", got)
	}
	if len(*delays) != 1 || (*delays)[0] != 2*time.Second {
		t.Fatalf("delays = %v, want [2s]", *delays)
	}

	conn1.connect()
	waitFor(t, "recovered subscription", func() bool { return f.State() == FeedSubscribed })
	if got := f.ReconnectAttempts(); got != 0 {
		t.Fatalf("ReconnectAttempts after recovery = %d, want 0", got)
	}
}

func TestReconnectCounterResetsOnlyAfterResubscription(t *testing.T) {
	conn0 := newFakeConn()
	conn1 := newFakeConn()
	conn1.subscribeErr = errTestSubscribe
	conn2 := newFakeConn()
	conn3 := newFakeConn()
	f, delays := newTestFeed(t, testMapper(t), []*fakeConn{conn0, conn1, conn2, conn3},
		FeedConfig{Backoff: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn0.registered)
	conn0.connect()
	waitFor(t, "initial subscription", func() bool { return f.State() == FeedSubscribed })

	// Server drop: attempt 1.
	conn0.drop(1006, "abnormal closure")
	waitFor(t, "second connection", conn1.registered)
	if got := f.ReconnectAttempts(); got != 1 {
		t.Fatalf("attempts after drop = %d, want 1", got)
	}

	// Refused subscription: attempt 2, no close event involved.
	conn1.connect()
	waitFor(t, "third connection", conn2.registered)
	if got := f.ReconnectAttempts(); got != 2 {
		t.Fatalf("attempts after refused subscribe = %d, want 2", got)
	}

	// Failed dial: attempt 3.
	conn2.fail(errTestDial)
	conn2.connect()
	waitFor(t, "fourth connection", conn3.registered)
	if got := f.ReconnectAttempts(); got != 3 {
		t.Fatalf("attempts after failed dial = %d, want 3", got)
	}

	// Counter resets only once the subscription is confirmed again.
	conn3.connect()
	waitFor(t, "recovered subscription", func() bool { return f.State() == FeedSubscribed })
	if got := f.ReconnectAttempts(); got != 0 {
		t.Fatalf("attempts after recovery = %d, want 0", got)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Fatalf("delays = %v, want %v", *delays, want)
		}
	}
}

func TestBackoffCapsAtLastEntry(t *testing.T) {
	f := newFeed(func() tickerConn { return newFakeConn() }, testMapper(t),
		FeedConfig{Backoff: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := f.backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestTickParsingAndVolumeDelta(t *testing.T) {
	conn := newFakeConn()
	f, _ := newTestFeed(t, testMapper(t), []*fakeConn{conn}, FeedConfig{MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn.registered)
	conn.connect()

	tickAt := func(token uint32, price float64, volume uint32) models.Tick {
		var tk models.Tick
		tk.InstrumentToken = token
		tk.LastPrice = price
		tk.VolumeTraded = volume
		return tk
	}

	conn.mu.Lock()
	onTick := conn.onTick
	conn.mu.Unlock()

	onTick(tickAt(100, 2500.50, 10000))
	onTick(tickAt(100, 2501.00, 15000))
	// Venue counter restart: delta is the new reading, not negative.
	onTick(tickAt(100, 2501.50, 4000))

	ev := <-f.Events()
	if ev.Tick.Symbol != "RELIANCE" || ev.Tick.LastPrice != 2500.50 || ev.VolumeDelta != 10000 {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	ev = <-f.Events()
	if ev.VolumeDelta != 5000 {
		t.Fatalf("second delta = %d, want 5000", ev.VolumeDelta)
	}
	ev = <-f.Events()
	if ev.VolumeDelta != 4000 {
		t.Fatalf("delta after counter restart = %d, want 4000", ev.VolumeDelta)
	}

	// Malformed price is skipped.
	onTick(tickAt(100, 0, 20000))
	select {
	case ev := <-f.Events():
		t.Fatalf("malformed tick was forwarded: %+v", ev)
	default:
	}
}

func TestTickForUnknownTokenSkipped(t *testing.T) {
	conn := newFakeConn()
	f, _ := newTestFeed(t, testMapper(t), []*fakeConn{conn}, FeedConfig{MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn.registered)

	var tk models.Tick
	tk.InstrumentToken = 999
	tk.LastPrice = 100
	tk.VolumeTraded = 1
	conn.mu.Lock()
	onTick := conn.onTick
	conn.mu.Unlock()
	onTick(tk)

	select {
	case ev := <-f.Events():
		t.Fatalf("tick for unknown token was forwarded: %+v", ev)
	default:
	}
}

func TestDisconnectStopsReconnect(t *testing.T) {
	conn := newFakeConn()
	f, delays := newTestFeed(t, testMapper(t), []*fakeConn{conn}, FeedConfig{MaxTokensPerConn: 3000})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "handler registration", conn.registered)
	conn.connect()
	waitFor(t, "subscribed state", func() bool { return f.State() == FeedSubscribed })

	f.Disconnect(context.Background())
	if f.State() != FeedDisconnected {
		t.Fatalf("state after disconnect = %q, want %q", f.State(), FeedDisconnected)
	}
	if !conn.isStopped() {
		t.Fatal("connection was not stopped on disconnect")
	}

	// A late close event after Disconnect must not schedule a reconnect.
	conn.drop(1000, "normal closure")
	time.Sleep(10 * time.Millisecond)
	if len(*delays) != 0 {
		t.Fatalf("reconnect scheduled after disconnect: delays = %v", *delays)
	}
	if got := f.ReconnectAttempts(); got != 0 {
		t.Fatalf("attempts after disconnect = %d, want 0", got)
	}
}
