package alerts

import (
	"context"
	"sync"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/types"
)

// Dispatcher decouples alert construction from delivery: producers enqueue
// onto a bounded buffer and a single worker drains it through the configured
// sender. A full buffer drops the alert rather than blocking the scan cycle.
type Dispatcher struct {
	sender interfaces.AlertSender
	queue  chan types.Alert

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(sender interfaces.AlertSender, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan types.Alert, bufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case alert := <-d.queue:
				d.deliver(ctx, alert)
			case <-d.done:
				// Drain whatever is still queued before stopping.
				for {
					select {
					case alert := <-d.queue:
						d.deliver(ctx, alert)
					default:
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Enqueue queues an alert for async delivery. Never blocks.
func (d *Dispatcher) Enqueue(alert types.Alert) {
	select {
	case d.queue <- alert:
	default:
		logger.Warn(context.Background(), "Alert queue full, dropping alert",
			"kind", alert.Kind,
			"symbol", alert.Symbol,
		)
	}
}

// Stop flushes pending alerts and stops the worker.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, alert types.Alert) {
	if d.sender == nil {
		return
	}
	if err := d.sender.Send(ctx, alert); err != nil {
		// Delivery is best-effort; a failed send never propagates.
		logger.ErrorWithErr(ctx, "Failed to deliver alert", err,
			"kind", alert.Kind,
			"symbol", alert.Symbol,
		)
	}
}
