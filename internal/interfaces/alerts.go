package interfaces

import (
	"context"

	"intraday-scanner/internal/types"
)

// AlertSender delivers a structured alert. Transport and formatting belong to
// the implementation; the engine only constructs the payload.
type AlertSender interface {
	Send(ctx context.Context, alert types.Alert) error
}
