package alerts

import (
	"context"
	"fmt"

	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/types"
)

// LogSender writes alerts to the structured log. It is the default delivery
// channel in DRY_RUN mode and the fallback when no external channel is
// configured.
type LogSender struct{}

var _ interfaces.AlertSender = LogSender{}

func (LogSender) Send(ctx context.Context, a types.Alert) error {
	logger.Info(ctx, "ALERT "+formatAlert(a),
		"kind", a.Kind,
		"symbol", a.Symbol,
	)
	return nil
}

func formatAlert(a types.Alert) string {
	switch a.Kind {
	case types.AlertKindSignal:
		return fmt.Sprintf("[SIGNAL] %s @ %.2f: %s", a.Symbol, a.Price, a.Message)
	case types.AlertKindExit:
		return fmt.Sprintf("[EXIT] %s @ %.2f pnl=%.2f (%.2f%%) %s: %s",
			a.Symbol, a.Price, a.PnL, a.PnLPct, a.Reason, a.Message)
	case types.AlertKindAdvisory:
		return fmt.Sprintf("[ADVISORY] %s: %s", a.Symbol, a.Message)
	default:
		return fmt.Sprintf("[STATUS] %s", a.Message)
	}
}
