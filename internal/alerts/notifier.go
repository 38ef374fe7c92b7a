package alerts

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier satisfies Notifier by logging the triggered alert instead
// of sending mail — original_source's email_notifier depends on an SMTP
// relay the core has no equivalent for, and spec.md §1 treats alert
// delivery as an external collaborator.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPriceAlert(ctx context.Context, email, symbol string, target, current float64, condition Condition) error {
	n.logger.Info("price alert triggered",
		zap.String("email", email), zap.String("symbol", symbol),
		zap.Float64("target", target), zap.Float64("current", current),
		zap.String("condition", string(condition)))
	return nil
}
