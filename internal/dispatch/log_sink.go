package dispatch

import (
	"context"

	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

// LogSink records the confirmation in the service log. Used when no
// notifications topic is configured.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, msg OrderConfirmation) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithOrderID(ctx, msg.OrderID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total": msg.Total.StringFixed(2),
		"lines": len(msg.Lines),
	}), "order confirmation queued")
	return nil
}
