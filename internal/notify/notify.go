package notify

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"go.uber.org/zap"
)

// LogNotifier writes events to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, e domain.Event) error {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("signal_id", e.SignalID),
		zap.Any("payload", e.Payload),
	}
	if e.Type == domain.EventEscalation || e.Type == domain.EventInvestigationFailed {
		n.logger.Warn("event", fields...)
		return nil
	}
	n.logger.Info("event", fields...)
	return nil
}

// Multi fans an event out to several notifiers. Every notifier is called;
// errors are joined.
type Multi []domain.Notifier

func (m Multi) Publish(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
