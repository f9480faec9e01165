package bus

import (
	"context"
	"log/slog"

	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// LogHandler returns a handler that writes every event to the log. Per-query
// events are logged at debug level, everything else at info.
func LogHandler(log *logger.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		level := slog.LevelInfo
		if event.Type == TopicQueryCompleted {
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "event received",
			"type", event.Type,
			"event_id", event.ID,
			"source", event.Source,
			"correlation_id", event.CorrelationID,
		)
		return nil
	}
}

// SubscribeLogging attaches LogHandler to the evaluation topics.
func SubscribeLogging(ctx context.Context, b Bus, prefix string, log *logger.Logger) error {
	for _, name := range []string{TopicQueryCompleted, TopicRunCompleted} {
		if err := b.Subscribe(ctx, Topic(prefix, name), LogHandler(log)); err != nil {
			return err
		}
	}
	return nil
}
