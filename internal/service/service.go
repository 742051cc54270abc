package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/internal/pkg/events"
)

// notifier publishes change events after a write has committed. Failures
// are logged and never fail the caller.
type notifier struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func (n notifier) notify(ctx context.Context, eventType, topic string, payload any) {
	if n.publisher == nil {
		return
	}
	e, err := events.New(eventType, topic, payload)
	if err == nil {
		err = n.publisher.Publish(ctx, e)
	}
	if err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

func nowMillis(now func() time.Time) int64 {
	return now().UnixMilli()
}

// normalizeName trims name and checks it is 1..max characters long.
func normalizeName(field, name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(field, "is required")
	}
	if len([]rune(name)) > max {
		return "", invalid(field, "is too long")
	}
	return name, nil
}

// fields is an event payload.
type fields map[string]any
