package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"devices-api/internal/devices/application"
	"devices-api/internal/observability/metrics"
)

// LoggingPublisher logs device events.
type LoggingPublisher struct {
	logger zerolog.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

// PublishDeviceEvent logs the event.
func (p *LoggingPublisher) PublishDeviceEvent(ctx context.Context, event application.DeviceEvent) error {
	_ = ctx
	if p == nil {
		return errors.New("device publisher: nil publisher")
	}
	entry := p.logger.Info().
		Str("type", string(event.Type)).
		Int64("device_id", event.DeviceID).
		Time("occurred_at", event.OccurredAt)
	if event.Device != nil {
		entry = entry.Str("name", event.Device.Name).
			Str("brand", event.Device.Brand.Name).
			Str("state", string(event.Device.State))
	}
	if len(event.IgnoredFields) > 0 {
		entry = entry.Strs("ignored", event.IgnoredFields)
	}
	entry.Msg("device event")
	metrics.IncEventPublished(string(event.Type), metrics.ResultSuccess)
	return nil
}
