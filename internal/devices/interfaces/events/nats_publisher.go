package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"devices-api/internal/devices/application"
	"devices-api/internal/observability/metrics"
)

const defaultSubjectPrefix = "devices"

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes device events as JSON on "<prefix>.<type>" subjects.
type NATSPublisher struct {
	conn   Conn
	prefix string
}

// NewNATSPublisher constructs a publisher on an established connection.
func NewNATSPublisher(conn Conn, prefix string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("nats publisher: nil conn")
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Connect dials NATS with a client name suitable for this service.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats publisher: empty url")
	}
	return nats.Connect(url,
		nats.Name("devices-api"),
		nats.MaxReconnects(-1),
	)
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType application.EventType) string {
	return p.prefix + "." + string(eventType)
}

// PublishDeviceEvent encodes and publishes the event.
func (p *NATSPublisher) PublishDeviceEvent(ctx context.Context, event application.DeviceEvent) error {
	if p == nil || p.conn == nil {
		return errors.New("nats publisher: nil conn")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEvent(event)
	if err != nil {
		metrics.IncEventPublished(string(event.Type), metrics.ResultError)
		return fmt.Errorf("nats publisher: encode: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		metrics.IncEventPublished(string(event.Type), metrics.ResultError)
		return fmt.Errorf("nats publisher: publish: %w", err)
	}
	metrics.IncEventPublished(string(event.Type), metrics.ResultSuccess)
	return nil
}

// MultiPublisher fans an event out to several publishers and joins their errors.
type MultiPublisher []application.Publisher

// PublishDeviceEvent publishes to every publisher.
func (m MultiPublisher) PublishDeviceEvent(ctx context.Context, event application.DeviceEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishDeviceEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
