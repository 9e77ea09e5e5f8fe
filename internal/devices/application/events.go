package application

import (
	"context"
	"time"

	devices "devices-api/internal/devices/domain"
)

// EventType names a device lifecycle change.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// DeviceEvent is emitted after a mutation has been persisted.
type DeviceEvent struct {
	Type          EventType
	DeviceID      int64
	Device        *devices.Device
	IgnoredFields []string
	OccurredAt    time.Time
}

// Publisher delivers device events to interested parties.
type Publisher interface {
	PublishDeviceEvent(ctx context.Context, event DeviceEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishDeviceEvent(context.Context, DeviceEvent) error { return nil }

// Clock abstracts wall time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real UTC time.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
