package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devices-api/internal/devices/application"
	devices "devices-api/internal/devices/domain"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return c.err
}

func sampleEvent() application.DeviceEvent {
	at := time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)
	return application.DeviceEvent{
		Type:     application.EventUpdated,
		DeviceID: 7,
		Device: &devices.Device{
			ID:           7,
			Name:         "Laptop",
			Brand:        devices.Brand{ID: 1, Name: "Dell"},
			State:        devices.StateInUse,
			CreationTime: at,
		},
		IgnoredFields: []string{"name"},
		OccurredAt:    at.Add(time.Hour),
	}
}

func TestNATSPublisher_PublishesJSON(t *testing.T) {
	conn := &fakeConn{}
	pub, err := NewNATSPublisher(conn, "inventory.")
	require.NoError(t, err)

	require.NoError(t, pub.PublishDeviceEvent(context.Background(), sampleEvent()))
	assert.Equal(t, "inventory.updated", conn.subject)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(conn.data, &payload))
	assert.Equal(t, "updated", payload["type"])
	device := payload["device"].(map[string]any)
	assert.Equal(t, "Dell", device["brand"])
	assert.Equal(t, "IN_USE", device["state"])
	assert.Equal(t, []any{"name"}, payload["ignored_fields"])
}

func TestNATSPublisher_DefaultPrefixAndErrors(t *testing.T) {
	_, err := NewNATSPublisher(nil, "")
	require.Error(t, err)

	conn := &fakeConn{err: errors.New("no responders")}
	pub, err := NewNATSPublisher(conn, "")
	require.NoError(t, err)
	assert.Equal(t, "devices.deleted", pub.Subject(application.EventDeleted))

	err = pub.PublishDeviceEvent(context.Background(), application.DeviceEvent{Type: application.EventDeleted, DeviceID: 3})
	require.Error(t, err)
}

func TestMultiPublisher(t *testing.T) {
	ok := &fakeConn{}
	bad := &fakeConn{err: errors.New("down")}
	okPub, _ := NewNATSPublisher(ok, "a")
	badPub, _ := NewNATSPublisher(bad, "b")

	multi := MultiPublisher{NewLoggingPublisher(zerolog.Nop()), okPub, badPub}
	err := multi.PublishDeviceEvent(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, "a.updated", ok.subject)
}
