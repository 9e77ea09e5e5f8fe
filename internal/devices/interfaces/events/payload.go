package events

import (
	"encoding/json"
	"time"

	"devices-api/internal/devices/application"
)

const timeLayout = time.RFC3339Nano

type devicePayload struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	State        string `json:"state"`
	CreationTime string `json:"creationTime"`
}

type eventPayload struct {
	Type          string         `json:"type"`
	DeviceID      int64          `json:"device_id"`
	Device        *devicePayload `json:"device,omitempty"`
	IgnoredFields []string       `json:"ignored_fields,omitempty"`
	OccurredAt    string         `json:"occurred_at"`
}

func encodeEvent(event application.DeviceEvent) ([]byte, error) {
	payload := eventPayload{
		Type:          string(event.Type),
		DeviceID:      event.DeviceID,
		IgnoredFields: event.IgnoredFields,
		OccurredAt:    event.OccurredAt.UTC().Format(timeLayout),
	}
	if d := event.Device; d != nil {
		payload.Device = &devicePayload{
			ID:           d.ID,
			Name:         d.Name,
			Brand:        d.Brand.Name,
			State:        string(d.State),
			CreationTime: d.CreationTime.UTC().Format(timeLayout),
		}
	}
	return json.Marshal(payload)
}
