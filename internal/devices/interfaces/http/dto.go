package http

import (
	"time"

	devices "devices-api/internal/devices/domain"
)

const timeLayout = time.RFC3339Nano

// DeviceDTO is the wire representation of a device.
type DeviceDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	State        string `json:"state"`
	CreationTime string `json:"creationTime"`
}

// createRequest is the POST body. id and creationTime are accepted and ignored.
type createRequest struct {
	ID           *int64  `json:"id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	State        string  `json:"state"`
	CreationTime *string `json:"creationTime"`
}

// updateRequest is the PUT body. A null or missing name/brand leaves the field unchanged.
type updateRequest struct {
	ID           *int64  `json:"id"`
	Name         *string `json:"name"`
	Brand        *string `json:"brand"`
	State        string  `json:"state"`
	CreationTime *string `json:"creationTime"`
}

func toDTO(device devices.Device) DeviceDTO {
	return DeviceDTO{
		ID:           device.ID,
		Name:         device.Name,
		Brand:        device.Brand.Name,
		State:        string(device.State),
		CreationTime: device.CreationTime.UTC().Format(timeLayout),
	}
}

func toDTOs(list []devices.Device) []DeviceDTO {
	out := make([]DeviceDTO, 0, len(list))
	for _, device := range list {
		out = append(out, toDTO(device))
	}
	return out
}
