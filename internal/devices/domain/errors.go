package devices

import "errors"

var (
	// ErrAlreadyExists is returned when a device name is already taken.
	ErrAlreadyExists = errors.New("devices: already exists")
	// ErrInvalidDevice is returned when device fields fail validation.
	ErrInvalidDevice = errors.New("devices: invalid device")
	// ErrInvalidState is returned for an unknown state token.
	ErrInvalidState = errors.New("devices: invalid state")
	// ErrNilDevice is returned when saving a nil device.
	ErrNilDevice = errors.New("devices: nil device")
)
