package devices

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a device.
type State string

const (
	StateAvailable State = "AVAILABLE"
	StateInUse     State = "IN_USE"
	StateInactive  State = "INACTIVE"
)

// States lists every known state in declaration order.
func States() []State {
	return []State{StateAvailable, StateInUse, StateInactive}
}

// ParseState validates a state token. Matching is case-sensitive.
func ParseState(value string) (State, error) {
	switch State(value) {
	case StateAvailable, StateInUse, StateInactive:
		return State(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, value)
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, err := ParseState(string(s))
	return err == nil
}

// Brand is a manufacturer referenced by devices.
type Brand struct {
	ID   int64
	Name string
}

// Validate checks required brand fields.
func (b Brand) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: empty brand name", ErrInvalidDevice)
	}
	return nil
}

// Device is a tracked physical device.
type Device struct {
	ID           int64
	Name         string
	Brand        Brand
	State        State
	CreationTime time.Time
}

// Validate checks required device fields and the state token.
func (d Device) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDevice)
	}
	if err := d.Brand.Validate(); err != nil {
		return err
	}
	if !d.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, d.State)
	}
	return nil
}

// Locked reports whether identity fields (name, brand) are frozen.
func (d Device) Locked() bool {
	return d.State == StateInUse
}

// BrandRepository manages brand persistence.
// It does not enforce name uniqueness on Save; use Ensure for insert-if-absent.
type BrandRepository interface {
	FindAll(ctx context.Context) ([]Brand, error)
	FindByID(ctx context.Context, id int64) (*Brand, error)
	FindByName(ctx context.Context, name string) (*Brand, error)
	Save(ctx context.Context, brand *Brand) error
	Ensure(ctx context.Context, name string) (*Brand, error)
}

// DeviceRepository manages device persistence.
// Lookups return nil without error when nothing matches.
type DeviceRepository interface {
	FindAll(ctx context.Context) ([]Device, error)
	FindByID(ctx context.Context, id int64) (*Device, error)
	FindByName(ctx context.Context, name string) (*Device, error)
	FindByBrandName(ctx context.Context, brandName string) ([]Device, error)
	FindByState(ctx context.Context, state State) ([]Device, error)
	Save(ctx context.Context, device *Device) error
	DeleteByID(ctx context.Context, id int64) (bool, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
}

// Store groups the repositories that share a transaction boundary.
type Store interface {
	Brands() BrandRepository
	Devices() DeviceRepository
	WithinTx(ctx context.Context, fn func(Store) error) error
}
