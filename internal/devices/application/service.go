package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	devices "devices-api/internal/devices/domain"
	"devices-api/internal/observability/metrics"
)

// Update field names reported in UpdateResult.Ignored.
const (
	FieldName  = "name"
	FieldBrand = "brand"
)

// CreateInput describes a device to create.
type CreateInput struct {
	Name      string
	BrandName string
	State     devices.State
	// CreationTime defaults to the service clock when zero.
	CreationTime time.Time
}

// UpdateInput is a device patch. Nil name or brand means "leave unchanged".
type UpdateInput struct {
	Name      *string
	BrandName *string
	State     devices.State
}

// UpdateResult reports what Update did.
type UpdateResult struct {
	Device *devices.Device
	// Created is true when the id did not exist and the patch was used to create a device.
	Created bool
	// Ignored lists patch fields dropped because the device was IN_USE.
	Ignored []string
}

// Service enforces device uniqueness, brand resolution and in-use rules.
type Service struct {
	store     devices.Store
	clock     Clock
	publisher Publisher
	logger    zerolog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the clock used for creation timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher sets the device event publisher.
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a Service.
func NewService(store devices.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("device service: nil store")
	}
	s := &Service{
		store:     store,
		clock:     SystemClock{},
		publisher: nopPublisher{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListAll returns every device.
func (s *Service) ListAll(ctx context.Context) (list []devices.Device, err error) {
	defer observe("list_all", time.Now(), &err)
	return s.store.Devices().FindAll(ctx)
}

// GetByID returns the device or nil when it does not exist.
func (s *Service) GetByID(ctx context.Context, id int64) (device *devices.Device, err error) {
	defer observe("get", time.Now(), &err)
	return s.store.Devices().FindByID(ctx, id)
}

// ListByBrand returns devices whose brand name equals brandName exactly.
func (s *Service) ListByBrand(ctx context.Context, brandName string) (list []devices.Device, err error) {
	defer observe("list_by_brand", time.Now(), &err)
	return s.store.Devices().FindByBrandName(ctx, brandName)
}

// ListByState returns devices currently in state.
func (s *Service) ListByState(ctx context.Context, state devices.State) (list []devices.Device, err error) {
	defer observe("list_by_state", time.Now(), &err)
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", devices.ErrInvalidState, state)
	}
	return s.store.Devices().FindByState(ctx, state)
}

// Create persists a new device, reusing or creating its brand.
// It fails with devices.ErrAlreadyExists when the name is taken.
func (s *Service) Create(ctx context.Context, input CreateInput) (device *devices.Device, err error) {
	defer observe("create", time.Now(), &err)

	device, err = s.create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, DeviceEvent{Type: EventCreated, DeviceID: device.ID, Device: device})
	return device, nil
}

// Update patches the device with id. A missing id is treated as a create request.
// Name and brand are only applied when the stored device is not IN_USE; state is always applied.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (result *UpdateResult, err error) {
	defer observe("update", time.Now(), &err)

	if !input.State.Valid() {
		return nil, fmt.Errorf("%w: %q", devices.ErrInvalidState, input.State)
	}

	result = &UpdateResult{}
	err = s.store.WithinTx(ctx, func(tx devices.Store) error {
		existing, err := tx.Devices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			created, err := s.insert(ctx, tx, CreateInput{
				Name:      deref(input.Name),
				BrandName: deref(input.BrandName),
				State:     input.State,
			})
			if err != nil {
				return err
			}
			result.Device, result.Created = created, true
			return nil
		}

		device := *existing
		if device.Locked() {
			if input.Name != nil {
				result.Ignored = append(result.Ignored, FieldName)
			}
			if input.BrandName != nil {
				result.Ignored = append(result.Ignored, FieldBrand)
			}
		} else {
			if input.Name != nil {
				if strings.TrimSpace(*input.Name) == "" {
					return fmt.Errorf("%w: empty name", devices.ErrInvalidDevice)
				}
				device.Name = *input.Name
			}
			if input.BrandName != nil {
				brand, err := resolveBrand(ctx, tx, *input.BrandName)
				if err != nil {
					return err
				}
				device.Brand = *brand
			}
		}
		device.State = input.State
		device.CreationTime = existing.CreationTime

		if err := tx.Devices().Save(ctx, &device); err != nil {
			return err
		}
		result.Device = &device
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.Info().Int64("requested_id", id).Int64("device_id", result.Device.ID).Msg("update on missing device created a new one")
		s.publish(ctx, DeviceEvent{Type: EventCreated, DeviceID: result.Device.ID, Device: result.Device})
		return result, nil
	}

	for _, field := range result.Ignored {
		metrics.IncIgnoredField(field)
	}
	if len(result.Ignored) > 0 {
		s.logger.Info().Int64("device_id", id).Strs("ignored", result.Ignored).Msg("device in use, identity fields left unchanged")
	}
	s.publish(ctx, DeviceEvent{Type: EventUpdated, DeviceID: id, Device: result.Device, IgnoredFields: result.Ignored})
	return result, nil
}

// Delete removes the device with id. It reports false when no such device existed.
func (s *Service) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	defer observe("delete", time.Now(), &err)

	exists, err := s.store.Devices().ExistsByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	deleted, err = s.store.Devices().DeleteByID(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.publish(ctx, DeviceEvent{Type: EventDeleted, DeviceID: id})
	}
	return deleted, nil
}

func (s *Service) create(ctx context.Context, input CreateInput) (*devices.Device, error) {
	var created *devices.Device
	err := s.store.WithinTx(ctx, func(tx devices.Store) error {
		device, err := s.insert(ctx, tx, input)
		if err != nil {
			return err
		}
		created = device
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// insert must run inside a transaction on tx.
func (s *Service) insert(ctx context.Context, tx devices.Store, input CreateInput) (*devices.Device, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", devices.ErrInvalidDevice)
	}
	if strings.TrimSpace(input.BrandName) == "" {
		return nil, fmt.Errorf("%w: brand is required", devices.ErrInvalidDevice)
	}
	if !input.State.Valid() {
		return nil, fmt.Errorf("%w: %q", devices.ErrInvalidState, input.State)
	}

	existing, err := tx.Devices().FindByName(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: name %q", devices.ErrAlreadyExists, input.Name)
	}
	brand, err := resolveBrand(ctx, tx, input.BrandName)
	if err != nil {
		return nil, err
	}
	creationTime := input.CreationTime
	if creationTime.IsZero() {
		creationTime = s.clock.Now()
	}
	device := &devices.Device{
		Name:  input.Name,
		Brand: *brand,
		State: input.State,
		// Stored timestamps keep microseconds, so the returned device matches a later read.
		CreationTime: creationTime.UTC().Truncate(time.Microsecond),
	}
	if err := tx.Devices().Save(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *Service) publish(ctx context.Context, event DeviceEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}
	if err := s.publisher.PublishDeviceEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", string(event.Type)).Int64("device_id", event.DeviceID).Msg("publish device event failed")
	}
}

func resolveBrand(ctx context.Context, store devices.Store, name string) (*devices.Brand, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty brand name", devices.ErrInvalidDevice)
	}
	return store.Brands().Ensure(ctx, name)
}

func observe(op string, start time.Time, errp *error) {
	result := metrics.ResultSuccess
	if errp != nil && *errp != nil {
		switch {
		case errors.Is(*errp, devices.ErrAlreadyExists):
			result = metrics.ResultConflict
		case errors.Is(*errp, devices.ErrInvalidDevice), errors.Is(*errp, devices.ErrInvalidState):
			result = metrics.ResultInvalid
		default:
			result = metrics.ResultError
		}
	}
	metrics.ObserveOperation(op, result, time.Since(start))
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
