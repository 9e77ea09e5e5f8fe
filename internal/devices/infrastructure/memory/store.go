package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	devices "devices-api/internal/devices/domain"
)

// Store is an in-memory devices.Store. Device names are unique, as in the SQL schema.
// Writes made outside WithinTx wait for a running transaction to finish, so a
// rollback never discards them.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	brands      map[int64]devices.Brand
	devices     map[int64]devices.Device
	nextBrandID int64
	nextID      int64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		brands:  make(map[int64]devices.Brand),
		devices: make(map[int64]devices.Device),
	}
}

// Brands returns the brand repository.
func (s *Store) Brands() devices.BrandRepository { return brandRepository{s: s} }

// Devices returns the device repository.
func (s *Store) Devices() devices.DeviceRepository { return deviceRepository{s: s} }

// WithinTx runs fn and restores the previous contents when it fails.
func (s *Store) WithinTx(ctx context.Context, fn func(devices.Store) error) error {
	_ = ctx
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	brands := make(map[int64]devices.Brand, len(s.brands))
	for id, b := range s.brands {
		brands[id] = b
	}
	stored := make(map[int64]devices.Device, len(s.devices))
	for id, d := range s.devices {
		stored[id] = d
	}
	nextBrandID, nextID := s.nextBrandID, s.nextID
	s.mu.RUnlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.brands, s.devices = brands, stored
		s.nextBrandID, s.nextID = nextBrandID, nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite holds txMu for a write issued outside a transaction.
func (s *Store) lockWrite(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

// txStore is the view handed to WithinTx callbacks. Nested calls join the running transaction.
type txStore struct{ s *Store }

func (t txStore) Brands() devices.BrandRepository { return brandRepository{s: t.s, inTx: true} }

func (t txStore) Devices() devices.DeviceRepository { return deviceRepository{s: t.s, inTx: true} }

func (t txStore) WithinTx(ctx context.Context, fn func(devices.Store) error) error {
	_ = ctx
	return fn(t)
}

type brandRepository struct {
	s    *Store
	inTx bool
}

func (r brandRepository) FindAll(ctx context.Context) ([]devices.Brand, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]devices.Brand, 0, len(r.s.brands))
	for _, b := range r.s.brands {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r brandRepository) FindByID(ctx context.Context, id int64) (*devices.Brand, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.brands[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r brandRepository) FindByName(ctx context.Context, name string) (*devices.Brand, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.brandByNameLocked(name), nil
}

// Save inserts or overwrites a brand. Name uniqueness is not checked here.
func (r brandRepository) Save(ctx context.Context, brand *devices.Brand) error {
	_ = ctx
	if brand == nil {
		return fmt.Errorf("%w: nil brand", devices.ErrInvalidDevice)
	}
	if err := brand.Validate(); err != nil {
		return err
	}
	defer r.s.lockWrite(r.inTx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if brand.ID == 0 {
		r.s.nextBrandID++
		brand.ID = r.s.nextBrandID
	}
	r.s.brands[brand.ID] = *brand
	return nil
}

func (r brandRepository) Ensure(ctx context.Context, name string) (*devices.Brand, error) {
	_ = ctx
	brand := devices.Brand{Name: name}
	if err := brand.Validate(); err != nil {
		return nil, err
	}
	defer r.s.lockWrite(r.inTx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.brandByNameLocked(name); existing != nil {
		return existing, nil
	}
	r.s.nextBrandID++
	brand.ID = r.s.nextBrandID
	r.s.brands[brand.ID] = brand
	return &brand, nil
}

func (s *Store) brandByNameLocked(name string) *devices.Brand {
	var found *devices.Brand
	for _, b := range s.brands {
		if b.Name != name {
			continue
		}
		if found == nil || b.ID < found.ID {
			b := b
			found = &b
		}
	}
	return found
}

type deviceRepository struct {
	s    *Store
	inTx bool
}

func (r deviceRepository) FindAll(ctx context.Context) ([]devices.Device, error) {
	return r.filter(ctx, func(devices.Device) bool { return true })
}

func (r deviceRepository) FindByID(ctx context.Context, id int64) (*devices.Device, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r deviceRepository) FindByName(ctx context.Context, name string) (*devices.Device, error) {
	list, err := r.filter(ctx, func(d devices.Device) bool { return d.Name == name })
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (r deviceRepository) FindByBrandName(ctx context.Context, brandName string) ([]devices.Device, error) {
	return r.filter(ctx, func(d devices.Device) bool { return d.Brand.Name == brandName })
}

func (r deviceRepository) FindByState(ctx context.Context, state devices.State) ([]devices.Device, error) {
	return r.filter(ctx, func(d devices.Device) bool { return d.State == state })
}

// Save inserts a device without id or overwrites an existing one.
func (r deviceRepository) Save(ctx context.Context, device *devices.Device) error {
	_ = ctx
	if device == nil {
		return devices.ErrNilDevice
	}
	if err := device.Validate(); err != nil {
		return err
	}
	defer r.s.lockWrite(r.inTx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.brands[device.Brand.ID]; !ok {
		return fmt.Errorf("device store: unknown brand id %d", device.Brand.ID)
	}
	for id, d := range r.s.devices {
		if d.Name == device.Name && id != device.ID {
			return fmt.Errorf("%w: name %q", devices.ErrAlreadyExists, device.Name)
		}
	}
	if device.ID == 0 {
		r.s.nextID++
		device.ID = r.s.nextID
	} else if existing, ok := r.s.devices[device.ID]; ok {
		device.CreationTime = existing.CreationTime
	}
	r.s.devices[device.ID] = *device
	return nil
}

func (r deviceRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	defer r.s.lockWrite(r.inTx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.devices[id]; !ok {
		return false, nil
	}
	delete(r.s.devices, id)
	return true, nil
}

func (r deviceRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.devices[id]
	return ok, nil
}

func (r deviceRepository) filter(ctx context.Context, keep func(devices.Device) bool) ([]devices.Device, error) {
	_ = ctx
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]devices.Device, 0)
	for _, d := range r.s.devices {
		if keep(d) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
