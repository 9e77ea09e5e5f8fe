package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	devices "devices-api/internal/devices/domain"
)

const selectDevices = `
SELECT d.id, d.name, b.id, b.name, d.state, d.creation_time
FROM devices d
JOIN brands b ON b.id = d.brand_id`

// DeviceRepository is a SQL implementation for devices.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindAll loads every device.
func (r *DeviceRepository) FindAll(ctx context.Context) ([]devices.Device, error) {
	return r.list(ctx, selectDevices+`
ORDER BY d.id ASC`)
}

// FindByID loads a device by id.
func (r *DeviceRepository) FindByID(ctx context.Context, id int64) (*devices.Device, error) {
	return r.one(ctx, selectDevices+`
WHERE d.id = $1`, id)
}

// FindByName loads a device by exact name.
func (r *DeviceRepository) FindByName(ctx context.Context, name string) (*devices.Device, error) {
	return r.one(ctx, selectDevices+`
WHERE d.name = $1
ORDER BY d.id ASC
LIMIT 1`, name)
}

// FindByBrandName loads devices whose brand name matches exactly.
func (r *DeviceRepository) FindByBrandName(ctx context.Context, brandName string) ([]devices.Device, error) {
	return r.list(ctx, selectDevices+`
WHERE b.name = $1
ORDER BY d.id ASC`, brandName)
}

// FindByState loads devices in state.
func (r *DeviceRepository) FindByState(ctx context.Context, state devices.State) ([]devices.Device, error) {
	return r.list(ctx, selectDevices+`
WHERE d.state = $1
ORDER BY d.id ASC`, string(state))
}

// Save inserts a device without id or updates name, brand and state of an existing one.
// creation_time is only written on insert. A name collision yields devices.ErrAlreadyExists.
func (r *DeviceRepository) Save(ctx context.Context, device *devices.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return devices.ErrNilDevice
	}
	if err := device.Validate(); err != nil {
		return err
	}
	if device.Brand.ID == 0 {
		return errors.New("device repo: brand not persisted")
	}

	if device.ID == 0 {
		if device.CreationTime.IsZero() {
			device.CreationTime = time.Now()
		}
		// TIMESTAMPTZ keeps microseconds.
		device.CreationTime = device.CreationTime.UTC().Truncate(time.Microsecond)
		err := r.db.QueryRowContext(ctx, `
INSERT INTO devices (name, brand_id, state, creation_time)
VALUES ($1, $2, $3, $4)
RETURNING id`,
			device.Name,
			device.Brand.ID,
			string(device.State),
			device.CreationTime,
		).Scan(&device.ID)
		if err != nil {
			return translate("insert", device.Name, err)
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE devices
SET name = $1,
	brand_id = $2,
	state = $3
WHERE id = $4`,
		device.Name,
		device.Brand.ID,
		string(device.State),
		device.ID,
	)
	if err != nil {
		return translate("update", device.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("device repo: id %d not found", device.ID)
	}

	// creation_time is immutable; report the stored value back to the caller.
	var creationTime time.Time
	if err := r.db.QueryRowContext(ctx, `SELECT creation_time FROM devices WHERE id = $1`, device.ID).Scan(&creationTime); err != nil {
		return fmt.Errorf("device repo: reload: %w", err)
	}
	device.CreationTime = creationTime.UTC()
	return nil
}

// DeleteByID removes a device and reports whether a row was deleted.
func (r *DeviceRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("device repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("device repo: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("device repo: delete: %w", err)
	}
	return n > 0, nil
}

// ExistsByID reports whether a device with id exists.
func (r *DeviceRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("device repo: nil db")
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("device repo: exists: %w", err)
	}
	return exists, nil
}

func (r *DeviceRepository) one(ctx context.Context, query string, args ...any) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("device repo: get: %w", err)
	}
	return device, nil
}

func (r *DeviceRepository) list(ctx context.Context, query string, args ...any) ([]devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("device repo: list: %w", err)
	}
	defer rows.Close()

	result := make([]devices.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("device repo: scan: %w", err)
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device repo: list: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*devices.Device, error) {
	var (
		device devices.Device
		state  string
	)
	if err := row.Scan(
		&device.ID,
		&device.Name,
		&device.Brand.ID,
		&device.Brand.Name,
		&state,
		&device.CreationTime,
	); err != nil {
		return nil, err
	}
	device.State = devices.State(state)
	device.CreationTime = device.CreationTime.UTC()
	return &device, nil
}

func translate(op, name string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: name %q", devices.ErrAlreadyExists, name)
	}
	return fmt.Errorf("device repo: %s: %w", op, err)
}
