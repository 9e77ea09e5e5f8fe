package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	devices "devices-api/internal/devices/domain"
)

// BrandRepository is a SQL implementation for brands.
type BrandRepository struct {
	db DBTX
}

// NewBrandRepository constructs a repository.
func NewBrandRepository(db DBTX) *BrandRepository {
	return &BrandRepository{db: db}
}

// FindAll loads every brand.
func (r *BrandRepository) FindAll(ctx context.Context) ([]devices.Brand, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("brand repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name
FROM brands
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("brand repo: list: %w", err)
	}
	defer rows.Close()

	result := make([]devices.Brand, 0)
	for rows.Next() {
		var brand devices.Brand
		if err := rows.Scan(&brand.ID, &brand.Name); err != nil {
			return nil, fmt.Errorf("brand repo: scan: %w", err)
		}
		result = append(result, brand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("brand repo: list: %w", err)
	}
	return result, nil
}

// FindByID loads a brand by id.
func (r *BrandRepository) FindByID(ctx context.Context, id int64) (*devices.Brand, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByName loads a brand by exact name.
func (r *BrandRepository) FindByName(ctx context.Context, name string) (*devices.Brand, error) {
	return r.findOne(ctx, "name = $1", name)
}

// Save inserts a new brand or renames an existing one.
func (r *BrandRepository) Save(ctx context.Context, brand *devices.Brand) error {
	if r == nil || r.db == nil {
		return errors.New("brand repo: nil db")
	}
	if brand == nil {
		return errors.New("brand repo: nil brand")
	}
	if err := brand.Validate(); err != nil {
		return err
	}

	if brand.ID == 0 {
		err := r.db.QueryRowContext(ctx, `
INSERT INTO brands (name)
VALUES ($1)
RETURNING id`, brand.Name).Scan(&brand.ID)
		if err != nil {
			return fmt.Errorf("brand repo: insert: %w", err)
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE brands
SET name = $1
WHERE id = $2`, brand.Name, brand.ID)
	if err != nil {
		return fmt.Errorf("brand repo: update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("brand repo: id %d not found", brand.ID)
	}
	return nil
}

// Ensure returns the brand named name, inserting it when absent.
// Concurrent callers racing on the same name all observe the same row.
func (r *BrandRepository) Ensure(ctx context.Context, name string) (*devices.Brand, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("brand repo: nil db")
	}
	if err := (devices.Brand{Name: name}).Validate(); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO brands (name)
VALUES ($1)
ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return nil, fmt.Errorf("brand repo: ensure: %w", err)
	}
	brand, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if brand == nil {
		return nil, fmt.Errorf("brand repo: brand %q vanished after insert", name)
	}
	return brand, nil
}

func (r *BrandRepository) findOne(ctx context.Context, where string, arg any) (*devices.Brand, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("brand repo: nil db")
	}
	var brand devices.Brand
	err := r.db.QueryRowContext(ctx, `
SELECT id, name
FROM brands
WHERE `+where+`
ORDER BY id ASC
LIMIT 1`, arg).Scan(&brand.ID, &brand.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("brand repo: get: %w", err)
	}
	return &brand, nil
}
