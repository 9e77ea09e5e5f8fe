package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devices-api/internal/database"
	devices "devices-api/internal/devices/domain"
)

type backend struct {
	name string
	open func(t *testing.T) *sql.DB
}

func backends() []backend {
	return []backend{
		{name: "sqlite", open: openSQLite},
		{name: "postgres", open: openPostgres},
	}
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))
	return db
}

func openPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverPostgres))
	_, _ = db.ExecContext(ctx, "DELETE FROM devices")
	_, _ = db.ExecContext(ctx, "DELETE FROM brands")
	return db
}

func TestStore(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Run("ensure brand", func(t *testing.T) { testEnsureBrand(t, NewStore(b.open(t))) })
			t.Run("device crud", func(t *testing.T) { testDeviceCRUD(t, NewStore(b.open(t))) })
			t.Run("unique name", func(t *testing.T) { testUniqueName(t, NewStore(b.open(t))) })
			t.Run("queries", func(t *testing.T) { testQueries(t, NewStore(b.open(t))) })
			t.Run("tx rollback", func(t *testing.T) { testRollback(t, NewStore(b.open(t))) })
		})
	}
}

func testEnsureBrand(t *testing.T, store *Store) {
	ctx := context.Background()

	first, err := store.Brands().Ensure(ctx, "Dell")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	second, err := store.Brands().Ensure(ctx, "Dell")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := store.Brands().Ensure(ctx, "dell")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	all, err := store.Brands().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byID, err := store.Brands().FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "Dell", byID.Name)

	missing, err := store.Brands().FindByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testDeviceCRUD(t *testing.T, store *Store) {
	ctx := context.Background()
	brand, err := store.Brands().Ensure(ctx, "Dell")
	require.NoError(t, err)

	created := time.Date(2026, time.March, 4, 5, 6, 7, 123000, time.UTC)
	device := &devices.Device{Name: "Laptop", Brand: *brand, State: devices.StateAvailable, CreationTime: created}
	require.NoError(t, store.Devices().Save(ctx, device))
	require.NotZero(t, device.ID)

	got, err := store.Devices().FindByID(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Laptop", got.Name)
	assert.Equal(t, "Dell", got.Brand.Name)
	assert.Equal(t, devices.StateAvailable, got.State)
	assert.True(t, created.Equal(got.CreationTime), "creation time %s != %s", got.CreationTime, created)

	got.State = devices.StateInUse
	got.Name = "Laptop 2"
	got.CreationTime = created.Add(48 * time.Hour)
	require.NoError(t, store.Devices().Save(ctx, got))
	assert.True(t, created.Equal(got.CreationTime), "update must not move creation time")

	exists, err := store.Devices().ExistsByID(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := store.Devices().DeleteByID(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Devices().DeleteByID(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	exists, err = store.Devices().ExistsByID(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	missing, err := store.Devices().FindByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUniqueName(t *testing.T, store *Store) {
	ctx := context.Background()
	brand, err := store.Brands().Ensure(ctx, "Dell")
	require.NoError(t, err)

	require.NoError(t, store.Devices().Save(ctx, &devices.Device{Name: "Laptop", Brand: *brand, State: devices.StateAvailable}))
	err = store.Devices().Save(ctx, &devices.Device{Name: "Laptop", Brand: *brand, State: devices.StateInactive})
	assert.ErrorIs(t, err, devices.ErrAlreadyExists)

	other := &devices.Device{Name: "Phone", Brand: *brand, State: devices.StateInactive}
	require.NoError(t, store.Devices().Save(ctx, other))
	other.Name = "Laptop"
	err = store.Devices().Save(ctx, other)
	assert.ErrorIs(t, err, devices.ErrAlreadyExists)
}

func testQueries(t *testing.T, store *Store) {
	ctx := context.Background()
	dell, err := store.Brands().Ensure(ctx, "Dell")
	require.NoError(t, err)
	hp, err := store.Brands().Ensure(ctx, "HP")
	require.NoError(t, err)

	for _, d := range []devices.Device{
		{Name: "A", Brand: *dell, State: devices.StateAvailable},
		{Name: "B", Brand: *dell, State: devices.StateInUse},
		{Name: "C", Brand: *hp, State: devices.StateAvailable},
	} {
		d := d
		require.NoError(t, store.Devices().Save(ctx, &d))
	}

	all, err := store.Devices().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byBrand, err := store.Devices().FindByBrandName(ctx, "Dell")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(byBrand))

	none, err := store.Devices().FindByBrandName(ctx, "Lenovo")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	available, err := store.Devices().FindByState(ctx, devices.StateAvailable)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, names(available))

	inactive, err := store.Devices().FindByState(ctx, devices.StateInactive)
	require.NoError(t, err)
	assert.Empty(t, inactive)

	byName, err := store.Devices().FindByName(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "HP", byName.Brand.Name)
}

func testRollback(t *testing.T, store *Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx devices.Store) error {
		brand, err := tx.Brands().Ensure(ctx, "Acme")
		if err != nil {
			return err
		}
		if err := tx.Devices().Save(ctx, &devices.Device{Name: "Widget", Brand: *brand, State: devices.StateAvailable}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	brand, err := store.Brands().FindByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, brand)

	device, err := store.Devices().FindByName(ctx, "Widget")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func names(list []devices.Device) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.Name)
	}
	return out
}
