package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
	"commerce-backend/internal/store/storetest"
)

func TestBootstrapSeedsSuperAdminOnce(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", ":memory:", 1)
	require.NoError(t, err)
	defer s.Close()

	reg, err := metadata.Load()
	require.NoError(t, err)

	seed := store.SeedUser{Email: "root@localhost", Password: "secret", BcryptCost: bcrypt.MinCost}
	require.NoError(t, s.Bootstrap(ctx, reg, seed))
	require.NoError(t, s.Bootstrap(ctx, reg, seed), "bootstrap must be idempotent")

	rows, err := store.QueryRows(ctx, s.DB, "SELECT email, role, password FROM users")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "root@localhost", rows[0]["email"])
	assert.Equal(t, "SUPERADMIN", rows[0]["role"])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.AsString(rows[0]["password"])), []byte("secret")))
}

func TestInsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	id := storetest.Insert(t, s, "brands", map[string]any{"name": "Acme"})
	require.NotZero(t, id)

	require.NoError(t, store.UpdateRow(ctx, s.DB, s.Dialect, "brands", id, map[string]any{"name": "Acme 2"}, true))
	row, err := store.FindByID(ctx, s.DB, s.Dialect, "brands", []string{"id", "name"}, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme 2", row["name"])

	require.NoError(t, store.DeleteRow(ctx, s.DB, s.Dialect, "brands", id))
	_, err = store.FindByID(ctx, s.DB, s.Dialect, "brands", nil, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, store.DeleteRow(ctx, s.DB, s.Dialect, "brands", id), store.ErrNotFound)
}

func TestConstraintErrorsAreMapped(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	storetest.Insert(t, s, "brands", map[string]any{"name": "Acme"})
	_, err := store.InsertRow(ctx, s.DB, s.Dialect, "brands", map[string]any{"name": "Acme"})
	assert.True(t, errors.Is(err, store.ErrUniqueViolation), "got %v", err)

	_, err = store.InsertRow(ctx, s.DB, s.Dialect, "regions", map[string]any{"name": "Nowhere", "country_id": int64(404)})
	assert.True(t, errors.Is(err, store.ErrForeignKeyViolation), "got %v", err)
}

func TestNormalizeBooleans(t *testing.T) {
	rows := []map[string]any{{"is_default": int64(1), "n": int64(1)}, {"is_default": int64(0)}}
	store.NormalizeBooleans(rows, []string{"is_default"})
	assert.Equal(t, true, rows[0]["is_default"])
	assert.Equal(t, false, rows[1]["is_default"])
	assert.Equal(t, int64(1), rows[0]["n"])
}

func TestMigrateAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s, reg := storetest.New(t)

	brand := *reg.GetEntity("brand")
	brand.Fields = append(append([]metadata.Field{}, brand.Fields...), metadata.Field{Name: "website", Type: "string"})
	require.NoError(t, store.NewMigrator(s).Migrate(ctx, &brand))

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "brands")
	require.NoError(t, err)
	assert.Contains(t, cols, "website")
}

func TestFindWhere(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	country := storetest.Insert(t, s, "countries", map[string]any{"name": "Germany", "code": "DE"})
	other := storetest.Insert(t, s, "countries", map[string]any{"name": "France", "code": "FR"})
	storetest.Insert(t, s, "regions", map[string]any{"country_id": country, "name": "Bavaria"})
	storetest.Insert(t, s, "regions", map[string]any{"country_id": country, "name": "Saxony"})
	storetest.Insert(t, s, "regions", map[string]any{"country_id": other, "name": "Brittany"})

	rows, err := store.FindWhere(ctx, s.DB, s.Dialect, "regions", []string{"id", "name"}, map[string]any{"country_id": country})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bavaria", rows[0]["name"])
	assert.Equal(t, "Saxony", rows[1]["name"])

	row, err := store.FindOneWhere(ctx, s.DB, s.Dialect, "regions", nil, map[string]any{"country_id": other, "name": "Brittany"})
	require.NoError(t, err)
	assert.Equal(t, "Brittany", row["name"])

	_, err = store.FindOneWhere(ctx, s.DB, s.Dialect, "regions", nil, map[string]any{"country_id": other, "name": "Bavaria"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
