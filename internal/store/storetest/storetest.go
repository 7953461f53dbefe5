// Package storetest opens throwaway in-memory SQLite stores with the full
// schema applied.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

// New returns a migrated in-memory store and the schema registry.
func New(t *testing.T) (*store.Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, "sqlite", ":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	reg, err := metadata.Load()
	require.NoError(t, err)
	require.NoError(t, s.Bootstrap(ctx, reg, store.SeedUser{}))
	return s, reg
}

// Insert writes a row and returns its generated id.
func Insert(t *testing.T, s *store.Store, table string, values map[string]any) int64 {
	t.Helper()
	id, err := store.InsertRow(context.Background(), s.DB, s.Dialect, table, values)
	require.NoError(t, err)
	return id
}

// Catalog holds the ids of a minimal seeded catalog.
type Catalog struct {
	CityID    int64
	ProductID int64
	// Variants are priced 10.00 and 25.50.
	Variants [2]int64
}

// SeedCatalog inserts one city and one product with two variants.
func SeedCatalog(t *testing.T, s *store.Store) Catalog {
	t.Helper()
	country := Insert(t, s, "countries", map[string]any{"name": "Germany", "code": "DE"})
	region := Insert(t, s, "regions", map[string]any{"country_id": country, "name": "Bavaria"})
	city := Insert(t, s, "cities", map[string]any{"region_id": region, "name": "Munich"})

	brand := Insert(t, s, "brands", map[string]any{"name": "Acme"})
	category := Insert(t, s, "categories", map[string]any{"name": "Shirts"})
	product := Insert(t, s, "products", map[string]any{
		"gtin": "4006381333931", "name": "Tee", "category_id": category, "brand_id": brand,
	})
	return Catalog{
		CityID:    city,
		ProductID: product,
		Variants: [2]int64{
			Insert(t, s, "product_variants", map[string]any{"product_id": product, "name": "S", "sku": "TEE-S", "price": 10.0}),
			Insert(t, s, "product_variants", map[string]any{"product_id": product, "name": "M", "sku": "TEE-M", "price": 25.5}),
		},
	}
}

// SeedCustomer inserts a CUSTOMER user with its customer row.
func SeedCustomer(t *testing.T, s *store.Store, email string) (userID, customerID int64) {
	t.Helper()
	userID = Insert(t, s, "users", map[string]any{
		"email": email, "password": "x", "role": "CUSTOMER", "first_name": "Ada", "last_name": "Lovelace",
	})
	customerID = Insert(t, s, "customers", map[string]any{"user_id": userID, "payment_customer_id": "cus_" + email})
	return userID, customerID
}

// SeedUser inserts a user with the given role and password hash.
func SeedUser(t *testing.T, s *store.Store, email, role, passwordHash string) int64 {
	t.Helper()
	return Insert(t, s, "users", map[string]any{
		"email": email, "password": passwordHash, "role": role, "first_name": "Staff", "last_name": "Member",
	})
}
