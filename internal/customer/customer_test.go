package customer_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/apitest"
	"commerce-backend/internal/customer"
	"commerce-backend/internal/store"
	"commerce-backend/internal/store/storetest"
)

type fixture struct {
	app     *fiber.App
	store   *store.Store
	catalog storetest.Catalog
	alice   *ability.Actor
	bob     *ability.Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, reg := storetest.New(t)
	app, api := apitest.NewApp()
	customer.RegisterRoutes(api, customer.NewHandler(s, reg, ability.NewFactory()))

	aliceUser, aliceCustomer := storetest.SeedCustomer(t, s, "alice@example.com")
	bobUser, bobCustomer := storetest.SeedCustomer(t, s, "bob@example.com")
	return &fixture{
		app:     app,
		store:   s,
		catalog: storetest.SeedCatalog(t, s),
		alice:   apitest.Customer(aliceUser, aliceCustomer),
		bob:     apitest.Customer(bobUser, bobCustomer),
	}
}

func base(a *ability.Actor) string {
	return fmt.Sprintf("/api/customers/%d", *a.CustomerID)
}

func TestAddresses_OwnerLifecycle(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/addresses"

	first := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"city_id": f.catalog.CityID, "address1": "Main St 1"})
	require.Equal(t, http.StatusCreated, first.Status, first.Body)
	assert.Equal(t, true, first.Data(t)["is_default"], "first address becomes default")

	second := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"city_id": f.catalog.CityID, "address1": "Side St 2", "address2": "Apt 3"})
	require.Equal(t, http.StatusCreated, second.Status)
	assert.Equal(t, false, second.Data(t)["is_default"])
	secondID := int64(second.Data(t)["id"].(float64))

	res := apitest.Do(t, f.app, f.alice, http.MethodPatch, fmt.Sprintf("%s/%d/default", path, secondID), nil)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, true, res.Data(t)["is_default"])

	list := apitest.Do(t, f.app, f.alice, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, list.Status)
	defaults := 0
	for _, a := range list.List(t) {
		if a["is_default"] == true {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	res = apitest.Do(t, f.app, f.alice, http.MethodPatch, fmt.Sprintf("%s/%d", path, secondID), map[string]any{"address1": "Side St 4"})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Side St 4", res.Data(t)["address1"])

	res = apitest.Do(t, f.app, f.alice, http.MethodDelete, fmt.Sprintf("%s/%d", path, secondID), nil)
	require.Equal(t, http.StatusOK, res.Status)
	res = apitest.Do(t, f.app, f.alice, http.MethodGet, fmt.Sprintf("%s/%d", path, secondID), nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestAddresses_OtherCustomerIsForbidden(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/addresses"
	created := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"city_id": f.catalog.CityID, "address1": "Main St 1"})
	require.Equal(t, http.StatusCreated, created.Status)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, path},
		{http.MethodGet, path + "/1"},
		{http.MethodPost, path},
		{http.MethodPatch, path + "/1"},
		{http.MethodPatch, path + "/1/default"},
		{http.MethodDelete, path + "/1"},
	} {
		res := apitest.Do(t, f.app, f.bob, tc.method, tc.path, map[string]any{"city_id": f.catalog.CityID, "address1": "x"})
		assert.Equal(t, http.StatusForbidden, res.Status, "%s %s", tc.method, tc.path)
	}

	// an address id from another customer is not found under one's own path
	res := apitest.Do(t, f.app, f.bob, http.MethodGet, base(f.bob)+"/addresses/1", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestAddresses_AdminReadsOnly(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/addresses"
	require.Equal(t, http.StatusCreated, apitest.Do(t, f.app, f.alice, http.MethodPost, path,
		map[string]any{"city_id": f.catalog.CityID, "address1": "Main St 1"}).Status)

	admin := apitest.Admin(99)
	res := apitest.Do(t, f.app, admin, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Len(t, res.List(t), 1)

	res = apitest.Do(t, f.app, admin, http.MethodPost, path, map[string]any{"city_id": f.catalog.CityID, "address1": "x"})
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = apitest.Do(t, f.app, admin, http.MethodGet, "/api/customers/999/addresses", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestAddresses_Validation(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/addresses"

	res := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"address1": "no city"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"city_id": 4242, "address1": "bad city"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestCart(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/cart-items"
	v := f.catalog.Variants

	res := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"items": []map[string]any{
		{"product_variant_id": v[0], "quantity": 2},
		{"product_variant_id": v[1], "quantity": 1},
	}})
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	assert.Len(t, res.List(t), 2)

	// duplicates are skipped rather than rejected
	res = apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"items": []map[string]any{
		{"product_variant_id": v[0], "quantity": 9},
	}})
	require.Equal(t, http.StatusCreated, res.Status)
	items := res.List(t)
	require.Len(t, items, 2)
	assert.EqualValues(t, 2, items[0]["quantity"])

	itemID := int64(items[0]["id"].(float64))
	res = apitest.Do(t, f.app, f.alice, http.MethodPatch, fmt.Sprintf("%s/%d", path, itemID), map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, res.Status)
	assert.EqualValues(t, 5, res.Data(t)["quantity"])

	res = apitest.Do(t, f.app, f.alice, http.MethodPatch, fmt.Sprintf("%s/%d", path, itemID), map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = apitest.Do(t, f.app, f.bob, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = apitest.Do(t, f.app, apitest.Admin(99), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, res.Status, "admins have no cart rules")

	res = apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"items": []map[string]any{
		{"product_variant_id": 4242, "quantity": 1},
	}})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = apitest.Do(t, f.app, f.alice, http.MethodDelete, fmt.Sprintf("%s/%d", path, itemID), nil)
	require.Equal(t, http.StatusOK, res.Status)
	res = apitest.Do(t, f.app, f.alice, http.MethodGet, path, nil)
	assert.Len(t, res.List(t), 1)
}

func TestWishlists(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/wishlists"

	res := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"title": "Birthday"})
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	wl := res.Data(t)
	assert.Equal(t, true, wl["is_private"])
	assert.Empty(t, wl["product_ids"])
	id := int64(wl["id"].(float64))

	itemsPath := fmt.Sprintf("%s/%d/items", path, id)
	for i := 0; i < 2; i++ {
		res = apitest.Do(t, f.app, f.alice, http.MethodPost, itemsPath, map[string]any{"product_id": f.catalog.ProductID})
		require.Equal(t, http.StatusOK, res.Status, res.Body)
	}
	assert.Len(t, res.Data(t)["product_ids"], 1)

	res = apitest.Do(t, f.app, f.alice, http.MethodPatch, fmt.Sprintf("%s/%d", path, id), map[string]any{"is_private": false})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, false, res.Data(t)["is_private"])

	res = apitest.Do(t, f.app, f.bob, http.MethodGet, fmt.Sprintf("%s/%d", path, id), nil)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = apitest.Do(t, f.app, f.alice, http.MethodDelete, fmt.Sprintf("%s/%d", itemsPath, f.catalog.ProductID), nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, res.Data(t)["product_ids"])

	res = apitest.Do(t, f.app, f.alice, http.MethodDelete, fmt.Sprintf("%s/%d", itemsPath, f.catalog.ProductID), nil)
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = apitest.Do(t, f.app, f.alice, http.MethodDelete, fmt.Sprintf("%s/%d", path, id), nil)
	require.Equal(t, http.StatusOK, res.Status)
	res = apitest.Do(t, f.app, f.alice, http.MethodGet, path, nil)
	assert.Empty(t, res.List(t))
}

func TestHistory(t *testing.T) {
	f := setup(t)
	path := base(f.alice) + "/history"

	res := apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"product_id": f.catalog.ProductID})
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	res = apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"product_id": f.catalog.ProductID})
	require.Equal(t, http.StatusCreated, res.Status)
	lastID := res.Data(t)["id"]

	res = apitest.Do(t, f.app, f.alice, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, res.Status)
	entries := res.List(t)
	require.Len(t, entries, 2)
	assert.Equal(t, lastID, entries[0]["id"], "newest first")

	res = apitest.Do(t, f.app, f.alice, http.MethodPost, path, map[string]any{"product_id": 4242})
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = apitest.Do(t, f.app, f.bob, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = apitest.Do(t, f.app, nil, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}
