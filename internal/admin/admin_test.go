package admin_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/admin"
	"commerce-backend/internal/apitest"
	"commerce-backend/internal/config"
	"commerce-backend/internal/store/storetest"
)

func TestStaffManagement(t *testing.T) {
	s, reg := storetest.New(t)
	app, api := apitest.NewApp()
	admin.RegisterRoutes(api, admin.NewHandler(s, reg, ability.NewFactory(), config.AuthConfig{BcryptCost: bcrypt.MinCost}))

	customerUser, customerID := storetest.SeedCustomer(t, s, "alice@example.com")
	customer := apitest.Customer(customerUser, customerID)
	staff := apitest.Admin(storetest.SeedUser(t, s, "admin@example.com", "ADMIN", "x"))
	root := apitest.SuperAdmin(storetest.SeedUser(t, s, "root@example.com", "SUPERADMIN", "x"))

	t.Run("listing needs access to every user", func(t *testing.T) {
		for _, a := range []*ability.Actor{customer, staff} {
			res := apitest.Do(t, app, a, http.MethodGet, "/api/users", nil)
			assert.Equal(t, http.StatusForbidden, res.Status)
		}
		res := apitest.Do(t, app, root, http.MethodGet, "/api/users?filter[role]=ADMIN", nil)
		require.Equal(t, http.StatusOK, res.Status, res.Body)
		users := res.List(t)
		require.Len(t, users, 1)
		assert.Equal(t, "admin@example.com", users[0]["email"])
		assert.NotContains(t, users[0], "password")

		res = apitest.Do(t, app, root, http.MethodGet, "/api/users/count", nil)
		require.Equal(t, http.StatusOK, res.Status)
		assert.EqualValues(t, 3, res.Data(t)["count"])
	})

	var created float64
	t.Run("create staff", func(t *testing.T) {
		body := map[string]any{
			"email": "ops@example.com", "password": "long-enough", "first_name": "Op", "last_name": "Erator", "role": "ADMIN",
		}
		res := apitest.Do(t, app, staff, http.MethodPost, "/api/users/admin", body)
		assert.Equal(t, http.StatusForbidden, res.Status)

		res = apitest.Do(t, app, root, http.MethodPost, "/api/users/admin", body)
		require.Equal(t, http.StatusCreated, res.Status, res.Body)
		assert.Equal(t, "ADMIN", res.Data(t)["role"])
		created = res.Data(t)["id"].(float64)

		res = apitest.Do(t, app, root, http.MethodPost, "/api/users/admin", body)
		assert.Equal(t, http.StatusConflict, res.Status)

		body["email"], body["role"] = "sneaky@example.com", "CUSTOMER"
		res = apitest.Do(t, app, root, http.MethodPost, "/api/users/admin", body)
		assert.Equal(t, http.StatusForbidden, res.Status, "only staff roles may be created")
	})

	t.Run("update role", func(t *testing.T) {
		path := fmt.Sprintf("/api/users/admin/%d", int64(created))
		res := apitest.Do(t, app, staff, http.MethodPatch, path, map[string]any{"role": "SUPERADMIN"})
		assert.Equal(t, http.StatusForbidden, res.Status)

		res = apitest.Do(t, app, root, http.MethodPatch, path, map[string]any{"role": "SUPERADMIN"})
		require.Equal(t, http.StatusOK, res.Status, res.Body)
		assert.Equal(t, "SUPERADMIN", res.Data(t)["role"])

		res = apitest.Do(t, app, root, http.MethodPatch, fmt.Sprintf("/api/users/admin/%d", root.ID), map[string]any{"role": "ADMIN"})
		assert.Equal(t, http.StatusBadRequest, res.Status)

		res = apitest.Do(t, app, root, http.MethodPatch, fmt.Sprintf("/api/users/admin/%d", customer.ID), map[string]any{"role": "ADMIN"})
		assert.Equal(t, http.StatusBadRequest, res.Status)

		res = apitest.Do(t, app, root, http.MethodPatch, path, map[string]any{"role": "CUSTOMER"})
		assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	})
}

func TestSchemaIntrospection(t *testing.T) {
	s, reg := storetest.New(t)
	app, api := apitest.NewApp()
	admin.RegisterRoutes(api, admin.NewHandler(s, reg, ability.NewFactory(), config.AuthConfig{BcryptCost: bcrypt.MinCost}))
	root := apitest.SuperAdmin(1)

	res := apitest.Do(t, app, apitest.Admin(2), http.MethodGet, "/api/_admin/entities", nil)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = apitest.Do(t, app, root, http.MethodGet, "/api/_admin/entities", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Len(t, res.List(t), len(reg.AllEntities()))

	res = apitest.Do(t, app, root, http.MethodGet, "/api/_admin/entities/voucher", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "vouchers", res.Data(t)["table"])
	assert.NotEmpty(t, res.Data(t)["rules"])

	res = apitest.Do(t, app, root, http.MethodGet, "/api/_admin/entities/spaceship", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}
