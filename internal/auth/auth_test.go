package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/auth"
	"commerce-backend/internal/config"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
	"commerce-backend/internal/store/storetest"
)

var testAuthConfig = config.AuthConfig{
	AccessSecret:  "access-secret",
	RefreshSecret: "refresh-secret",
	AccessTTL:     time.Minute,
	RefreshTTL:    time.Hour,
	BcryptCost:    bcrypt.MinCost,
}

type env struct {
	app   *fiber.App
	store *store.Store
}

func setup(t *testing.T, limit config.RateLimitConfig) *env {
	t.Helper()
	s, _ := storetest.New(t)
	tokens := auth.NewTokens(testAuthConfig)
	h := auth.NewHandler(s, tokens, payment.NewOfflineGateway(), testAuthConfig)
	authn := auth.Middleware(s, tokens)

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	api := app.Group("/api")
	auth.RegisterRoutes(api, h, auth.NewRateLimiter(limit).Handler(), authn)
	api.Get("/me", authn, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": engine.GetActor(c)})
	})
	return &env{app: app, store: s}
}

var relaxed = config.RateLimitConfig{RPS: 1000, Burst: 1000}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func tokensOf(t *testing.T, body map[string]any) (string, string) {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data in %v", body)
	return data["access_token"].(string), data["refresh_token"].(string)
}

func signup(t *testing.T, e *env, email string) (string, string) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/signup/customer", "", map[string]any{
		"email": email, "password": "s3cret-pass", "first_name": "Ada", "last_name": "Lovelace",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return tokensOf(t, body)
}

func TestSignup_CreatesCustomerActor(t *testing.T) {
	e := setup(t, relaxed)
	access, _ := signup(t, e, "ada@example.com")

	status, body := e.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	me := body["data"].(map[string]any)
	assert.Equal(t, "CUSTOMER", me["role"])
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotNil(t, me["customer_id"])

	row, err := store.QueryRow(t.Context(), e.store.DB, "SELECT payment_customer_id FROM customers")
	require.NoError(t, err)
	assert.Contains(t, row["payment_customer_id"], "cus_offline_")
}

func TestSignup_DuplicateAndInvalid(t *testing.T) {
	e := setup(t, relaxed)
	signup(t, e, "ada@example.com")

	status, body := e.do(t, http.MethodPost, "/api/auth/signup/customer", "", map[string]any{
		"email": "ada@example.com", "password": "another-pass", "first_name": "A", "last_name": "L",
	})
	assert.Equal(t, http.StatusConflict, status, body)

	status, body = e.do(t, http.MethodPost, "/api/auth/signup/customer", "", map[string]any{
		"email": "not-an-email", "password": "short", "first_name": "A", "last_name": "L", "gender": "X",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	details := body["error"].(map[string]any)["details"].([]any)
	fields := map[string]bool{}
	for _, d := range details {
		fields[d.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])
	assert.True(t, fields["gender"])
}

func TestLogin_RoleScoped(t *testing.T) {
	e := setup(t, relaxed)
	signup(t, e, "ada@example.com")

	hash, err := auth.HashPassword("admin-pass", bcrypt.MinCost)
	require.NoError(t, err)
	storetest.Insert(t, e.store, "users", map[string]any{
		"email": "root@example.com", "password": hash, "role": "SUPERADMIN", "first_name": "Root", "last_name": "User",
	})

	status, _ := e.do(t, http.MethodPost, "/api/auth/login/customer", "", map[string]any{"email": "ada@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusOK, status)

	// a customer cannot use the admin login and vice versa
	status, _ = e.do(t, http.MethodPost, "/api/auth/login/admin", "", map[string]any{"email": "ada@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = e.do(t, http.MethodPost, "/api/auth/login/customer", "", map[string]any{"email": "root@example.com", "password": "admin-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := e.do(t, http.MethodPost, "/api/auth/login/admin", "", map[string]any{"email": "root@example.com", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, status)
	access, _ := tokensOf(t, body)
	status, body = e.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SUPERADMIN", body["data"].(map[string]any)["role"])
	assert.Nil(t, body["data"].(map[string]any)["customer_id"])

	status, _ = e.do(t, http.MethodPost, "/api/auth/login/customer", "", map[string]any{"email": "ada@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefresh_RotatesToken(t *testing.T) {
	e := setup(t, relaxed)
	_, refresh := signup(t, e, "ada@example.com")

	status, body := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, status)
	_, rotated := tokensOf(t, body)
	assert.NotEqual(t, refresh, rotated)

	status, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, status, "old refresh token must be rejected")

	status, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": rotated})
	assert.Equal(t, http.StatusOK, status)
}

func TestRefresh_AccessTokenIsNotARefreshToken(t *testing.T) {
	e := setup(t, relaxed)
	access, _ := signup(t, e, "ada@example.com")

	status, _ := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogout(t *testing.T) {
	e := setup(t, relaxed)
	access, refresh := signup(t, e, "ada@example.com")

	status, _ := e.do(t, http.MethodPost, "/api/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, http.MethodPost, "/api/auth/logout", access, nil)
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMiddleware_RejectsBadTokens(t *testing.T) {
	e := setup(t, relaxed)

	status, _ := e.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	other := auth.NewTokens(config.AuthConfig{AccessSecret: "other", RefreshSecret: "other", AccessTTL: time.Minute, RefreshTTL: time.Minute})
	pair, _, err := other.Issue(1, "x@example.com", ability.RoleSuperAdmin)
	require.NoError(t, err)
	status, _ = e.do(t, http.MethodGet, "/api/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// a valid token for a user that does not exist
	forged, _, err := auth.NewTokens(testAuthConfig).Issue(999, "ghost@example.com", ability.RoleSuperAdmin)
	require.NoError(t, err)
	status, _ = e.do(t, http.MethodGet, "/api/me", forged.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMiddleware_RoleComesFromStorage(t *testing.T) {
	e := setup(t, relaxed)
	access, _ := signup(t, e, "ada@example.com")

	_, err := store.Exec(t.Context(), e.store.DB, "UPDATE users SET role = 'ADMIN'")
	require.NoError(t, err)

	status, body := e.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ADMIN", body["data"].(map[string]any)["role"])
}

func TestRateLimiter(t *testing.T) {
	e := setup(t, config.RateLimitConfig{RPS: 0.001, Burst: 2})
	login := map[string]any{"email": "nobody@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		status, _ := e.do(t, http.MethodPost, "/api/auth/login/customer", "", login)
		require.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := e.do(t, http.MethodPost, "/api/auth/login/customer", "", login)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
}

func TestTokens_Claims(t *testing.T) {
	tokens := auth.NewTokens(testAuthConfig)
	pair, refreshID, err := tokens.Issue(42, "ada@example.com", ability.RoleCustomer)
	require.NoError(t, err)
	require.NotEmpty(t, refreshID)

	claims, err := tokens.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, ability.RoleCustomer, claims.Role)

	rc, err := tokens.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, refreshID, rc.ID)

	_, err = tokens.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}
