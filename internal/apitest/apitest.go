// Package apitest drives Fiber handlers in tests with a chosen actor
// instead of real tokens.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
)

const actorHeader = "X-Test-Actor"

// NewApp returns an app with the production error handler and an /api
// group that trusts the actor sent by Do.
func NewApp() (*fiber.App, fiber.Router) {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	api := app.Group("/api", func(c *fiber.Ctx) error {
		if raw := c.Get(actorHeader); raw != "" {
			var a ability.Actor
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				return engine.UnauthorizedError("bad test actor")
			}
			engine.SetActor(c, a)
		}
		return c.Next()
	})
	return app, api
}

// Customer returns a CUSTOMER actor owning customerID.
func Customer(userID, customerID int64) *ability.Actor {
	return &ability.Actor{ID: userID, Email: "customer@example.com", Role: ability.RoleCustomer, CustomerID: &customerID}
}

func Admin(userID int64) *ability.Actor {
	return &ability.Actor{ID: userID, Email: "admin@example.com", Role: ability.RoleAdmin}
}

func SuperAdmin(userID int64) *ability.Actor {
	return &ability.Actor{ID: userID, Email: "root@example.com", Role: ability.RoleSuperAdmin}
}

// Response is a decoded JSON response.
type Response struct {
	Status int
	Body   map[string]any
}

// Data returns body.data as an object.
func (r Response) Data(t *testing.T) map[string]any {
	t.Helper()
	m, ok := r.Body["data"].(map[string]any)
	require.True(t, ok, "data is not an object: %v", r.Body)
	return m
}

// List returns body.data as a list of objects.
func (r Response) List(t *testing.T) []map[string]any {
	t.Helper()
	raw, ok := r.Body["data"].([]any)
	require.True(t, ok, "data is not a list: %v", r.Body)
	out := make([]map[string]any, len(raw))
	for i, v := range raw {
		out[i], _ = v.(map[string]any)
	}
	return out
}

// ErrorCode returns body.error.code, or "" when there is none.
func (r Response) ErrorCode() string {
	e, _ := r.Body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// Do sends a JSON request as actor; a nil actor is unauthenticated.
func Do(t *testing.T, app *fiber.App, actor *ability.Actor, method, path string, body any) Response {
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
	if actor != nil {
		b, err := json.Marshal(actor)
		require.NoError(t, err)
		req.Header.Set(actorHeader, string(b))
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := Response{Status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.Body), string(raw))
	}
	return out
}
