package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/store"
)

// Middleware validates the bearer access token, loads the user and sets
// the request's actor.
func Middleware(s *store.Store, tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := tokens.ParseAccess(parts[1])
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}
		userID, err := claims.UserID()
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		actor, err := LoadActor(c.UserContext(), s, userID)
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnauthorizedError("User no longer exists")
		}
		if err != nil {
			return err
		}

		engine.SetActor(c, *actor)
		c.SetUserContext(instrument.WithUserID(c.UserContext(), strconv.FormatInt(actor.ID, 10)))
		return c.Next()
	}
}

// LoadActor reads the user's current role and customer id. Roles come from
// storage rather than the token so changes apply on the next request.
func LoadActor(ctx context.Context, s *store.Store, userID int64) (*ability.Actor, error) {
	pb := s.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.DB,
		`SELECT u.id, u.email, u.role, c.id AS customer_id
		 FROM users u LEFT JOIN customers c ON c.user_id = u.id
		 WHERE u.id = `+pb.Add(userID), pb.Params()...)
	if err != nil {
		return nil, err
	}

	// an unknown role is kept as is and builds an empty policy
	role, _ := ability.ParseRole(store.AsString(row["role"]))
	actor := &ability.Actor{ID: userID, Email: store.AsString(row["email"]), Role: role}
	if cid, ok := store.AsInt64(row["customer_id"]); ok {
		actor.CustomerID = &cid
	}
	return actor, nil
}
