package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/config"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
)

// Handler serves signup, login, refresh and logout.
type Handler struct {
	store      *store.Store
	tokens     *Tokens
	gateway    payment.Gateway
	bcryptCost int
}

func NewHandler(s *store.Store, tokens *Tokens, gw payment.Gateway, cfg config.AuthConfig) *Handler {
	return &Handler{store: s, tokens: tokens, gateway: gw, bcryptCost: cfg.BcryptCost}
}

type SignupRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=8,max=72"`
	FirstName   string  `json:"first_name" validate:"required,max=50"`
	LastName    string  `json:"last_name" validate:"required,max=50"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	BirthDate   *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SignupCustomer handles POST /api/auth/signup/customer.
func (h *Handler) SignupCustomer(c *fiber.Ctx) error {
	var req SignupRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	hash, err := HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		return err
	}

	// fail fast on a taken email before creating anything at the processor
	if _, err := h.findUser(ctx, req.Email); err == nil {
		return engine.ConflictError("There is an existing account with that email")
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	gatewayID, err := h.gateway.CreateCustomer(ctx, req.FirstName+" "+req.LastName, req.Email)
	if err != nil {
		return fmt.Errorf("create payment customer: %w", err)
	}

	user := map[string]any{
		"email":        req.Email,
		"password":     hash,
		"role":         string(ability.RoleCustomer),
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": optional(req.PhoneNumber),
		"gender":       optional(req.Gender),
		"birth_date":   optional(req.BirthDate),
	}
	var userID int64
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := store.InsertRow(ctx, tx, h.store.Dialect, "users", user)
		if err != nil {
			return err
		}
		userID = id
		_, err = store.InsertRow(ctx, tx, h.store.Dialect, "customers", map[string]any{
			"user_id":             id,
			"payment_customer_id": gatewayID,
		})
		return err
	})
	if err != nil {
		if derr := h.gateway.DeleteCustomer(ctx, gatewayID); derr != nil {
			slog.WarnContext(ctx, "orphaned payment customer", "payment_customer_id", gatewayID, "err", derr)
		}
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("There is an existing account with that email")
		}
		return fmt.Errorf("signup: %w", err)
	}

	pair, err := h.issue(ctx, userID, req.Email, ability.RoleCustomer)
	if err != nil {
		return err
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "auth.signup", "user", strconv.FormatInt(userID, 10), nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": pair})
}

// LoginCustomer handles POST /api/auth/login/customer.
func (h *Handler) LoginCustomer(c *fiber.Ctx) error {
	return h.login(c, ability.RoleCustomer)
}

// LoginAdmin handles POST /api/auth/login/admin for ADMIN and SUPERADMIN.
func (h *Handler) LoginAdmin(c *fiber.Ctx) error {
	return h.login(c, ability.RoleAdmin, ability.RoleSuperAdmin)
}

func (h *Handler) login(c *fiber.Ctx, roles ...ability.Role) error {
	var req LoginRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	user, err := h.findUser(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return engine.UnauthorizedError("Invalid email or password")
	}
	if err != nil {
		return err
	}
	role, _ := ability.ParseRole(store.AsString(user["role"]))
	if !slices.Contains(roles, role) {
		return engine.UnauthorizedError("Invalid email or password")
	}
	if !CheckPassword(req.Password, store.AsString(user["password"])) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	userID, _ := store.AsInt64(user["id"])
	pair, err := h.issue(ctx, userID, req.Email, role)
	if err != nil {
		return err
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "auth.login", "user", strconv.FormatInt(userID, 10),
		map[string]any{"role": string(role)})
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The presented token must be the
// latest one issued; it is replaced on success.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	claims, err := h.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	pb := h.store.Dialect.NewParamBuilder()
	user, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id, email, role, hashed_rt FROM users WHERE id = "+pb.Add(userID), pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	if err != nil {
		return err
	}
	hashed := store.AsString(user["hashed_rt"])
	if hashed == "" || !CheckPassword(claims.ID, hashed) {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	role, _ := ability.ParseRole(store.AsString(user["role"]))
	pair, err := h.issue(ctx, userID, store.AsString(user["email"]), role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout for the authenticated user.
func (h *Handler) Logout(c *fiber.Ctx) error {
	actor := engine.GetActor(c)
	if actor == nil {
		return engine.UnauthorizedError("Authentication required")
	}
	ctx := c.UserContext()

	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		"UPDATE users SET hashed_rt = NULL WHERE id = "+pb.Add(actor.ID)+" AND hashed_rt IS NOT NULL", pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.BadRequestError("User is already logged out")
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes mounts the auth routes under /auth. limit guards the
// public routes; authn guards logout.
func RegisterRoutes(r fiber.Router, h *Handler, limit, authn fiber.Handler) {
	g := r.Group("/auth")
	g.Post("/signup/customer", limit, h.SignupCustomer)
	g.Post("/login/customer", limit, h.LoginCustomer)
	g.Post("/login/admin", limit, h.LoginAdmin)
	g.Post("/refresh", limit, h.Refresh)
	g.Post("/logout", authn, h.Logout)
}

func (h *Handler) findUser(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		"SELECT id, email, password, role FROM users WHERE email = "+pb.Add(email), pb.Params()...)
}

// issue signs a new pair and stores the refresh id hash, invalidating any
// earlier refresh token.
func (h *Handler) issue(ctx context.Context, userID int64, email string, role ability.Role) (*TokenPair, error) {
	pair, refreshID, err := h.tokens.Issue(userID, email, role)
	if err != nil {
		return nil, err
	}
	hashed, err := HashPassword(refreshID, h.bcryptCost)
	if err != nil {
		return nil, err
	}
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "users", userID,
		map[string]any{"hashed_rt": hashed}, false); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, nil
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
