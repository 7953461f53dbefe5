package engine

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/metadata"
)

// RegisterCatalogRoutes mounts every exposed entity on r, which must
// already authenticate. Top-level entities live at /<route>; children at
// /<parent route>/:parent_id/<route>.
func RegisterCatalogRoutes(r fiber.Router, h *Handler) {
	for _, e := range h.reg.AllEntities() {
		if !e.Exposed() {
			continue
		}
		prefix := "/" + e.Route
		if e.Parent != nil {
			parent := h.reg.GetEntity(e.Parent.Entity)
			if parent == nil || !parent.Exposed() {
				continue
			}
			prefix = "/" + parent.Route + "/:parent_id/" + e.Route
		}
		mountEntity(r.Group(prefix), h, e)
	}
}

func mountEntity(g fiber.Router, h *Handler, e *metadata.Entity) {
	guard := func(a ability.Action) fiber.Handler {
		return RequireAbility(h.factory, Require(a, e.Subject))
	}
	g.Get("/", guard(ability.Read), h.List(e))
	g.Get("/count", guard(ability.Read), h.Count(e))
	g.Get("/:id", guard(ability.Read), h.GetByID(e))
	g.Post("/", guard(ability.Create), h.Create(e))
	g.Patch("/:id", guard(ability.Update), h.Update(e))
	g.Put("/:id", guard(ability.Update), h.Update(e))
	g.Delete("/:id", guard(ability.Delete), h.Delete(e))
}

// ErrorHandler renders errors as {"error": {...}}. Unrecognised errors are
// logged and reported as 500 without detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr := AsAppError(err); appErr != nil {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code:    "HTTP_ERROR",
			Status:  fiberErr.Code,
			Message: fiberErr.Message,
		}})
	}

	slog.ErrorContext(c.UserContext(), "unhandled error", "method", c.Method(), "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: &AppError{
		Code:    "INTERNAL_ERROR",
		Status:  fiber.StatusInternalServerError,
		Message: "Internal server error",
	}})
}
