package engine

import (
	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/instrument"
)

const (
	actorKey   = "actor"
	abilityKey = "ability"
)

// Requirement is a declarative permission attached to a route. With
// Fields set, each field is checked separately.
type Requirement struct {
	Action  ability.Action
	Subject ability.Subject
	Fields  []string
}

// Require is shorthand for a Requirement without fields.
func Require(action ability.Action, subject ability.Subject, fields ...string) Requirement {
	return Requirement{Action: action, Subject: subject, Fields: fields}
}

// SetActor stores the authenticated actor for the request.
func SetActor(c *fiber.Ctx, actor ability.Actor) {
	c.Locals(actorKey, &actor)
	c.Locals(abilityKey, nil)
}

// GetActor returns the request's actor, or nil when unauthenticated.
func GetActor(c *fiber.Ctx) *ability.Actor {
	a, _ := c.Locals(actorKey).(*ability.Actor)
	return a
}

// AbilityFor returns the ability of the request's actor, building it on
// first use. It lives only as long as the request.
func AbilityFor(c *fiber.Ctx, f *ability.Factory) (*ability.Ability, error) {
	if a, ok := c.Locals(abilityKey).(*ability.Ability); ok && a != nil {
		return a, nil
	}
	actor := GetActor(c)
	if actor == nil {
		return nil, UnauthorizedError("Authentication required")
	}
	a := f.ForActor(*actor)
	c.Locals(abilityKey, a)
	return a, nil
}

// RequireAbility rejects the request with 403 unless every requirement
// holds as a type-level check. Instance conditions are left to the handler.
func RequireAbility(f *ability.Factory, reqs ...Requirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := AbilityFor(c, f)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			queries := []ability.Query{{Action: r.Action, Subject: r.Subject}}
			if len(r.Fields) > 0 {
				queries = queries[:0]
				for _, field := range r.Fields {
					queries = append(queries, ability.Query{Action: r.Action, Subject: r.Subject, Field: field})
				}
			}
			for _, q := range queries {
				if err := check(c, a, q); err != nil {
					return err
				}
			}
		}
		return c.Next()
	}
}

// RequireEvery rejects the request with 403 unless the actor may act on
// every instance of subject. Listings use it, since only unconditioned
// rules grant it.
func RequireEvery(f *ability.Factory, action ability.Action, subject ability.Subject) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := AbilityFor(c, f)
		if err != nil {
			return err
		}
		if err := check(c, a, ability.Query{Action: action, Subject: subject, Every: true}); err != nil {
			return err
		}
		return c.Next()
	}
}

// Authorize checks q against the request's ability. Handlers call it with
// the instance attributes they know before touching storage.
func Authorize(c *fiber.Ctx, f *ability.Factory, q ability.Query) error {
	a, err := AbilityFor(c, f)
	if err != nil {
		return err
	}
	return check(c, a, q)
}

func check(c *fiber.Ctx, a *ability.Ability, q ability.Query) error {
	err := a.Authorize(q)
	if err == nil {
		return nil
	}
	actor := a.Actor()
	instrument.GetInstrumenter(c.UserContext()).EmitBusinessEvent(c.UserContext(),
		"authorization.denied", string(q.Subject), "", map[string]any{
			"action": string(q.Action),
			"field":  q.Field,
			"role":   string(actor.Role),
			"path":   c.Path(),
		})
	return ForbiddenError(err.Error())
}
