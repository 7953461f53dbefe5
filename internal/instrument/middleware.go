package instrument

import (
	"math/rand/v2"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"commerce-backend/internal/config"
)

const TraceHeader = "X-Trace-ID"

// Middleware starts a trace per request. It propagates an incoming
// X-Trace-ID, opens a root http span and places a Tracer in the request
// context. A nil sink disables tracing.
func Middleware(cfg config.InstrumentationConfig, sink Sink) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || sink == nil {
			return c.Next()
		}
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceHeader, traceID)

		tracer := NewTracer(sink)
		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), tracer)
		ctx, span := tracer.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)

		err := c.Next()

		if uid := optional(c.UserContext(), userIDKey); uid != nil {
			span.SetMetadata("user_id", *uid)
		}
		// The error handler has not run yet, so a returned error counts as a failure.
		status := c.Response().StatusCode()
		span.SetMetadata("status_code", status)
		if status >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}
