package instrument

import "context"

// NoopInstrumenter discards everything. Used when instrumentation is
// disabled or the request is sampled out.
type NoopInstrumenter struct{}

func (NoopInstrumenter) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopInstrumenter) EmitBusinessEvent(context.Context, string, string, string, map[string]any) {}

type noopSpan struct{}

func (noopSpan) End() {}
func (noopSpan) SetStatus(string) {}
func (noopSpan) SetMetadata(string, any) {}
func (noopSpan) SetEntity(string, string) {}
func (noopSpan) TraceID() string { return "" }
func (noopSpan) SpanID() string { return "" }
