package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanKey
	instrumenterKey
	userIDKey
)

// Instrumenter records timed spans and one-shot business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span is a timed operation. End enqueues it; later calls are ignored.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// Event is one row of the _events table.
type Event struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"` // system or business
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Sink receives finished events.
type Sink interface {
	Enqueue(e Event)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the request's instrumenter, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return NoopInstrumenter{}
}

// WithUserID attributes later spans and events to a user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func optional(ctx context.Context, key ctxKey) *string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return &v
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Tracer is the Instrumenter that feeds a Sink, usually an EventBuffer.
type Tracer struct {
	sink Sink
}

func NewTracer(sink Sink) *Tracer {
	return &Tracer{sink: sink}
}

func (t *Tracer) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	s := &span{
		sink:  t.sink,
		start: time.Now(),
		event: Event{
			TraceID:      GetTraceID(ctx),
			SpanID:       uuid.NewString(),
			ParentSpanID: optional(ctx, parentSpanKey),
			EventType:    "system",
			Source:       source,
			Component:    component,
			Action:       action,
			UserID:       optional(ctx, userIDKey),
			Metadata:     map[string]any{},
		},
	}
	return context.WithValue(ctx, parentSpanKey, s.event.SpanID), s
}

func (t *Tracer) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	t.sink.Enqueue(Event{
		TraceID:      GetTraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: optional(ctx, parentSpanKey),
		EventType:    "business",
		Source:       "business",
		Component:    "api",
		Action:       action,
		Entity:       strPtr(entity),
		RecordID:     strPtr(recordID),
		UserID:       optional(ctx, userIDKey),
		Metadata:     metadata,
	})
}

type span struct {
	mu    sync.Mutex
	sink  Sink
	start time.Time
	event Event
	ended bool
}

func (s *span) TraceID() string { return s.event.TraceID }
func (s *span) SpanID() string  { return s.event.SpanID }

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	s.event.Status = &status
	s.mu.Unlock()
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	s.event.Metadata[key] = value
	s.mu.Unlock()
}

func (s *span) SetEntity(entity, recordID string) {
	s.mu.Lock()
	s.event.Entity = strPtr(entity)
	s.event.RecordID = strPtr(recordID)
	s.mu.Unlock()
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	s.event.DurationMs = &ms
	s.sink.Enqueue(s.event)
}
