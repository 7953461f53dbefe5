package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"commerce-backend/internal/store"
)

var eventColumns = []string{
	"id", "trace_id", "span_id", "parent_span_id", "event_type", "source", "component",
	"action", "entity", "record_id", "user_id", "duration_ms", "status", "metadata",
}

// EventBuffer collects events in memory and writes them to _events in
// batches, on a timer or when maxSize is reached.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewEventBuffer(s *store.Store, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		store:   s,
		maxSize: maxSize,
		ticker:  time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond),
		done:    make(chan struct{}),
	}
	eb.wg.Add(1)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush(context.Background())
		}
	}
}

// Enqueue adds an event. A full buffer triggers an asynchronous flush.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go eb.Flush(context.Background())
	}
}

// Flush writes all buffered events in one multi-row insert.
func (eb *EventBuffer) Flush(ctx context.Context) {
	eb.mu.Lock()
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := eb.insert(ctx, batch); err != nil {
		slog.Error("event buffer flush", "events", len(batch), "err", err)
	}
}

func (eb *EventBuffer) insert(ctx context.Context, batch []Event) error {
	pb := eb.store.Dialect.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	for _, e := range batch {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		var meta any
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			meta = string(b)
		}
		values := []any{
			e.ID, e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Source, e.Component,
			e.Action, e.Entity, e.RecordID, e.UserID, e.DurationMs, e.Status, meta,
		}
		phs := make([]string, len(values))
		for i, v := range values {
			phs[i] = pb.Add(v)
		}
		rows = append(rows, "("+strings.Join(phs, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s",
		strings.Join(eventColumns, ", "), strings.Join(rows, ", "))
	_, err := store.Exec(ctx, eb.store.DB, sql, pb.Params()...)
	return err
}

// Stop halts the background ticker and flushes what is left.
func (eb *EventBuffer) Stop() {
	eb.ticker.Stop()
	close(eb.done)
	eb.wg.Wait()
	eb.Flush(context.Background())
}
