package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"commerce-backend/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	where := s.Dialect.IntervalDeleteExpr("created_at", pb, retentionDays)
	n, err := store.Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM _events WHERE %s", where), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	return n, nil
}

// RunRetention calls CleanupOldEvents every interval until ctx is done.
func RunRetention(ctx context.Context, s *store.Store, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := CleanupOldEvents(ctx, s, retentionDays)
			if err != nil {
				slog.Error("event retention", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("event retention", "deleted", n)
			}
		}
	}
}
