// Package stream delivers persisted audit entries to an external log (Kafka)
// for SIEM ingestion. The audit store is the source of truth: delivery is
// at-least-once and a failing stream never blocks a mutation.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"safereport/internal/audit"
	"safereport/internal/audit/metrics"
	"safereport/internal/platform/kafka"
	id "safereport/pkg/domain"
)

// Outbox is the store view the worker drains.
type Outbox interface {
	ListUnstreamed(ctx context.Context, limit int) ([]*audit.Entry, error)
	MarkStreamed(ctx context.Context, ids []id.AuditEntryID, at time.Time) error
}

// Publisher sends a batch and returns only after it is acknowledged.
type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

type Worker struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(outbox Outbox, publisher Publisher, opts ...Option) (*Worker, error) {
	if outbox == nil {
		return nil, errors.New("audit outbox is required")
	}
	if publisher == nil {
		return nil, errors.New("stream publisher is required")
	}
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		interval:  5 * time.Second,
		batchSize: 200,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run flushes on every tick until ctx is cancelled. Flush errors are logged
// and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.WarnContext(ctx, "audit stream flush failed", "error", err)
			}
		}
	}
}

// Flush delivers pending entries batch by batch and returns how many were
// delivered.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		entries, err := w.outbox.ListUnstreamed(ctx, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("load unstreamed audit entries: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		msgs := make([]kafka.Message, 0, len(entries))
		ids := make([]id.AuditEntryID, 0, len(entries))
		for _, e := range entries {
			value, err := json.Marshal(e)
			if err != nil {
				return total, fmt.Errorf("encode audit entry %s: %w", e.ID, err)
			}
			key := e.UserID.String()
			if e.IncidentID != nil {
				key = e.IncidentID.String()
			}
			msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value})
			ids = append(ids, e.ID)
		}

		if err := w.publisher.Publish(ctx, msgs); err != nil {
			w.metrics.IncStreamFailures()
			return total, err
		}
		if err := w.outbox.MarkStreamed(ctx, ids, w.now()); err != nil {
			return total, err
		}
		w.metrics.AddStreamed(len(entries))
		total += len(entries)

		if len(entries) < w.batchSize {
			return total, nil
		}
	}
}
