package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deplacements/internal/amqp"
	"deplacements/internal/services"
)

// RecapGenerator computes a company recap and writes it out.
type RecapGenerator interface {
	Generate(ctx context.Context, year, month int) (services.RecapResult, error)
}

// RecapWorker handles recap requests coming from AMQP.
type RecapWorker struct {
	recaps  RecapGenerator
	timeout time.Duration
}

// NewRecapWorker creates a worker. A non-positive timeout means the request
// runs under the consumer context alone.
func NewRecapWorker(recaps RecapGenerator, timeout time.Duration) *RecapWorker {
	return &RecapWorker{recaps: recaps, timeout: timeout}
}

// HandleRecapRequest processes a single recap request message from AMQP
func (w *RecapWorker) HandleRecapRequest(ctx context.Context, msg *amqp.RecapRequestMessage) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := w.recaps.Generate(ctx, msg.Year, msg.Month)
	if err != nil {
		return fmt.Errorf("generate recap %s: %w", msg.RequestID, err)
	}

	slog.InfoContext(ctx, "Recap request completed",
		"request_id", msg.RequestID,
		"year", msg.Year,
		"month", msg.Month,
		"rows", res.Rows,
		"ref", res.Ref,
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}
