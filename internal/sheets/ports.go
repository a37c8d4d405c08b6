package sheets

import (
	"context"

	"deplacements/internal/valuation"
)

// Ports for outbound adapters.
type (
	// RecapWriter publishes a company monthly recap somewhere people read it.
	// Month is 0-based. The returned reference locates the written block.
	RecapWriter interface {
		WriteMonthlyRecap(ctx context.Context, year, month int, rows []valuation.RecapRow) (ref string, err error)
	}
)
