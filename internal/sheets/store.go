package sheets

import (
	"context"

	"invsync/internal"
)

// Store is the tabular snapshot the downstream formulas consume. The summary
// sheet is a snapshot, not a log: ReplaceSummary deletes every existing data
// row before writing. SetSummaryReference is independent of fresh data and
// runs even on a degraded outcome.
type Store interface {
	ReplaceSummary(ctx context.Context, rec internal.OutputRecord) error
	SetStockFormulas(ctx context.Context) error
	SetSummaryReference(ctx context.Context) error
}

var summaryHeaders = []string{"Product Code", "Description", "On Hand", "Quantity SC w/o DN", "Available", "Updated At"}

func summaryValues(rec internal.OutputRecord) [][]interface{} {
	out := make([][]interface{}, 0, len(rec.Rows))
	for _, row := range rec.Rows {
		out = append(out, []interface{}{
			row.ProductCode,
			row.Description,
			row.OnHand,
			row.QtySCWithoutDN,
			row.Available,
			rec.UpdatedAt,
		})
	}
	return out
}
