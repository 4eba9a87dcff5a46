package pipeline

import (
	"strings"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/util"
)

// ParseTableRows tokenizes one pass's generated text into inventory rows.
// A line is a data row iff it contains a pipe separator, is not a dash
// decoration line, splits into at least 5 non-empty trimmed columns, and is
// not the header row. Extra columns are ignored.
func ParseTableRows(text string) []internal.InventoryRow {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]internal.InventoryRow, 0, len(lines))
	for _, line := range lines {
		if !strings.Contains(line, "|") || strings.Contains(line, "---") {
			continue
		}
		cols := splitCells(line)
		if len(cols) < 5 {
			continue
		}
		if strings.Contains(strings.ToLower(cols[0]), "product code") {
			continue
		}
		out = append(out, internal.InventoryRow{
			ProductCode:    cols[0],
			Description:    cols[1],
			OnHand:         cols[2],
			QtySCWithoutDN: cols[3],
			Available:      cols[4],
		})
	}
	return out
}

func splitCells(line string) []string {
	parts := strings.Split(line, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeTables combines per-pass tables in pass order. With dedup enabled the
// first row seen for a merge key wins and later duplicates are dropped;
// disabling dedup preserves every parsed row (some reports repeat no codes
// and counting every line is the safer tuning there).
func MergeTables(passes []internal.ExtractionPass, dedup bool, log zerolog.Logger) []internal.InventoryRow {
	out := make([]internal.InventoryRow, 0)
	seen := make(map[string]struct{})
	for _, pass := range passes {
		for _, row := range ParseTableRows(pass.Text) {
			key := util.MergeKey(row.ProductCode)
			if key == "" {
				continue
			}
			if dedup {
				if _, dup := seen[key]; dup {
					log.Debug().Str("code", row.ProductCode).Int("pass", pass.Index).Msg("duplicate row dropped")
					continue
				}
				seen[key] = struct{}{}
			}
			row.ProductCode = key
			out = append(out, row)
		}
	}
	return out
}

// BuildOutputRecord formats quantities for display and stamps the record.
func BuildOutputRecord(rows []internal.InventoryRow, updatedAt string) internal.OutputRecord {
	formatted := make([]internal.InventoryRow, len(rows))
	for i, row := range rows {
		row.OnHand = util.FormatQuantity(row.OnHand)
		row.QtySCWithoutDN = util.FormatQuantity(row.QtySCWithoutDN)
		row.Available = util.FormatQuantity(row.Available)
		formatted[i] = row
	}
	return internal.OutputRecord{Rows: formatted, UpdatedAt: updatedAt}
}
