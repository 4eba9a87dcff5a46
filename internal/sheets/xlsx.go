package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"invsync/internal"
	"invsync/internal/config"
)

// XLSXStore is the local-file backend. It keeps the same sheet names and
// layout as the Google backend so the workbook can be inspected or diffed
// offline.
type XLSXStore struct {
	path    string
	summary string
	stock   string
	log     zerolog.Logger
}

func NewXLSXStore(cfg *config.Config, log zerolog.Logger) (*XLSXStore, error) {
	if err := cfg.Require("XLSX_PATH", cfg.XLSXPath); err != nil {
		return nil, err
	}
	return &XLSXStore{
		path:    cfg.XLSXPath,
		summary: cfg.SummarySheetName,
		stock:   cfg.StockSheetName,
		log:     log.With().Str("component", "sheets").Logger(),
	}, nil
}

func (s *XLSXStore) ReplaceSummary(ctx context.Context, rec internal.OutputRecord) error {
	_ = ctx

	f, fresh, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.ensureSheet(f, fresh, s.summary); err != nil {
		return err
	}

	for i, h := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(s.summary, cell, h)
	}

	rows, err := f.GetRows(s.summary)
	if err != nil {
		return fmt.Errorf("read %s rows: %w", s.summary, err)
	}
	for r := len(rows); r >= 2; r-- {
		if err := f.RemoveRow(s.summary, r); err != nil {
			return fmt.Errorf("remove row %d: %w", r, err)
		}
	}

	for i, row := range rec.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{row.ProductCode, row.Description, row.OnHand, row.QtySCWithoutDN, row.Available, rec.UpdatedAt}
		if err := f.SetSheetRow(s.summary, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	s.fitColumns(f, rec)

	if err := s.save(f); err != nil {
		return err
	}
	s.log.Info().Int("rows", len(rec.Rows)).Str("path", s.path).Msg("summary replaced")
	return nil
}

func (s *XLSXStore) SetStockFormulas(ctx context.Context) error {
	_ = ctx

	f, fresh, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if fresh {
		s.log.Warn().Str("path", s.path).Msg("workbook missing, skipping stock formulas")
		return nil
	}
	if idx, _ := f.GetSheetIndex(s.stock); idx < 0 {
		s.log.Warn().Str("sheet", s.stock).Msg("stock sheet missing, skipping formulas")
		return nil
	}

	lastRow, err := s.lastDataRow(f, s.stock, 3)
	if err != nil {
		return err
	}
	if lastRow < 2 {
		s.log.Info().Str("sheet", s.stock).Msg("no stock rows, skipping formulas")
		return nil
	}

	for r := 2; r <= lastRow; r++ {
		for i, col := range []string{"U", "V", "W"} {
			formula := fmt.Sprintf("IFERROR(VLOOKUP($C%d,%s!$A:$E, %d, 0), 0)", r, s.summary, i+3)
			if err := f.SetCellFormula(s.stock, fmt.Sprintf("%s%d", col, r), formula); err != nil {
				return fmt.Errorf("set formula %s%d: %w", col, r, err)
			}
		}
	}

	if err := s.save(f); err != nil {
		return err
	}
	s.log.Info().Int("rows", lastRow-1).Str("sheet", s.stock).Msg("stock formulas set")
	return nil
}

func (s *XLSXStore) SetSummaryReference(ctx context.Context) error {
	_ = ctx

	f, fresh, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if fresh {
		s.log.Warn().Str("path", s.path).Msg("workbook missing, skipping summary reference")
		return nil
	}
	if idx, _ := f.GetSheetIndex(s.stock); idx < 0 {
		s.log.Warn().Str("sheet", s.stock).Msg("stock sheet missing, skipping reference")
		return nil
	}

	if err := f.SetCellFormula(s.stock, "Y2", s.summary+"!F2"); err != nil {
		return fmt.Errorf("set summary reference: %w", err)
	}
	return s.save(f)
}

func (s *XLSXStore) open() (f *excelize.File, fresh bool, err error) {
	if _, statErr := os.Stat(s.path); statErr == nil {
		f, err = excelize.OpenFile(s.path)
		if err != nil {
			return nil, false, fmt.Errorf("open workbook: %w", err)
		}
		return f, false, nil
	}
	return excelize.NewFile(), true, nil
}

func (s *XLSXStore) ensureSheet(f *excelize.File, fresh bool, name string) error {
	if fresh {
		return f.SetSheetName(f.GetSheetName(0), name)
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx < 0 {
		_, err = f.NewSheet(name)
	}
	return err
}

// lastDataRow returns the 1-based index of the last row with a non-empty
// value in the given 1-based column.
func (s *XLSXStore) lastDataRow(f *excelize.File, sheet string, column int) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read %s rows: %w", sheet, err)
	}
	last := 0
	for i, row := range rows {
		if len(row) >= column && row[column-1] != "" {
			last = i + 1
		}
	}
	return last, nil
}

func (s *XLSXStore) fitColumns(f *excelize.File, rec internal.OutputRecord) {
	widths := make([]int, len(summaryHeaders))
	for i, h := range summaryHeaders {
		widths[i] = len(h)
	}
	for _, row := range rec.Rows {
		cells := []string{row.ProductCode, row.Description, row.OnHand, row.QtySCWithoutDN, row.Available, rec.UpdatedAt}
		for i, c := range cells {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(s.summary, col, col, float64(w)+2)
	}
}

func (s *XLSXStore) save(f *excelize.File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(s.path)
}
