package sheets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"invsync/internal"
	"invsync/internal/config"
)

// GoogleStore writes the inventory snapshot to a Google Sheets spreadsheet.
type GoogleStore struct {
	svc         *sheetsapi.Service
	spreadsheet string
	summary     string
	stock       string
	log         zerolog.Logger
}

func NewGoogleStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*GoogleStore, error) {
	if err := cfg.Require("SHEET_ID", cfg.SheetID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{sheetsapi.SpreadsheetsScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})

	svc, err := sheetsapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &GoogleStore{
		svc:         svc,
		spreadsheet: cfg.SheetID,
		summary:     cfg.SummarySheetName,
		stock:       cfg.StockSheetName,
		log:         log.With().Str("component", "sheets").Logger(),
	}, nil
}

func (s *GoogleStore) ReplaceSummary(ctx context.Context, rec internal.OutputRecord) error {
	sheetID, err := s.ensureSheet(ctx, s.summary)
	if err != nil {
		return err
	}
	if err := s.writeHeader(ctx); err != nil {
		return err
	}

	if err := s.clearDataRows(ctx, sheetID); err != nil {
		return err
	}

	if len(rec.Rows) > 0 {
		vr := &sheetsapi.ValueRange{Values: summaryValues(rec)}
		_, err = s.svc.Spreadsheets.Values.
			Update(s.spreadsheet, fmt.Sprintf("%s!A2", s.summary), vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("write summary rows: %w", err)
		}
	}

	if err := s.autoResize(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("auto-resize failed")
	}

	s.log.Info().Int("rows", len(rec.Rows)).Str("sheet", s.summary).Msg("summary replaced")
	return nil
}

// SetStockFormulas rewrites the lookup columns U:W on the stock sheet so each
// data row pulls its quantities from the summary sheet by product code.
func (s *GoogleStore) SetStockFormulas(ctx context.Context) error {
	sheetID, ok, err := s.sheetIDByTitle(ctx, s.stock)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().Str("sheet", s.stock).Msg("stock sheet missing, skipping formulas")
		return nil
	}

	lastRow, err := s.lastDataRow(ctx, s.stock, "C")
	if err != nil {
		return err
	}
	if lastRow < 2 {
		s.log.Info().Str("sheet", s.stock).Msg("no stock rows, skipping formulas")
		return nil
	}

	formulas := []interface{}{
		fmt.Sprintf("=IFERROR(VLOOKUP($C2,%s!$A:$E, 3, 0), 0)", s.summary),
		fmt.Sprintf("=IFERROR(VLOOKUP($C2,%s!$A:$E, 4, 0), 0)", s.summary),
		fmt.Sprintf("=IFERROR(VLOOKUP($C2,%s!$A:$E, 5, 0), 0)", s.summary),
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{formulas}}
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheet, fmt.Sprintf("%s!U2:W2", s.stock), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write stock formulas: %w", err)
	}

	if lastRow > 2 {
		req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
			CopyPaste: &sheetsapi.CopyPasteRequest{
				Source: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    1,
					EndRowIndex:      2,
					StartColumnIndex: 20,
					EndColumnIndex:   23,
				},
				Destination: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    1,
					EndRowIndex:      int64(lastRow),
					StartColumnIndex: 20,
					EndColumnIndex:   23,
				},
				PasteType: "PASTE_FORMULA",
			},
		}}}
		if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheet, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("copy stock formulas down: %w", err)
		}
	}

	s.log.Info().Int("rows", lastRow-1).Str("sheet", s.stock).Msg("stock formulas set")
	return nil
}

func (s *GoogleStore) SetSummaryReference(ctx context.Context) error {
	_, ok, err := s.sheetIDByTitle(ctx, s.stock)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().Str("sheet", s.stock).Msg("stock sheet missing, skipping reference")
		return nil
	}

	vr := &sheetsapi.ValueRange{Values: [][]interface{}{{fmt.Sprintf("=%s!F2", s.summary)}}}
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheet, fmt.Sprintf("%s!Y2", s.stock), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write summary reference: %w", err)
	}
	return nil
}

func (s *GoogleStore) sheetIDByTitle(ctx context.Context, title string) (int64, bool, error) {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheet).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

func (s *GoogleStore) ensureSheet(ctx context.Context, title string) (int64, error) {
	id, ok, err := s.sheetIDByTitle(ctx, title)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		AddSheet: &sheetsapi.AddSheetRequest{Properties: &sheetsapi.SheetProperties{Title: title}},
	}}}
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheet, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %q: %w", title, err)
	}
	added := resp.Replies[0].AddSheet.Properties.SheetId
	s.log.Info().Str("sheet", title).Msg("sheet created")
	return added, nil
}

func (s *GoogleStore) writeHeader(ctx context.Context) error {
	header := make([]interface{}, len(summaryHeaders))
	for i, h := range summaryHeaders {
		header[i] = h
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{header}}
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheet, fmt.Sprintf("%s!A1", s.summary), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	return nil
}

func (s *GoogleStore) clearDataRows(ctx context.Context, sheetID int64) error {
	lastRow, err := s.lastDataRow(ctx, s.summary, "A")
	if err != nil {
		return err
	}
	if lastRow < 2 {
		return nil
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		DeleteDimension: &sheetsapi.DeleteDimensionRequest{
			Range: &sheetsapi.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "ROWS",
				StartIndex: 1,
				EndIndex:   int64(lastRow),
			},
		},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheet, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear summary rows: %w", err)
	}
	return nil
}

// lastDataRow returns the 1-based index of the last non-empty cell in the
// given column.
func (s *GoogleStore) lastDataRow(ctx context.Context, sheet, column string) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheet, fmt.Sprintf("%s!%s:%s", sheet, column, column)).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("read %s column %s: %w", sheet, column, err)
	}
	last := 0
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) != "" {
			last = i + 1
		}
	}
	return last, nil
}

func (s *GoogleStore) autoResize(ctx context.Context, sheetID int64) error {
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		AutoResizeDimensions: &sheetsapi.AutoResizeDimensionsRequest{
			Dimensions: &sheetsapi.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "COLUMNS",
				StartIndex: 0,
				EndIndex:   int64(len(summaryHeaders)),
			},
		},
	}}}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheet, req).Context(ctx).Do()
	return err
}
