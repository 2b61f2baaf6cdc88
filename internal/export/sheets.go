package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

const (
	sheetRiskAll     = "RISK_ALL"
	sheetRiskSummary = "RISK_SUMMARY"
	sheetRiskHistory = "RISK_HISTORY"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// sheetMeta is the part of a sheet's properties the writer formats against.
type sheetMeta struct {
	id int64
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credentialsJSON), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// table is a sheet that is rewritten in full on every export.
type table struct {
	sheet string
	build func([]RiskRow) [][]any
}

var snapshotTables = []table{
	{sheet: sheetRiskAll, build: buildRiskAll},
	{sheet: sheetRiskSummary, build: buildSummary},
}

// Write rewrites the RISK_ALL and RISK_SUMMARY sheets and appends the
// per-currency totals to RISK_HISTORY.
func (w *SheetsWriter) Write(ctx context.Context, valuationDate time.Time, rows []RiskRow) error {
	meta, err := w.ensureSheets(ctx, sheetRiskAll, sheetRiskSummary, sheetRiskHistory)
	if err != nil {
		return err
	}
	if err := w.replaceTables(ctx, rows); err != nil {
		return err
	}
	return w.appendHistory(ctx, meta[sheetRiskHistory], valuationDate, rows)
}

// replaceTables clears the used columns of every snapshot table and writes
// the fresh values in one batch.
func (w *SheetsWriter) replaceTables(ctx context.Context, rows []RiskRow) error {
	clearReq := &sheets.BatchClearValuesRequest{}
	update := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, t := range snapshotTables {
		values := t.build(rows)
		clearReq.Ranges = append(clearReq.Ranges, fmt.Sprintf("%s!A:%s", t.sheet, columnLetter(len(values[0]))))
		update.Data = append(update.Data, &sheets.ValueRange{Range: t.sheet + "!A1", Values: values})
	}

	if _, err := w.svc.Spreadsheets.Values.BatchClear(w.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clearing sheets: %w", err)
	}
	if _, err := w.svc.Spreadsheets.Values.BatchUpdate(w.spreadsheetID, update).Context(ctx).Do(); err != nil {
		return fmt.Errorf("writing sheets: %w", err)
	}
	return nil
}

// columnLetter returns the A1 column name of the 1-based column n.
func columnLetter(n int) string {
	var name []byte
	for n > 0 {
		n--
		name = append([]byte{byte('A' + n%26)}, name...)
		n /= 26
	}
	return string(name)
}

// ensureSheets creates any of the named sheets that do not already exist and
// returns the metadata of all of them.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]sheetMeta, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	meta := make(map[string]sheetMeta, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		meta[s.Properties.Title] = sheetMeta{id: s.Properties.SheetId}
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := meta[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return meta, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			meta[r.AddSheet.Properties.Title] = sheetMeta{id: r.AddSheet.Properties.SheetId}
		}
	}

	return meta, nil
}
