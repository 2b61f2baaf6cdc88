package export

import (
	"context"
	"fmt"
	"time"

	sheets "google.golang.org/api/sheets/v4"
)

var historyHeader = []any{"Date", "Currency", "Trades", "Failed", "NPV", "DV01", "VaR95", "ES"}

// buildHistoryRows builds one RISK_HISTORY row per currency for a run.
func buildHistoryRows(rows []RiskRow, valuationDate time.Time) [][]any {
	date := valuationDate.UTC().Format("02.01.2006")
	totals := summarize(rows)
	data := make([][]any, 0, len(totals))
	for _, t := range totals {
		data = append(data, []any{
			date, t.Currency, t.Trades, t.Failed,
			toFloat(t.NPV), toFloat(t.DV01), toFloat(t.VaR95), toFloat(t.ExpectedShortfall),
		})
	}
	return data
}

// appendHistory writes the header if the sheet is empty, appends the run's
// totals and applies the header formatting.
func (w *SheetsWriter) appendHistory(ctx context.Context, hist sheetMeta, valuationDate time.Time, rows []RiskRow) error {
	data := buildHistoryRows(rows, valuationDate)
	if len(data) == 0 {
		return nil
	}

	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, sheetRiskHistory+"!A1:A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", sheetRiskHistory, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			sheetRiskHistory+"!A1",
			&sheets.ValueRange{Values: [][]any{historyHeader}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", sheetRiskHistory, err)
		}
		if err := w.formatHistory(ctx, hist); err != nil {
			return fmt.Errorf("formatting %s sheet: %w", sheetRiskHistory, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		sheetRiskHistory+"!A:H",
		&sheets.ValueRange{Values: data},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s rows: %w", sheetRiskHistory, err)
	}

	return nil
}

// formatHistory gives the header row a light-green bold style, freezes it and
// formats the money columns.
func (w *SheetsWriter) formatHistory(ctx context.Context, hist sheetMeta) error {
	// #D9EAD3
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}
	totalCols := int64(len(historyHeader))

	reqs := []*sheets.Request{
		cellFormatReq(hist.id, 0, 1, 0, totalCols,
			&sheets.CellFormat{
				BackgroundColor:     lightGreen,
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
			},
			"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)"),
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        hist.id,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		cellFormatReq(hist.id, 1, 100000, 0, 1,
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "DATE", Pattern: "d.m.yyyy"}},
			"userEnteredFormat.numberFormat"),
		cellFormatReq(hist.id, 1, 100000, 4, totalCols,
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "#,##0.00"}},
			"userEnteredFormat.numberFormat"),
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}

func cellFormatReq(sheetID, startRow, endRow, startCol, endCol int64, format *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell:   &sheets.CellData{UserEnteredFormat: format},
			Fields: fields,
		},
	}
}
