package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements SheetWriter by saving a workbook to a local file. The
// file is replaced on every write.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates an XLSXWriter for path.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write saves RISK_ALL and RISK_SUMMARY sheets.
func (w *XLSXWriter) Write(_ context.Context, valuationDate time.Time, rows []RiskRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRiskAll); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetRiskSummary); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for sheet, data := range map[string][][]any{
		sheetRiskAll:     buildRiskAll(rows),
		sheetRiskSummary: buildSummary(rows),
	} {
		if err := writeTable(f, sheet, data, header); err != nil {
			return err
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Risk report " + valuationDate.Format(time.DateOnly),
		Creator: "cdsrisk",
	}); err != nil {
		return fmt.Errorf("setting properties: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := save(f, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving workbook: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replacing workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, data [][]any, headerStyle int) error {
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func save(f *excelize.File, path string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = f.WriteTo(out)
	return err
}
