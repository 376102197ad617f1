// Package exporter writes filtered datasets and aggregate views to Excel
// workbooks for download.
package exporter

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"emspulse/internal/dataset"
)

// maxDataRows caps the Data sheet. Excel tops out at 1,048,576 rows per
// sheet; the cap leaves room for the header.
const maxDataRows = 1_000_000

const dataSheet = "Data"

// View is one aggregate sheet: a name, the grouping columns, and the counts.
type View struct {
	Name    string
	Columns []string
	Groups  []dataset.GroupCount
}

// ExcelExporter renders workbooks.
type ExcelExporter struct {
	logger *slog.Logger
}

// NewExcel creates an Excel exporter.
func NewExcel(logger *slog.Logger) *ExcelExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelExporter{logger: logger.With(slog.String("component", "excel_exporter"))}
}

// Workbook writes the table to a Data sheet and each view to its own sheet,
// returning the serialized .xlsx bytes.
func (e *ExcelExporter) Workbook(t *dataset.Table, views []View) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), dataSheet); err != nil {
		return nil, fmt.Errorf("failed to name data sheet: %w", err)
	}
	if err := e.writeData(f, t); err != nil {
		return nil, err
	}

	for _, view := range views {
		if err := e.writeView(f, view); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	e.logger.Info("workbook written",
		slog.Int("rows", t.NumRows()),
		slog.Int("views", len(views)),
		slog.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e *ExcelExporter) writeData(f *excelize.File, t *dataset.Table) error {
	header := t.Columns()
	if err := setRow(f, dataSheet, 1, header); err != nil {
		return err
	}

	n := t.NumRows()
	if n > maxDataRows {
		e.logger.Warn("data sheet truncated",
			slog.Int("rows", n),
			slog.Int("cap", maxDataRows))
		n = maxDataRows
	}
	for r := 0; r < n; r++ {
		if err := setRow(f, dataSheet, r+2, t.Row(r)); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExcelExporter) writeView(f *excelize.File, view View) error {
	name := sheetName(view.Name)
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	header := append(append([]string{}, view.Columns...), "Count")
	if err := setRow(f, name, 1, header); err != nil {
		return err
	}
	for i, g := range view.Groups {
		row := append(append([]string{}, g.Key...), fmt.Sprintf("%d", g.Count))
		if err := setRow(f, name, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

// sheetName makes a view name safe for Excel: 31 characters, no reserved
// punctuation.
func sheetName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "?", "", "*", "", "[", "(", "]", ")", ":", "-")
	name = replacer.Replace(name)
	if name == "" {
		name = "View"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
