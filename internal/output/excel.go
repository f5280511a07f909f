// internal/output/excel.go
package output

import (
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// Excel limits
const (
	// DefaultExcelMaxCellLength is the maximum characters in a single Excel cell
	DefaultExcelMaxCellLength = 32767
	// DefaultExcelSheetName names the single vehicles sheet
	DefaultExcelSheetName = "Vehicles"
)

// excelColumnWidths overrides the default width of wide columns.
var excelColumnWidths = map[string]float64{
	"source_url":  50,
	"photo_urls":  60,
	"features":    40,
	"description": 80,
	"dealer_url":  35,
}

// NewExcelStore creates a file store that writes an .xlsx workbook with a
// header row, an auto filter and a frozen header.
func NewExcelStore(path string) (*FileStore, error) {
	return newFileStore(path, StoreExcel, writeExcel)
}

func writeExcel(path string, records []vehicle.Record) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := DefaultExcelSheetName
	if err := file.SetSheetName(file.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := make([]interface{}, len(flatColumns))
	for i, c := range flatColumns {
		header[i] = c
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := applyHeaderStyle(file, sheet); err != nil {
		return err
	}

	for i, rec := range records {
		row := flatRecord(rec)
		for j, v := range row {
			if s, ok := v.(string); ok && len(s) > DefaultExcelMaxCellLength {
				fileLogger.Warnf("Excel: truncating %s from %d to %d characters", flatColumns[j], len(s), DefaultExcelMaxCellLength)
				row[j] = s[:DefaultExcelMaxCellLength]
			}
		}
		if err := file.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &row); err != nil {
			return err
		}
	}

	if err := applyFinalFormatting(file, sheet, len(records)); err != nil {
		return err
	}

	return file.SaveAs(path)
}

// applyHeaderStyle makes the header row bold on a grey fill
func applyHeaderStyle(file *excelize.File, sheet string) error {
	style, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
			Size: 12,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E0E0E0"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}
	last := columnName(len(flatColumns)) + "1"
	return file.SetCellStyle(sheet, "A1", last, style)
}

// applyFinalFormatting sets column widths, the auto filter and the frozen header
func applyFinalFormatting(file *excelize.File, sheet string, rows int) error {
	for col, header := range flatColumns {
		name := columnName(col + 1)
		width := 15.0
		if w, ok := excelColumnWidths[header]; ok {
			width = w
		}
		if err := file.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}

	lastCol := columnName(len(flatColumns))
	if err := file.AutoFilter(sheet, "A1:"+lastCol+strconv.Itoa(rows+1), nil); err != nil {
		return err
	}

	return file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// columnName converts a column number to Excel column name (A, B, C, ..., AA, AB, etc.)
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
