package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// ExportService renders aggregation results as spreadsheet workbooks for
// dashboard downloads.
type ExportService struct{}

// NewExportService creates a new export service
func NewExportService() *ExportService {
	return &ExportService{}
}

// BreakdownToXLSX writes breakdown rows into a single-sheet workbook. The
// column order follows (dimension, metric value) so exported files line up
// with the dashboard table.
func (s *ExportService) BreakdownToXLSX(rows []bson.M, dimensionName, valueKey string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Breakdown"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	if err := f.SetCellValue(sheet, "A1", dimensionName); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellValue(sheet, "B1", valueKey); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		line := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row[dimensionName]); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", line, err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", line), row[valueKey]); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", line, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
