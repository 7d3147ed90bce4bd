// Package export renders owner analytics to spreadsheet files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rentals/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Occupancy"

var reportHeaders = []string{
	"Property ID", "Title", "Kind", "Requests", "Confirmed", "Completed", "Declined",
	"Booked days", "Period days", "Occupancy",
}

// WriteOwnerReport saves stats for [from, to] as an .xlsx file in dir and returns its path.
func WriteOwnerReport(dir string, ownerID int64, stats []*models.PropertyStats, from, to time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	lastCol, _ := excelize.ColumnNumberToName(len(reportHeaders))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	percent, _ := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	for i, s := range stats {
		row := i + 3
		values := []interface{}{
			s.PropertyID, s.Title, string(s.Kind), s.Requests, s.Confirmed, s.Completed, s.Declined,
			s.BookedDays, s.PeriodDays, s.OccupancyRate,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		cell, _ := excelize.CoordinatesToCellName(len(values), row)
		_ = f.SetCellStyle(sheetName, cell, cell, percent)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "B", "B", 35)
	_ = f.SetColWidth(sheetName, "C", lastCol, 14)

	fileName := fmt.Sprintf("owner_%d_%s_to_%s.xlsx", ownerID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	path := filepath.Join(dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}
