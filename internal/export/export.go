// Package export renders a patient's assessment history as an Excel workbook
// for sharing with referring physicians who work outside the dashboard.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"woundchrono/internal/store"
)

var trajectoryHeader = []string{
	"Visit Date",
	"Source",
	"Tissue",
	"Inflammation",
	"Moisture",
	"Edge",
	"WAT Total",
	"Trajectory",
	"Change",
	"Alert",
	"Contradiction",
}

// Trajectory builds an .xlsx workbook with one summary block for the patient
// and one row per assessment, oldest first.
func Trajectory(p *store.Patient, assessments []store.Assessment) ([]byte, error) {
	f := excelize.NewFile()

	const sheet = "Trajectory"
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	// Patient summary block above the table.
	summary := [][2]string{
		{"Patient", p.Name},
		{"Wound Type", p.WoundType},
		{"Wound Location", p.WoundLocation},
		{"Comorbidities", strings.Join(p.Comorbidities, ", ")},
	}
	for i, kv := range summary {
		if err := setCell(f, sheet, 1, i+1, kv[0]); err != nil {
			f.Close()
			return nil, err
		}
		if err := setCell(f, sheet, 2, i+1, kv[1]); err != nil {
			f.Close()
			return nil, err
		}
	}

	headerRow := len(summary) + 2
	for col, h := range trajectoryHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header %s: %w", h, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("style header %s: %w", h, err)
		}
	}

	for i, a := range assessments {
		row := headerRow + 1 + i
		values := []any{
			a.VisitDate.Format("2006-01-02"),
			a.Source,
			scoreCell(a.TissueScore),
			scoreCell(a.InflammationScore),
			scoreCell(a.MoistureScore),
			scoreCell(a.EdgeScore),
			totalCell(a.Total),
			a.Trajectory,
			changeCell(a.ChangeScore),
			a.AlertLevel,
			contradictionCell(&a),
		}
		for col, v := range values {
			if err := setCell(f, sheet, col+1, row, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "K", 13); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}

// Dimension scores are stored 0-1; the workbook shows the 0-10 scale the
// referral summary uses.
func scoreCell(s *float64) any {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *s*10)
}

func totalCell(t *int) any {
	if t == nil {
		return ""
	}
	return *t
}

func changeCell(c *float64) any {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%+.2f", *c)
}

func contradictionCell(a *store.Assessment) string {
	if !a.ContradictionFlag {
		return ""
	}
	if a.ContradictionDetail != "" {
		return a.ContradictionDetail
	}
	return "yes"
}
