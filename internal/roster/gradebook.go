package roster

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"classledger/internal/query"
	"classledger/pkg/domain"
)

// GradebookSheet is the sheet name WriteGradebook fills.
const GradebookSheet = "Gradebook"

// WriteGradebook renders gb as a workbook: one row per student, one column
// per assessment headed "name (/max)". Missing grades stay blank.
func WriteGradebook(w io.Writer, group domain.Group, gb query.Gradebook) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), GradebookSheet); err != nil {
		return err
	}

	header := []any{group.Name}
	for _, a := range gb.Assessments {
		header = append(header, fmt.Sprintf("%s (/%g)", a.Name, a.MaxScore))
	}
	if err := f.SetSheetRow(GradebookSheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range gb.Rows {
		cells := []any{row.Student.FullName}
		for _, g := range row.Grades {
			if g == nil {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, g.Score)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(GradebookSheet, cell, &cells); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
