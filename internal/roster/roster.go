// Package roster imports class lists from xlsx workbooks. Each data row is
// "group name | full name | contact | parent phone | notes"; the first row
// is a header.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"classledger/internal/store"
	"classledger/pkg/domain"
)

// Row is one accepted roster line.
type Row struct {
	// Line is the 1-based spreadsheet row number.
	Line        int
	Group       string
	FullName    string
	ContactInfo string
	ParentPhone string
	Notes       string
}

// Plan is the parsed content of a workbook.
type Plan struct {
	Sheet string
	Rows  []Row
	// Skipped holds row numbers missing a group or a name.
	Skipped []int
}

// ImportWorkbook parses sheet of the workbook read from r. An empty sheet
// name selects the first sheet.
func ImportWorkbook(r io.Reader, sheet string) (Plan, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Plan{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			return Plan{}, errors.New("workbook has no sheets")
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Plan{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	plan := Plan{Sheet: sheet}
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		row := Row{
			Line:        i + 1,
			Group:       cell(cells, 0),
			FullName:    cell(cells, 1),
			ContactInfo: cell(cells, 2),
			ParentPhone: cell(cells, 3),
			Notes:       cell(cells, 4),
		}
		if row.Group == "" && row.FullName == "" && row.ContactInfo == "" {
			continue // blank line
		}
		if row.Group == "" || row.FullName == "" {
			plan.Skipped = append(plan.Skipped, row.Line)
			continue
		}
		plan.Rows = append(plan.Rows, row)
	}
	return plan, nil
}

func cell(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// Service is the subset of core.Service used by Apply.
type Service interface {
	Snapshot() domain.Dataset
	CreateGroup(ctx context.Context, g domain.Group) (domain.Group, error)
	CreateStudent(ctx context.Context, s domain.Student) (domain.Student, error)
	AddStudentToGroup(ctx context.Context, studentID, groupID string) (store.Outcome, error)
}

// Result summarises an applied plan.
type Result struct {
	GroupsCreated   int
	StudentsCreated int
	LinksCreated    int
	Skipped         []int
}

func nameKey(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }

// Apply creates missing groups and students and links them. Groups and
// students are matched by case-insensitive name, so re-importing a roster
// only adds what is new.
func Apply(ctx context.Context, svc Service, plan Plan) (Result, error) {
	res := Result{Skipped: append([]int(nil), plan.Skipped...)}
	d := svc.Snapshot()
	groups := make(map[string]string, len(d.Groups))
	for _, g := range d.Groups {
		groups[nameKey(g.Name)] = g.ID
	}
	students := make(map[string]string, len(d.Students))
	for _, s := range d.Students {
		students[nameKey(s.FullName)] = s.ID
	}

	for _, row := range plan.Rows {
		gid, ok := groups[nameKey(row.Group)]
		if !ok {
			g, err := svc.CreateGroup(ctx, domain.Group{Name: row.Group})
			if err != nil {
				return res, fmt.Errorf("row %d: create group %q: %w", row.Line, row.Group, err)
			}
			gid = g.ID
			groups[nameKey(row.Group)] = gid
			res.GroupsCreated++
		}
		sid, ok := students[nameKey(row.FullName)]
		if !ok {
			s, err := svc.CreateStudent(ctx, domain.Student{
				FullName:    row.FullName,
				ContactInfo: row.ContactInfo,
				ParentPhone: row.ParentPhone,
				Notes:       row.Notes,
			})
			if err != nil {
				return res, fmt.Errorf("row %d: create student %q: %w", row.Line, row.FullName, err)
			}
			sid = s.ID
			students[nameKey(row.FullName)] = sid
			res.StudentsCreated++
		}
		out, err := svc.AddStudentToGroup(ctx, sid, gid)
		if err != nil {
			return res, fmt.Errorf("row %d: link: %w", row.Line, err)
		}
		if out.Status == store.StatusCreated {
			res.LinksCreated++
		}
	}
	return res, nil
}
