package roster

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"classledger/internal/core"
	"classledger/internal/infra/persistence/memory"
	"classledger/internal/query"
)

func workbook(t *testing.T, sheet string, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, r := range rows {
		r := r
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

var header = []any{"Group", "Full name", "Contact", "Parent phone", "Notes"}

func TestImportWorkbookParsesRows(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]any{
		header,
		{"Algebra", "Ada Lovelace", "ada@example.com", "555-0100"},
		{"Algebra", ""},
		{},
		{" Geometry ", " Brook Taylor ", "", "", "left-handed"},
	})
	plan, err := ImportWorkbook(buf, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if plan.Sheet != "Sheet1" || len(plan.Rows) != 2 {
		t.Fatalf("plan: %+v", plan)
	}
	if plan.Rows[0].Line != 2 || plan.Rows[0].ParentPhone != "555-0100" {
		t.Fatalf("first row: %+v", plan.Rows[0])
	}
	if plan.Rows[1].Group != "Geometry" || plan.Rows[1].FullName != "Brook Taylor" || plan.Rows[1].Notes != "left-handed" {
		t.Fatalf("second row: %+v", plan.Rows[1])
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0] != 3 {
		t.Fatalf("skipped: %v", plan.Skipped)
	}
}

func TestImportWorkbookNamedSheet(t *testing.T) {
	buf := workbook(t, "Roster", [][]any{header, {"Algebra", "Ada"}})
	if _, err := ImportWorkbook(bytes.NewReader(buf.Bytes()), "Missing"); err == nil {
		t.Fatal("expected error for missing sheet")
	}
	plan, err := ImportWorkbook(bytes.NewReader(buf.Bytes()), "Roster")
	if err != nil || len(plan.Rows) != 1 {
		t.Fatalf("named sheet: %+v %v", plan, err)
	}
}

func TestImportWorkbookRejectsGarbage(t *testing.T) {
	if _, err := ImportWorkbook(strings.NewReader("not a zip"), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyCreatesAndReusesRecords(t *testing.T) {
	ctx := context.Background()
	svc := core.New(ctx, memory.New())
	plan := Plan{Rows: []Row{
		{Line: 2, Group: "Algebra", FullName: "Ada Lovelace"},
		{Line: 3, Group: "Geometry", FullName: "Ada Lovelace"},
		{Line: 4, Group: "algebra", FullName: "Brook Taylor"},
	}, Skipped: []int{5}}

	res, err := Apply(ctx, svc, plan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.GroupsCreated != 2 || res.StudentsCreated != 2 || res.LinksCreated != 3 || len(res.Skipped) != 1 {
		t.Fatalf("result: %+v", res)
	}
	d := svc.Snapshot()
	var algebra string
	for _, g := range d.Groups {
		if g.Name == "Algebra" {
			algebra = g.ID
		}
	}
	if got := query.StudentsInGroup(d, algebra); len(got) != 2 {
		t.Fatalf("algebra members: %+v", got)
	}

	again, err := Apply(ctx, svc, plan)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again.GroupsCreated != 0 || again.StudentsCreated != 0 || again.LinksCreated != 0 {
		t.Fatalf("re-apply should be a no-op: %+v", again)
	}
}
