package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"classledger/internal/blob"
	"classledger/internal/infra/persistence/memory"
	"classledger/internal/query"
	"classledger/internal/snapshot"
	"classledger/internal/store"
	"classledger/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Slot) {
	t.Helper()
	slot := memory.New()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithStoreOptions(store.WithIDGenerator(seqIDs())),
		WithBlobStore(blob.NewMemory()),
	}
	return New(context.Background(), slot, append(base, opts...)...), slot
}

func mustGroupStudent(t *testing.T, svc *Service) (domain.Group, domain.Student) {
	t.Helper()
	ctx := context.Background()
	g, err := svc.CreateGroup(ctx, domain.Group{Name: "Algebra"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	s, err := svc.CreateStudent(ctx, domain.Student{FullName: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	return g, s
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateStudent(context.Background(), domain.Student{})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "FullName" || ve.Fields[0].Rule != "required" {
		t.Fatalf("expected FullName required error, got %v", err)
	}
	if len(svc.Snapshot().Students) != 0 {
		t.Fatal("rejected input must not be dispatched")
	}
}

func TestCreateReturnsStoredRecord(t *testing.T) {
	svc, slot := newTestService(t)
	g, s := mustGroupStudent(t, svc)
	if g.ID == "" || !g.CreatedAt.Equal(fixedNow) || s.ID == "" {
		t.Fatalf("unexpected records: %+v %+v", g, s)
	}
	raw, err := slot.Read(context.Background())
	if err != nil {
		t.Fatalf("slot read: %v", err)
	}
	d, ok := snapshot.Decode(raw)
	if !ok || len(d.Groups) != 1 || len(d.Students) != 1 {
		t.Fatalf("slot not saved: %s", raw)
	}
}

func TestReferencesAreChecked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g, s := mustGroupStudent(t, svc)

	if _, err := svc.CreateSession(ctx, domain.Session{GroupID: "nope", DateTime: fixedNow}); !IsNotFound(err) {
		t.Fatalf("session in missing group: %v", err)
	}
	if _, err := svc.AddStudentToGroup(ctx, "nope", g.ID); !IsNotFound(err) {
		t.Fatalf("link of missing student: %v", err)
	}
	if _, err := svc.AddStudentToGroup(ctx, s.ID, g.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	out, err := svc.AddStudentToGroup(ctx, s.ID, g.ID)
	if err != nil || out.Status != store.StatusUnchanged {
		t.Fatalf("second link: %+v %v", out, err)
	}
	if _, err := svc.CreateAssessment(ctx, domain.Assessment{GroupID: "nope", Name: "Quiz", MaxScore: 10, Date: fixedNow}); !IsNotFound(err) {
		t.Fatalf("assessment in missing group: %v", err)
	}
	if _, err := svc.MarkAttendance(ctx, "nope", nil); !IsNotFound(err) {
		t.Fatalf("attendance for missing session: %v", err)
	}
}

func TestSessionAttendanceAndReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g, s := mustGroupStudent(t, svc)
	sess, err := svc.CreateSession(ctx, domain.Session{GroupID: g.ID, DateTime: fixedNow, Topic: "Fractions"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RecordAttendance(ctx, sess.ID, s.ID, "late"); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	if _, err := svc.MarkAttendance(ctx, sess.ID, []store.AttendanceMark{{StudentID: "ghost", Status: domain.AttendancePresent}}); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown student, got %v", err)
	}
	if _, err := svc.RecordAttendance(ctx, sess.ID, s.ID, domain.AttendancePresent); err != nil {
		t.Fatalf("record attendance: %v", err)
	}
	if _, err := svc.RecordAttendance(ctx, sess.ID, s.ID, domain.AttendanceExcused); err != nil {
		t.Fatalf("re-record attendance: %v", err)
	}
	recs := query.AttendanceForSession(svc.Snapshot(), sess.ID)
	if len(recs) != 1 || recs[0].Status != domain.AttendanceExcused {
		t.Fatalf("attendance: %+v", recs)
	}

	rep, err := svc.RecordReport(ctx, domain.SessionReport{SessionID: sess.ID, Summary: "intro"})
	if err != nil || rep.ID == "" {
		t.Fatalf("record report: %+v %v", rep, err)
	}
	rep2, err := svc.RecordReport(ctx, domain.SessionReport{SessionID: sess.ID, Summary: "revised"})
	if err != nil || rep2.ID != rep.ID || rep2.Summary != "revised" {
		t.Fatalf("report upsert: %+v %v", rep2, err)
	}
}

func TestRecordGradeBounds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g, s := mustGroupStudent(t, svc)
	a, err := svc.CreateAssessment(ctx, domain.Assessment{GroupID: g.ID, Name: "Quiz", MaxScore: 20, Date: fixedNow})
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	for _, score := range []float64{-1, 21} {
		if _, err := svc.RecordGrade(ctx, a.ID, s.ID, score, ""); !IsValidation(err) {
			t.Fatalf("score %v: expected validation error, got %v", score, err)
		}
	}
	grade, err := svc.RecordGrade(ctx, a.ID, s.ID, 20, "full marks")
	if err != nil || grade.Score != 20 || grade.Comments != "full marks" {
		t.Fatalf("record grade: %+v %v", grade, err)
	}
	again, err := svc.RecordGrade(ctx, a.ID, s.ID, 15, "")
	if err != nil || again.ID != grade.ID || again.Score != 15 {
		t.Fatalf("grade upsert: %+v %v", again, err)
	}
	if _, err := svc.RecordGrade(ctx, "nope", s.ID, 1, ""); !IsNotFound(err) {
		t.Fatalf("missing assessment: %v", err)
	}
}

func TestRecordPaymentUpsertsByMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g, s := mustGroupStudent(t, svc)
	bad := domain.PaymentRecord{StudentID: s.ID, GroupID: g.ID, Month: "March", Status: domain.PaymentPaid}
	if _, err := svc.RecordPayment(ctx, bad); !IsValidation(err) {
		t.Fatalf("expected month validation error, got %v", err)
	}
	p := domain.PaymentRecord{StudentID: s.ID, GroupID: g.ID, Month: "2024-03", Status: domain.PaymentUnpaid, Amount: 40}
	first, err := svc.RecordPayment(ctx, p)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	p.Status = domain.PaymentPaid
	paid := fixedNow
	p.PaidDate = &paid
	second, err := svc.RecordPayment(ctx, p)
	if err != nil || second.ID != first.ID || second.Status != domain.PaymentPaid || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("payment upsert: %+v %v", second, err)
	}
	if n := len(svc.Snapshot().PaymentRecords); n != 1 {
		t.Fatalf("expected one payment record, got %d", n)
	}
}

func TestUpdateAndDeleteReportNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.UpdateStudent(ctx, domain.Student{ID: "ghost", FullName: "x"}); !IsNotFound(err) {
		t.Fatalf("update missing student: %v", err)
	}
	out, err := svc.DeleteGroup(ctx, "ghost")
	var nf ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityGroup || out.Status != store.StatusNotFound {
		t.Fatalf("delete missing group: %+v %v", out, err)
	}
}

func TestImportExportRestore(t *testing.T) {
	svc, slot := newTestService(t)
	ctx := context.Background()
	mustGroupStudent(t, svc)

	exp, err := svc.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Name != "classledger-backup-2024-03-01.json" {
		t.Fatalf("export name: %s", exp.Name)
	}
	if _, err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(svc.Snapshot().Students) != 0 {
		t.Fatal("clear left students")
	}

	before, _ := slot.Read(ctx)
	if err := svc.Import(ctx, []byte(`[1,2,3]`)); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	after, _ := slot.Read(ctx)
	if string(before) != string(after) {
		t.Fatal("rejected import changed the slot")
	}

	infos, err := svc.ListExports(ctx)
	if err != nil || len(infos) != 1 {
		t.Fatalf("list exports: %+v %v", infos, err)
	}
	if err := svc.RestoreExport(ctx, exp.Name); err != nil {
		t.Fatalf("restore: %v", err)
	}
	d := svc.Snapshot()
	if len(d.Students) != 1 || len(d.Groups) != 1 {
		t.Fatalf("restored dataset: %+v", d.Counts())
	}

	if err := svc.Import(ctx, exp.Data); err != nil {
		t.Fatalf("import: %v", err)
	}
}

func TestReloadFromSlot(t *testing.T) {
	svc, slot := newTestService(t)
	ctx := context.Background()
	g, s := mustGroupStudent(t, svc)
	if _, err := svc.AddStudentToGroup(ctx, s.ID, g.ID); err != nil {
		t.Fatal(err)
	}
	reopened := New(ctx, slot)
	if got := query.StudentsInGroup(reopened.Snapshot(), g.ID); len(got) != 1 || got[0].ID != s.ID {
		t.Fatalf("reloaded membership: %+v", got)
	}
}

type failingSlot struct{ *memory.Slot }

func (failingSlot) Write(context.Context, []byte) error { return errors.New("disk full") }

func TestSaveFailureKeepsSnapshotAndIsObserved(t *testing.T) {
	metrics := &captureMetrics{}
	svc := New(context.Background(), failingSlot{memory.New()}, WithMetricsRecorder(metrics))
	if _, err := svc.CreateGroup(context.Background(), domain.Group{Name: "G"}); err != nil {
		t.Fatalf("create group should succeed despite save failure: %v", err)
	}
	if len(svc.Snapshot().Groups) != 1 {
		t.Fatal("snapshot lost after failed save")
	}
	if svc.LastSaveError() == nil {
		t.Fatal("expected LastSaveError to be set")
	}
	if !metrics.has("save", false) || !metrics.has("dispatch.group.create", true) {
		t.Fatalf("observations: %+v", metrics.calls)
	}
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func TestCloseReleasesResources(t *testing.T) {
	c := &closeCounter{}
	svc := New(context.Background(), memory.New(), WithCloser(c), WithCloser(nil))
	if err := svc.Close(); err != nil || c.n != 1 {
		t.Fatalf("close: %v (n=%d)", err, c.n)
	}
}
