package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"classledger/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestStore(opts ...Option) *Store {
	base := []Option{WithIDGenerator(seqIDs()), WithClock(func() time.Time { return fixedNow })}
	return New(domain.EmptyDataset(), append(base, opts...)...)
}

type recordingSaver struct {
	saves []domain.Dataset
	err   error
}

func (r *recordingSaver) Save(_ context.Context, d domain.Dataset) error {
	r.saves = append(r.saves, d)
	return r.err
}

// fixture builds two groups, two students, a session and an assessment per
// group, and attendance/grade/report rows for both students.
type fixture struct {
	store                  *Store
	g1, g2, s1, s2         string
	sess1, sess2, as1, as2 string
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	st := newTestStore(opts...)
	ctx := context.Background()
	f := fixture{store: st}
	f.g1 = st.Dispatch(ctx, CreateGroup{Group: domain.Group{Name: "G1"}}).ID
	f.g2 = st.Dispatch(ctx, CreateGroup{Group: domain.Group{Name: "G2"}}).ID
	f.s1 = st.Dispatch(ctx, CreateStudent{Student: domain.Student{FullName: "Ada"}}).ID
	f.s2 = st.Dispatch(ctx, CreateStudent{Student: domain.Student{FullName: "Brook"}}).ID
	for _, g := range []string{f.g1, f.g2} {
		for _, s := range []string{f.s1, f.s2} {
			st.Dispatch(ctx, AddStudentToGroup{StudentID: s, GroupID: g})
		}
	}
	f.sess1 = st.Dispatch(ctx, CreateSession{Session: domain.Session{GroupID: f.g1, DateTime: fixedNow}}).ID
	f.sess2 = st.Dispatch(ctx, CreateSession{Session: domain.Session{GroupID: f.g2, DateTime: fixedNow}}).ID
	f.as1 = st.Dispatch(ctx, CreateAssessment{Assessment: domain.Assessment{GroupID: f.g1, Name: "Quiz", MaxScore: 10, Date: fixedNow}}).ID
	f.as2 = st.Dispatch(ctx, CreateAssessment{Assessment: domain.Assessment{GroupID: f.g2, Name: "Test", MaxScore: 20, Date: fixedNow}}).ID
	for _, sess := range []string{f.sess1, f.sess2} {
		st.Dispatch(ctx, MarkAttendance{SessionID: sess, Marks: []AttendanceMark{
			{StudentID: f.s1, Status: domain.AttendancePresent},
			{StudentID: f.s2, Status: domain.AttendanceAbsent},
		}})
		st.Dispatch(ctx, UpsertSessionReport{SessionID: sess, Summary: "covered fractions"})
	}
	for _, as := range []string{f.as1, f.as2} {
		st.Dispatch(ctx, UpsertGrade{AssessmentID: as, StudentID: f.s1, Score: 8})
		st.Dispatch(ctx, UpsertGrade{AssessmentID: as, StudentID: f.s2, Score: 5})
	}
	st.Dispatch(ctx, CreatePayment{Payment: domain.PaymentRecord{StudentID: f.s1, GroupID: f.g1, Month: "2024-03", Status: domain.PaymentPaid, Amount: 40}})
	return f
}

func TestCreateAssignsFreshIDAndTimestamp(t *testing.T) {
	st := New(domain.EmptyDataset())
	ctx := context.Background()
	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		before := len(st.Snapshot().Students)
		out := st.Dispatch(ctx, CreateStudent{Student: domain.Student{ID: "caller-supplied", FullName: "S"}})
		if out.Status != StatusCreated {
			t.Fatalf("expected created, got %s", out.Status)
		}
		students := st.Snapshot().Students
		if len(students) != before+1 {
			t.Fatalf("expected %d students, got %d", before+1, len(students))
		}
		got := students[len(students)-1]
		if got.ID == "" || got.ID == "caller-supplied" || got.ID != out.ID {
			t.Fatalf("unexpected id %q (outcome %q)", got.ID, out.ID)
		}
		if _, dup := seen[got.ID]; dup {
			t.Fatalf("duplicate id %q", got.ID)
		}
		seen[got.ID] = struct{}{}
		if got.CreatedAt.IsZero() {
			t.Fatalf("createdAt not set: %v", got.CreatedAt)
		}
	}
}

func TestCreateEveryEntityKind(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	cases := []struct {
		action Action
		count  func(domain.Dataset) int
	}{
		{CreateGroup{Group: domain.Group{Name: "G"}}, func(d domain.Dataset) int { return len(d.Groups) }},
		{CreateSession{Session: domain.Session{GroupID: "g"}}, func(d domain.Dataset) int { return len(d.Sessions) }},
		{CreateAssessment{Assessment: domain.Assessment{GroupID: "g", Name: "A", MaxScore: 1}}, func(d domain.Dataset) int { return len(d.Assessments) }},
		{CreatePayment{Payment: domain.PaymentRecord{StudentID: "s", GroupID: "g", Month: "2024-01"}}, func(d domain.Dataset) int { return len(d.PaymentRecords) }},
	}
	for _, tc := range cases {
		before := tc.count(st.Snapshot())
		out := st.Dispatch(ctx, tc.action)
		if out.Status != StatusCreated || out.ID == "" {
			t.Fatalf("%s: unexpected outcome %+v", tc.action.Kind(), out)
		}
		if got := tc.count(st.Snapshot()); got != before+1 {
			t.Fatalf("%s: expected %d records, got %d", tc.action.Kind(), before+1, got)
		}
	}
}

func TestUpdateReplacesByIDAndKeepsCreatedAt(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	id := st.Dispatch(ctx, CreateStudent{Student: domain.Student{FullName: "Old"}}).ID
	out := st.Dispatch(ctx, UpdateStudent{Student: domain.Student{ID: id, FullName: "New", Notes: "n"}})
	if out.Status != StatusUpdated {
		t.Fatalf("expected updated, got %s", out.Status)
	}
	got := st.Snapshot().Students[0]
	if got.FullName != "New" || got.Notes != "n" || !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected student after update: %+v", got)
	}
}

func TestUpdateAndDeleteMissingIDAreNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.Snapshot().Counts()
	actions := []Action{
		UpdateStudent{Student: domain.Student{ID: "missing"}},
		UpdateGroup{Group: domain.Group{ID: "missing"}},
		UpdateSession{Session: domain.Session{ID: "missing"}},
		UpdateAssessment{Assessment: domain.Assessment{ID: "missing"}},
		UpdatePayment{Payment: domain.PaymentRecord{ID: "missing"}},
		UpdateSessionReport{Report: domain.SessionReport{ID: "missing"}},
		DeleteStudent{ID: "missing"},
		DeleteGroup{ID: "missing"},
		DeleteSession{ID: "missing"},
		DeleteAssessment{ID: "missing"},
		DeletePayment{ID: "missing"},
		DeleteSessionReport{ID: "missing"},
		RemoveStudentFromGroup{StudentID: "missing", GroupID: f.g1},
	}
	for _, a := range actions {
		out := f.store.Dispatch(ctx, a)
		if out.Status != StatusNotFound || out.Changed() {
			t.Fatalf("%s: expected not_found, got %s", a.Kind(), out.Status)
		}
	}
	after := f.store.Snapshot().Counts()
	for field, n := range before {
		if after[field] != n {
			t.Fatalf("%s changed from %d to %d", field, n, after[field])
		}
	}
}

func TestDeleteStudentCascade(t *testing.T) {
	f := newFixture(t)
	before := f.store.Snapshot().Counts()
	out := f.store.Dispatch(context.Background(), DeleteStudent{ID: f.s1})
	if out.Status != StatusDeleted {
		t.Fatalf("expected deleted, got %s", out.Status)
	}
	d := f.store.Snapshot()
	for _, s := range d.Students {
		if s.ID == f.s1 {
			t.Fatalf("student still present")
		}
	}
	for _, l := range d.StudentGroups {
		if l.StudentID == f.s1 {
			t.Fatalf("link still present: %+v", l)
		}
	}
	for _, r := range d.AttendanceRecords {
		if r.StudentID == f.s1 {
			t.Fatalf("attendance still present: %+v", r)
		}
	}
	for _, g := range d.Grades {
		if g.StudentID == f.s1 {
			t.Fatalf("grade still present: %+v", g)
		}
	}
	after := d.Counts()
	want := map[string]int{
		domain.FieldStudents:          before[domain.FieldStudents] - 1,
		domain.FieldStudentGroups:     before[domain.FieldStudentGroups] - 2,
		domain.FieldAttendanceRecords: before[domain.FieldAttendanceRecords] - 2,
		domain.FieldGrades:            before[domain.FieldGrades] - 2,
	}
	for field, n := range before {
		expected, ok := want[field]
		if !ok {
			expected = n
		}
		if after[field] != expected {
			t.Fatalf("%s: expected %d, got %d", field, expected, after[field])
		}
	}
	if out.Cascaded[domain.EntityGrade] != 2 || out.Cascaded[domain.EntityStudentGroup] != 2 {
		t.Fatalf("unexpected cascade counts: %v", out.Cascaded)
	}
}

func TestDeleteGroupLegacyPartialCascade(t *testing.T) {
	f := newFixture(t)
	before := f.store.Snapshot().Counts()
	f.store.Dispatch(context.Background(), DeleteGroup{ID: f.g1})
	d := f.store.Snapshot()
	after := d.Counts()

	checks := map[string]int{
		domain.FieldGroups:            before[domain.FieldGroups] - 1,
		domain.FieldStudentGroups:     before[domain.FieldStudentGroups] - 2,
		domain.FieldSessions:          before[domain.FieldSessions] - 1,
		domain.FieldAssessments:       before[domain.FieldAssessments] - 1,
		domain.FieldAttendanceRecords: before[domain.FieldAttendanceRecords],
		domain.FieldSessionReports:    before[domain.FieldSessionReports],
		domain.FieldGrades:            before[domain.FieldGrades],
		domain.FieldStudents:          before[domain.FieldStudents],
		domain.FieldPaymentRecords:    before[domain.FieldPaymentRecords],
	}
	for field, want := range checks {
		if after[field] != want {
			t.Fatalf("%s: expected %d, got %d", field, want, after[field])
		}
	}
	orphaned := 0
	for _, r := range d.AttendanceRecords {
		if r.SessionID == f.sess1 {
			orphaned++
		}
	}
	if orphaned != 2 {
		t.Fatalf("expected 2 orphaned attendance records, got %d", orphaned)
	}
}

func TestDeleteGroupStrictCascade(t *testing.T) {
	f := newFixture(t, WithCascadeMode(CascadeStrict))
	before := f.store.Snapshot().Counts()
	out := f.store.Dispatch(context.Background(), DeleteGroup{ID: f.g1})
	d := f.store.Snapshot()
	after := d.Counts()
	checks := map[string]int{
		domain.FieldAttendanceRecords: before[domain.FieldAttendanceRecords] - 2,
		domain.FieldSessionReports:    before[domain.FieldSessionReports] - 1,
		domain.FieldGrades:            before[domain.FieldGrades] - 2,
		domain.FieldStudents:          before[domain.FieldStudents],
	}
	for field, want := range checks {
		if after[field] != want {
			t.Fatalf("%s: expected %d, got %d", field, want, after[field])
		}
	}
	for _, g := range d.Grades {
		if g.AssessmentID == f.as1 {
			t.Fatalf("grade of removed assessment still present")
		}
	}
	if out.Cascaded[domain.EntitySession] != 1 || out.Cascaded[domain.EntityAttendance] != 2 {
		t.Fatalf("unexpected cascade counts: %v", out.Cascaded)
	}
}

func TestDeleteSessionRemovesAttendanceAndReport(t *testing.T) {
	f := newFixture(t)
	f.store.Dispatch(context.Background(), DeleteSession{ID: f.sess1})
	d := f.store.Snapshot()
	for _, r := range d.AttendanceRecords {
		if r.SessionID == f.sess1 {
			t.Fatalf("attendance of deleted session kept")
		}
	}
	for _, r := range d.SessionReports {
		if r.SessionID == f.sess1 {
			t.Fatalf("report of deleted session kept")
		}
	}
	if len(d.AttendanceRecords) != 2 || len(d.SessionReports) != 1 {
		t.Fatalf("unexpected remaining rows: %d attendance, %d reports", len(d.AttendanceRecords), len(d.SessionReports))
	}
}

func TestDeleteAssessmentRemovesGrades(t *testing.T) {
	f := newFixture(t)
	f.store.Dispatch(context.Background(), DeleteAssessment{ID: f.as2})
	d := f.store.Snapshot()
	if len(d.Grades) != 2 {
		t.Fatalf("expected 2 grades left, got %d", len(d.Grades))
	}
	for _, g := range d.Grades {
		if g.AssessmentID == f.as2 {
			t.Fatalf("grade of deleted assessment kept")
		}
	}
}

func TestUpsertAttendanceKeepsSingleRecord(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	first := st.Dispatch(ctx, UpsertAttendance{SessionID: "sess", StudentID: "stu", Status: domain.AttendancePresent})
	second := st.Dispatch(ctx, UpsertAttendance{SessionID: "sess", StudentID: "stu", Status: domain.AttendanceExcused})
	if first.Status != StatusCreated || second.Status != StatusUpdated {
		t.Fatalf("unexpected statuses %s, %s", first.Status, second.Status)
	}
	recs := st.Snapshot().AttendanceRecords
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Status != domain.AttendanceExcused || recs[0].ID != first.ID {
		t.Fatalf("unexpected record %+v", recs[0])
	}
}

func TestUpsertGradeKeepsSingleRecord(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	first := st.Dispatch(ctx, UpsertGrade{AssessmentID: "a", StudentID: "s", Score: 50, Comments: "ok"})
	st.Dispatch(ctx, UpsertGrade{AssessmentID: "a", StudentID: "s", Score: 87, Comments: "better"})
	grades := st.Snapshot().Grades
	if len(grades) != 1 {
		t.Fatalf("expected 1 grade, got %d", len(grades))
	}
	if grades[0].Score != 87 || grades[0].Comments != "better" || grades[0].ID != first.ID {
		t.Fatalf("unexpected grade %+v", grades[0])
	}
}

func TestUpsertAfterCascadeUsesFreshIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// removing s1 shifts the positions of every remaining attendance row and grade
	f.store.Dispatch(ctx, DeleteStudent{ID: f.s1})
	f.store.Dispatch(ctx, UpsertAttendance{SessionID: f.sess2, StudentID: f.s2, Status: domain.AttendanceExcused})
	f.store.Dispatch(ctx, UpsertGrade{AssessmentID: f.as2, StudentID: f.s2, Score: 19})
	d := f.store.Snapshot()
	if len(d.AttendanceRecords) != 2 || len(d.Grades) != 2 {
		t.Fatalf("upsert after cascade duplicated rows: %d attendance, %d grades", len(d.AttendanceRecords), len(d.Grades))
	}
	for _, r := range d.AttendanceRecords {
		want := domain.AttendanceAbsent
		if r.SessionID == f.sess2 {
			want = domain.AttendanceExcused
		}
		if r.Status != want {
			t.Fatalf("record %+v: expected %s", r, want)
		}
	}
	for _, g := range d.Grades {
		want := 5.0
		if g.AssessmentID == f.as2 {
			want = 19
		}
		if g.Score != want {
			t.Fatalf("grade %+v: expected %v", g, want)
		}
	}
}

func TestSessionReportUpsertAndUpdate(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	first := st.Dispatch(ctx, UpsertSessionReport{SessionID: "sess", Summary: "a"})
	st.Dispatch(ctx, UpsertSessionReport{SessionID: "sess", Summary: "b", Homework: "p. 12"})
	reports := st.Snapshot().SessionReports
	if len(reports) != 1 || reports[0].Summary != "b" || reports[0].Homework != "p. 12" || reports[0].ID != first.ID {
		t.Fatalf("unexpected reports %+v", reports)
	}
	moved := reports[0]
	moved.SessionID = "other"
	st.Dispatch(ctx, UpdateSessionReport{Report: moved})
	st.Dispatch(ctx, UpsertSessionReport{SessionID: "sess", Summary: "c"})
	if got := len(st.Snapshot().SessionReports); got != 2 {
		t.Fatalf("expected 2 reports after moving one, got %d", got)
	}
	if out := st.Dispatch(ctx, DeleteSessionReport{ID: first.ID}); out.Status != StatusDeleted {
		t.Fatalf("expected deleted, got %s", out.Status)
	}
}

func TestUpdateSessionReportCannotTakeAnotherSessionsKey(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	r1 := st.Dispatch(ctx, UpsertSessionReport{SessionID: "s1", Summary: "one"})
	r2 := st.Dispatch(ctx, UpsertSessionReport{SessionID: "s2", Summary: "two"})

	moved := domain.SessionReport{ID: r2.ID, SessionID: "s1", Summary: "moved"}
	if out := st.Dispatch(ctx, UpdateSessionReport{Report: moved}); out.Status != StatusUnchanged {
		t.Fatalf("expected unchanged, got %s", out.Status)
	}
	if out := st.Dispatch(ctx, UpdateSessionReport{Report: domain.SessionReport{ID: "ghost", SessionID: "s1"}}); out.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %s", out.Status)
	}
	perSession := map[string]int{}
	for _, r := range st.Snapshot().SessionReports {
		perSession[r.SessionID]++
	}
	if perSession["s1"] != 1 || perSession["s2"] != 1 {
		t.Fatalf("reports per session: %v", perSession)
	}

	st.Dispatch(ctx, UpsertSessionReport{SessionID: "s1", Summary: "again"})
	for _, r := range st.Snapshot().SessionReports {
		if r.ID == r1.ID && r.Summary != "again" {
			t.Fatalf("upsert missed the s1 report: %+v", r)
		}
		if r.ID == r2.ID && r.Summary != "two" {
			t.Fatalf("s2 report changed: %+v", r)
		}
	}

	same := domain.SessionReport{ID: r1.ID, SessionID: "s1", Summary: "edited"}
	if out := st.Dispatch(ctx, UpdateSessionReport{Report: same}); out.Status != StatusUpdated {
		t.Fatalf("in-place update = %s", out.Status)
	}
}

func TestReplaceWithDuplicateKeysUpsertsFirstRecord(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	d := domain.EmptyDataset()
	d.AttendanceRecords = []domain.AttendanceRecord{
		{ID: "att-1", SessionID: "sess", StudentID: "s", Status: domain.AttendanceAbsent},
		{ID: "att-2", SessionID: "sess", StudentID: "s", Status: domain.AttendanceAbsent},
	}
	d.Grades = []domain.Grade{
		{ID: "gr-1", AssessmentID: "a", StudentID: "s", Score: 1},
		{ID: "gr-2", AssessmentID: "a", StudentID: "s", Score: 2},
	}
	d.SessionReports = []domain.SessionReport{
		{ID: "rep-1", SessionID: "sess", Summary: "first"},
		{ID: "rep-2", SessionID: "sess", Summary: "second"},
	}
	st.Dispatch(ctx, ReplaceDataset{Dataset: d})

	if out := st.Dispatch(ctx, UpsertAttendance{SessionID: "sess", StudentID: "s", Status: domain.AttendancePresent}); out.ID != "att-1" || out.Status != StatusUpdated {
		t.Fatalf("attendance upsert: %+v", out)
	}
	if out := st.Dispatch(ctx, UpsertGrade{AssessmentID: "a", StudentID: "s", Score: 9}); out.ID != "gr-1" {
		t.Fatalf("grade upsert: %+v", out)
	}
	if out := st.Dispatch(ctx, UpsertSessionReport{SessionID: "sess", Summary: "new"}); out.ID != "rep-1" {
		t.Fatalf("report upsert: %+v", out)
	}
	got := st.Snapshot()
	if got.AttendanceRecords[1].Status != domain.AttendanceAbsent || got.Grades[1].Score != 2 || got.SessionReports[1].Summary != "second" {
		t.Fatalf("second duplicates changed: %+v", got)
	}
	if len(got.AttendanceRecords) != 2 || len(got.Grades) != 2 || len(got.SessionReports) != 2 {
		t.Fatalf("duplicates should be kept: %v", got.Counts())
	}

	// Removing the first duplicate hands the key to the survivor.
	st.Dispatch(ctx, DeleteSessionReport{ID: "rep-1"})
	if out := st.Dispatch(ctx, UpsertSessionReport{SessionID: "sess", Summary: "last"}); out.ID != "rep-2" || out.Status != StatusUpdated {
		t.Fatalf("upsert after delete: %+v", out)
	}
}

func TestMembershipIsIdempotent(t *testing.T) {
	st := newTestStore()
	ctx := context.Background()
	if out := st.Dispatch(ctx, AddStudentToGroup{StudentID: "s", GroupID: "g"}); out.Status != StatusCreated {
		t.Fatalf("expected created, got %s", out.Status)
	}
	if out := st.Dispatch(ctx, AddStudentToGroup{StudentID: "s", GroupID: "g"}); out.Status != StatusUnchanged {
		t.Fatalf("expected unchanged, got %s", out.Status)
	}
	if got := len(st.Snapshot().StudentGroups); got != 1 {
		t.Fatalf("expected 1 link, got %d", got)
	}
	if out := st.Dispatch(ctx, RemoveStudentFromGroup{StudentID: "s", GroupID: "g"}); out.Status != StatusDeleted {
		t.Fatalf("expected deleted, got %s", out.Status)
	}
	if got := len(st.Snapshot().StudentGroups); got != 0 {
		t.Fatalf("expected no links, got %d", got)
	}
	if out := st.Dispatch(ctx, AddStudentToGroup{StudentID: "s", GroupID: "g"}); out.Status != StatusCreated {
		t.Fatalf("expected re-add to create, got %s", out.Status)
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.Snapshot()
	firstStatus := before.AttendanceRecords[0].Status
	firstStudent := before.Students[0]

	f.store.Dispatch(ctx, UpsertAttendance{SessionID: before.AttendanceRecords[0].SessionID, StudentID: before.AttendanceRecords[0].StudentID, Status: domain.AttendanceExcused})
	f.store.Dispatch(ctx, UpdateStudent{Student: domain.Student{ID: firstStudent.ID, FullName: "Renamed"}})
	f.store.Dispatch(ctx, DeleteStudent{ID: f.s2})
	f.store.Dispatch(ctx, CreateGroup{Group: domain.Group{Name: "G3"}})

	if before.AttendanceRecords[0].Status != firstStatus {
		t.Fatalf("published snapshot was modified in place")
	}
	if before.Students[0].FullName != firstStudent.FullName || len(before.Students) != 2 || len(before.Groups) != 2 {
		t.Fatalf("published snapshot collections changed")
	}
}

func TestReplaceAndClearDataset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	replacement := domain.Dataset{Students: []domain.Student{{ID: "x", FullName: "Imported"}}}
	out := f.store.Dispatch(ctx, ReplaceDataset{Dataset: replacement})
	if out.Status != StatusReplaced {
		t.Fatalf("expected replaced, got %s", out.Status)
	}
	d := f.store.Snapshot()
	if len(d.Students) != 1 || d.Students[0].ID != "x" || d.Groups == nil || len(d.Groups) != 0 {
		t.Fatalf("unexpected dataset after replace: %+v", d)
	}
	replacement.Students[0].FullName = "mutated by caller"
	if f.store.Snapshot().Students[0].FullName != "Imported" {
		t.Fatalf("replace aliased caller slice")
	}
	f.store.Dispatch(ctx, UpsertAttendance{SessionID: f.sess1, StudentID: f.s1, Status: domain.AttendancePresent})
	if got := len(f.store.Snapshot().AttendanceRecords); got != 1 {
		t.Fatalf("index not rebuilt after replace, got %d records", got)
	}
	f.store.Dispatch(ctx, ClearDataset{})
	for field, n := range f.store.Snapshot().Counts() {
		if n != 0 {
			t.Fatalf("%s not cleared: %d", field, n)
		}
	}
}

func TestEveryDispatchSavesEvenOnNoOp(t *testing.T) {
	saver := &recordingSaver{}
	st := newTestStore(WithSaver(saver))
	ctx := context.Background()
	st.Dispatch(ctx, AddStudentToGroup{StudentID: "s", GroupID: "g"})
	st.Dispatch(ctx, AddStudentToGroup{StudentID: "s", GroupID: "g"})
	st.Dispatch(ctx, DeleteStudent{ID: "missing"})
	if len(saver.saves) != 3 {
		t.Fatalf("expected 3 saves, got %d", len(saver.saves))
	}
	if len(saver.saves[2].StudentGroups) != 1 {
		t.Fatalf("saved snapshot does not reflect state")
	}
}

func TestSaveFailureKeepsSnapshot(t *testing.T) {
	saver := &recordingSaver{err: errors.New("quota exceeded")}
	var events []Event
	st := newTestStore(WithSaver(saver), WithListener(func(_ context.Context, ev Event) { events = append(events, ev) }))
	out := st.Dispatch(context.Background(), CreateGroup{Group: domain.Group{Name: "G"}})
	if out.Status != StatusCreated || len(st.Snapshot().Groups) != 1 {
		t.Fatalf("snapshot rolled back after failed save")
	}
	if st.LastSaveError() == nil {
		t.Fatalf("expected last save error to be recorded")
	}
	if len(events) != 1 || events[0].SaveErr == nil || len(events[0].Changes) != 1 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestDispatchNilAction(t *testing.T) {
	st := newTestStore()
	if out := st.Dispatch(context.Background(), nil); out.Status != StatusUnchanged {
		t.Fatalf("expected unchanged, got %s", out.Status)
	}
}

func TestParseCascadeMode(t *testing.T) {
	cases := map[string]CascadeMode{"": CascadeLegacyPartial, "legacy-partial": CascadeLegacyPartial, "strict": CascadeStrict}
	for in, want := range cases {
		got, err := ParseCascadeMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseCascadeMode(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseCascadeMode("full"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
