package store

import "classledger/pkg/domain"

// Kind names an action variant. Kinds are stable strings so dispatch
// envelopes from the CLI and HTTP adapter can refer to them.
type Kind string

// Action kinds, one per mutation the store accepts.
const (
	KindCreateStudent          Kind = "student.create"
	KindUpdateStudent          Kind = "student.update"
	KindDeleteStudent          Kind = "student.delete"
	KindCreateGroup            Kind = "group.create"
	KindUpdateGroup            Kind = "group.update"
	KindDeleteGroup            Kind = "group.delete"
	KindAddStudentToGroup      Kind = "membership.add"
	KindRemoveStudentFromGroup Kind = "membership.remove"
	KindCreateSession          Kind = "session.create"
	KindUpdateSession          Kind = "session.update"
	KindDeleteSession          Kind = "session.delete"
	KindUpsertAttendance       Kind = "attendance.upsert"
	KindMarkAttendance         Kind = "attendance.mark"
	KindUpsertSessionReport    Kind = "report.upsert"
	KindUpdateSessionReport    Kind = "report.update"
	KindDeleteSessionReport    Kind = "report.delete"
	KindCreateAssessment       Kind = "assessment.create"
	KindUpdateAssessment       Kind = "assessment.update"
	KindDeleteAssessment       Kind = "assessment.delete"
	KindUpsertGrade            Kind = "grade.upsert"
	KindCreatePayment          Kind = "payment.create"
	KindUpdatePayment          Kind = "payment.update"
	KindDeletePayment          Kind = "payment.delete"
	KindReplaceDataset         Kind = "dataset.replace"
	KindClearDataset           Kind = "dataset.clear"
)

// Action is the closed set of mutations accepted by Store.Dispatch. The
// unexported apply method seals the interface to the variants in this file.
type Action interface {
	Kind() Kind
	apply(m *mutation) Outcome
}

// CreateStudent appends a new student. ID and CreatedAt are assigned by the store.
type CreateStudent struct{ Student domain.Student }

// UpdateStudent replaces the student with the same ID.
type UpdateStudent struct{ Student domain.Student }

// DeleteStudent removes a student with its links, attendance and grades.
type DeleteStudent struct{ ID string }

// CreateGroup appends a new group.
type CreateGroup struct{ Group domain.Group }

// UpdateGroup replaces the group with the same ID.
type UpdateGroup struct{ Group domain.Group }

// DeleteGroup removes a group with its links, sessions and assessments.
type DeleteGroup struct{ ID string }

// AddStudentToGroup links a student to a group. Adding an existing link is a no-op.
type AddStudentToGroup struct{ StudentID, GroupID string }

// RemoveStudentFromGroup deletes the exact link if present.
type RemoveStudentFromGroup struct{ StudentID, GroupID string }

// CreateSession appends a new session.
type CreateSession struct{ Session domain.Session }

// UpdateSession replaces the session with the same ID.
type UpdateSession struct{ Session domain.Session }

// DeleteSession removes a session with its attendance and report.
type DeleteSession struct{ ID string }

// UpsertAttendance records a student's status for a session, keyed by (session, student).
type UpsertAttendance struct {
	SessionID string
	StudentID string
	Status    domain.AttendanceStatus
}

// AttendanceMark is one entry of a MarkAttendance batch.
type AttendanceMark struct {
	StudentID string                  `json:"studentId"`
	Status    domain.AttendanceStatus `json:"status"`
}

// MarkAttendance upserts several students' statuses for one session at once.
type MarkAttendance struct {
	SessionID string
	Marks     []AttendanceMark
}

// UpsertSessionReport records the report of a session, keyed by session.
type UpsertSessionReport struct {
	SessionID string
	Summary   string
	Homework  string
	Notes     string
}

// UpdateSessionReport replaces the report with the same ID.
type UpdateSessionReport struct{ Report domain.SessionReport }

// DeleteSessionReport removes a report by ID.
type DeleteSessionReport struct{ ID string }

// CreateAssessment appends a new assessment.
type CreateAssessment struct{ Assessment domain.Assessment }

// UpdateAssessment replaces the assessment with the same ID.
type UpdateAssessment struct{ Assessment domain.Assessment }

// DeleteAssessment removes an assessment with its grades.
type DeleteAssessment struct{ ID string }

// UpsertGrade records a student's score on an assessment, keyed by (assessment, student).
type UpsertGrade struct {
	AssessmentID string
	StudentID    string
	Score        float64
	Comments     string
}

// CreatePayment appends a new payment record.
type CreatePayment struct{ Payment domain.PaymentRecord }

// UpdatePayment replaces the payment record with the same ID.
type UpdatePayment struct{ Payment domain.PaymentRecord }

// DeletePayment removes a payment record by ID.
type DeletePayment struct{ ID string }

// ReplaceDataset swaps the whole dataset, as done by import.
type ReplaceDataset struct{ Dataset domain.Dataset }

// ClearDataset empties every collection.
type ClearDataset struct{}

func (CreateStudent) Kind() Kind          { return KindCreateStudent }
func (UpdateStudent) Kind() Kind          { return KindUpdateStudent }
func (DeleteStudent) Kind() Kind          { return KindDeleteStudent }
func (CreateGroup) Kind() Kind            { return KindCreateGroup }
func (UpdateGroup) Kind() Kind            { return KindUpdateGroup }
func (DeleteGroup) Kind() Kind            { return KindDeleteGroup }
func (AddStudentToGroup) Kind() Kind      { return KindAddStudentToGroup }
func (RemoveStudentFromGroup) Kind() Kind { return KindRemoveStudentFromGroup }
func (CreateSession) Kind() Kind          { return KindCreateSession }
func (UpdateSession) Kind() Kind          { return KindUpdateSession }
func (DeleteSession) Kind() Kind          { return KindDeleteSession }
func (UpsertAttendance) Kind() Kind       { return KindUpsertAttendance }
func (MarkAttendance) Kind() Kind         { return KindMarkAttendance }
func (UpsertSessionReport) Kind() Kind    { return KindUpsertSessionReport }
func (UpdateSessionReport) Kind() Kind    { return KindUpdateSessionReport }
func (DeleteSessionReport) Kind() Kind    { return KindDeleteSessionReport }
func (CreateAssessment) Kind() Kind       { return KindCreateAssessment }
func (UpdateAssessment) Kind() Kind       { return KindUpdateAssessment }
func (DeleteAssessment) Kind() Kind       { return KindDeleteAssessment }
func (UpsertGrade) Kind() Kind            { return KindUpsertGrade }
func (CreatePayment) Kind() Kind          { return KindCreatePayment }
func (UpdatePayment) Kind() Kind          { return KindUpdatePayment }
func (DeletePayment) Kind() Kind          { return KindDeletePayment }
func (ReplaceDataset) Kind() Kind         { return KindReplaceDataset }
func (ClearDataset) Kind() Kind           { return KindClearDataset }

func (a CreateStudent) apply(m *mutation) Outcome          { return createStudent(m, a) }
func (a UpdateStudent) apply(m *mutation) Outcome          { return updateStudent(m, a) }
func (a DeleteStudent) apply(m *mutation) Outcome          { return deleteStudent(m, a) }
func (a CreateGroup) apply(m *mutation) Outcome            { return createGroup(m, a) }
func (a UpdateGroup) apply(m *mutation) Outcome            { return updateGroup(m, a) }
func (a DeleteGroup) apply(m *mutation) Outcome            { return deleteGroup(m, a) }
func (a AddStudentToGroup) apply(m *mutation) Outcome      { return addStudentToGroup(m, a) }
func (a RemoveStudentFromGroup) apply(m *mutation) Outcome { return removeStudentFromGroup(m, a) }
func (a CreateSession) apply(m *mutation) Outcome          { return createSession(m, a) }
func (a UpdateSession) apply(m *mutation) Outcome          { return updateSession(m, a) }
func (a DeleteSession) apply(m *mutation) Outcome          { return deleteSession(m, a) }
func (a UpsertAttendance) apply(m *mutation) Outcome       { return upsertAttendance(m, a) }
func (a MarkAttendance) apply(m *mutation) Outcome         { return markAttendance(m, a) }
func (a UpsertSessionReport) apply(m *mutation) Outcome    { return upsertSessionReport(m, a) }
func (a UpdateSessionReport) apply(m *mutation) Outcome    { return updateSessionReport(m, a) }
func (a DeleteSessionReport) apply(m *mutation) Outcome    { return deleteSessionReport(m, a) }
func (a CreateAssessment) apply(m *mutation) Outcome       { return createAssessment(m, a) }
func (a UpdateAssessment) apply(m *mutation) Outcome       { return updateAssessment(m, a) }
func (a DeleteAssessment) apply(m *mutation) Outcome       { return deleteAssessment(m, a) }
func (a UpsertGrade) apply(m *mutation) Outcome            { return upsertGrade(m, a) }
func (a CreatePayment) apply(m *mutation) Outcome          { return createPayment(m, a) }
func (a UpdatePayment) apply(m *mutation) Outcome          { return updatePayment(m, a) }
func (a DeletePayment) apply(m *mutation) Outcome          { return deletePayment(m, a) }
func (a ReplaceDataset) apply(m *mutation) Outcome         { return replaceDataset(m, a) }
func (a ClearDataset) apply(m *mutation) Outcome           { return clearDataset(m, a) }
