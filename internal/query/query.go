// Package query holds read-only views over a dataset snapshot. Every function
// is pure: it never modifies its input and returns freshly allocated slices.
// Joins drop records whose foreign keys no longer resolve.
package query

import (
	"sort"

	"classledger/pkg/domain"
)

// GradeEntry is a grade joined with its assessment.
type GradeEntry struct {
	Grade      domain.Grade      `json:"grade"`
	Assessment domain.Assessment `json:"assessment"`
}

// AttendanceEntry is an attendance record joined with its session and the session's group.
type AttendanceEntry struct {
	Record  domain.AttendanceRecord `json:"record"`
	Session domain.Session          `json:"session"`
	Group   domain.Group            `json:"group"`
}

// SessionEntry is a session joined with its group.
type SessionEntry struct {
	Session domain.Session `json:"session"`
	Group   domain.Group   `json:"group"`
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func find[T any](in []T, match func(T) bool) (T, bool) {
	for _, v := range in {
		if match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// StudentByID looks up a student.
func StudentByID(d domain.Dataset, id string) (domain.Student, bool) {
	return find(d.Students, func(s domain.Student) bool { return s.ID == id })
}

// GroupByID looks up a group.
func GroupByID(d domain.Dataset, id string) (domain.Group, bool) {
	return find(d.Groups, func(g domain.Group) bool { return g.ID == id })
}

// SessionByID looks up a session.
func SessionByID(d domain.Dataset, id string) (domain.Session, bool) {
	return find(d.Sessions, func(s domain.Session) bool { return s.ID == id })
}

// AssessmentByID looks up an assessment.
func AssessmentByID(d domain.Dataset, id string) (domain.Assessment, bool) {
	return find(d.Assessments, func(a domain.Assessment) bool { return a.ID == id })
}

// PaymentByID looks up a payment record.
func PaymentByID(d domain.Dataset, id string) (domain.PaymentRecord, bool) {
	return find(d.PaymentRecords, func(p domain.PaymentRecord) bool { return p.ID == id })
}

// StudentsInGroup returns the students linked to groupID in student insertion order.
func StudentsInGroup(d domain.Dataset, groupID string) []domain.Student {
	members := make(map[string]struct{})
	for _, l := range d.StudentGroups {
		if l.GroupID == groupID {
			members[l.StudentID] = struct{}{}
		}
	}
	return filter(d.Students, func(s domain.Student) bool {
		_, ok := members[s.ID]
		return ok
	})
}

// GroupsForStudent returns the groups studentID is linked to in group insertion order.
func GroupsForStudent(d domain.Dataset, studentID string) []domain.Group {
	groups := make(map[string]struct{})
	for _, l := range d.StudentGroups {
		if l.StudentID == studentID {
			groups[l.GroupID] = struct{}{}
		}
	}
	return filter(d.Groups, func(g domain.Group) bool {
		_, ok := groups[g.ID]
		return ok
	})
}

// SessionsForGroup returns the group's sessions, most recent first.
func SessionsForGroup(d domain.Dataset, groupID string) []domain.Session {
	out := filter(d.Sessions, func(s domain.Session) bool { return s.GroupID == groupID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	return out
}

// AttendanceForSession returns the session's attendance records in insertion order.
func AttendanceForSession(d domain.Dataset, sessionID string) []domain.AttendanceRecord {
	return filter(d.AttendanceRecords, func(r domain.AttendanceRecord) bool { return r.SessionID == sessionID })
}

// ReportForSession returns the session's report, if one was written.
func ReportForSession(d domain.Dataset, sessionID string) (domain.SessionReport, bool) {
	return find(d.SessionReports, func(r domain.SessionReport) bool { return r.SessionID == sessionID })
}

// AssessmentsForGroup returns the group's assessments, most recent first.
func AssessmentsForGroup(d domain.Dataset, groupID string) []domain.Assessment {
	out := filter(d.Assessments, func(a domain.Assessment) bool { return a.GroupID == groupID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// GradesForAssessment returns the assessment's grades in insertion order.
func GradesForAssessment(d domain.Dataset, assessmentID string) []domain.Grade {
	return filter(d.Grades, func(g domain.Grade) bool { return g.AssessmentID == assessmentID })
}

// GradesForStudent joins the student's grades with their assessments. Grades
// whose assessment no longer exists are dropped.
func GradesForStudent(d domain.Dataset, studentID string) []GradeEntry {
	assessments := make(map[string]domain.Assessment, len(d.Assessments))
	for _, a := range d.Assessments {
		assessments[a.ID] = a
	}
	out := make([]GradeEntry, 0)
	for _, g := range d.Grades {
		if g.StudentID != studentID {
			continue
		}
		a, ok := assessments[g.AssessmentID]
		if !ok {
			continue
		}
		out = append(out, GradeEntry{Grade: g, Assessment: a})
	}
	return out
}

// AttendanceForStudent joins the student's attendance with session and group.
// Records whose session or group no longer exists are dropped.
func AttendanceForStudent(d domain.Dataset, studentID string) []AttendanceEntry {
	sessions := indexSessions(d)
	groups := indexGroups(d)
	out := make([]AttendanceEntry, 0)
	for _, r := range d.AttendanceRecords {
		if r.StudentID != studentID {
			continue
		}
		s, ok := sessions[r.SessionID]
		if !ok {
			continue
		}
		g, ok := groups[s.GroupID]
		if !ok {
			continue
		}
		out = append(out, AttendanceEntry{Record: r, Session: s, Group: g})
	}
	return out
}

// PaymentsForStudentInGroup returns matching payment records, latest month first.
// Months are zero-padded "YYYY-MM" so string order is chronological.
func PaymentsForStudentInGroup(d domain.Dataset, studentID, groupID string) []domain.PaymentRecord {
	out := filter(d.PaymentRecords, func(p domain.PaymentRecord) bool {
		return p.StudentID == studentID && p.GroupID == groupID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

// PaymentStatusForStudentInMonth returns the payment record for the exact
// (student, group, month) triple. No default is synthesized when absent.
func PaymentStatusForStudentInMonth(d domain.Dataset, studentID, groupID, month string) (domain.PaymentRecord, bool) {
	return find(d.PaymentRecords, func(p domain.PaymentRecord) bool {
		return p.StudentID == studentID && p.GroupID == groupID && p.Month == month
	})
}

func indexSessions(d domain.Dataset) map[string]domain.Session {
	m := make(map[string]domain.Session, len(d.Sessions))
	for _, s := range d.Sessions {
		m[s.ID] = s
	}
	return m
}

func indexGroups(d domain.Dataset) map[string]domain.Group {
	m := make(map[string]domain.Group, len(d.Groups))
	for _, g := range d.Groups {
		m[g.ID] = g
	}
	return m
}
