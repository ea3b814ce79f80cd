package query

import (
	"sort"
	"time"

	"classledger/pkg/domain"
)

// AttendanceSummary counts a student's resolvable attendance records.
type AttendanceSummary struct {
	StudentID string `json:"studentId"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Excused   int    `json:"excused"`
	Total     int    `json:"total"`
	// Rate is present / (present + absent); excused sessions are not counted against it.
	Rate float64 `json:"rate"`
}

// AttendanceSummaryForStudent aggregates AttendanceForStudent.
func AttendanceSummaryForStudent(d domain.Dataset, studentID string) AttendanceSummary {
	sum := AttendanceSummary{StudentID: studentID}
	for _, e := range AttendanceForStudent(d, studentID) {
		sum.Total++
		switch e.Record.Status {
		case domain.AttendancePresent:
			sum.Present++
		case domain.AttendanceAbsent:
			sum.Absent++
		case domain.AttendanceExcused:
			sum.Excused++
		}
	}
	if counted := sum.Present + sum.Absent; counted > 0 {
		sum.Rate = float64(sum.Present) / float64(counted)
	}
	return sum
}

// GradebookRow holds one student's grades, aligned with Gradebook.Assessments.
// A nil cell means no grade was recorded.
type GradebookRow struct {
	Student domain.Student  `json:"student"`
	Grades  []*domain.Grade `json:"grades"`
}

// Gradebook is the grade matrix of a group.
type Gradebook struct {
	GroupID     string              `json:"groupId"`
	Assessments []domain.Assessment `json:"assessments"`
	Rows        []GradebookRow      `json:"rows"`
}

// GroupGradebook builds the matrix of the group's students against its
// assessments (most recent first).
func GroupGradebook(d domain.Dataset, groupID string) Gradebook {
	book := Gradebook{
		GroupID:     groupID,
		Assessments: AssessmentsForGroup(d, groupID),
		Rows:        make([]GradebookRow, 0),
	}
	col := make(map[string]int, len(book.Assessments))
	for i, a := range book.Assessments {
		col[a.ID] = i
	}
	for _, s := range StudentsInGroup(d, groupID) {
		book.Rows = append(book.Rows, GradebookRow{Student: s, Grades: make([]*domain.Grade, len(book.Assessments))})
	}
	row := make(map[string]int, len(book.Rows))
	for i, r := range book.Rows {
		row[r.Student.ID] = i
	}
	for _, g := range d.Grades {
		c, okC := col[g.AssessmentID]
		r, okR := row[g.StudentID]
		if !okC || !okR {
			continue
		}
		g := g
		book.Rows[r].Grades[c] = &g
	}
	return book
}

// StudentAverage returns the mean percentage (score / maxScore * 100) over
// the student's resolvable grades. The bool is false when there are none.
func StudentAverage(d domain.Dataset, studentID string) (float64, bool) {
	var total float64
	var n int
	for _, e := range GradesForStudent(d, studentID) {
		if e.Assessment.MaxScore <= 0 {
			continue
		}
		total += e.Grade.Score / e.Assessment.MaxScore * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// OutstandingPayments returns the month's payment records that are unpaid or partial.
func OutstandingPayments(d domain.Dataset, month string) []domain.PaymentRecord {
	return filter(d.PaymentRecords, func(p domain.PaymentRecord) bool {
		return p.Month == month && (p.Status == domain.PaymentUnpaid || p.Status == domain.PaymentPartial)
	})
}

// UpcomingSessions returns sessions at or after now, soonest first, joined
// with their group. limit <= 0 returns all of them.
func UpcomingSessions(d domain.Dataset, now time.Time, limit int) []SessionEntry {
	groups := indexGroups(d)
	out := make([]SessionEntry, 0)
	for _, s := range d.Sessions {
		if s.DateTime.Before(now) {
			continue
		}
		g, ok := groups[s.GroupID]
		if !ok {
			continue
		}
		out = append(out, SessionEntry{Session: s, Group: g})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Session.DateTime.Before(out[j].Session.DateTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Counts reports collection sizes keyed by snapshot field name.
func Counts(d domain.Dataset) map[string]int { return d.Counts() }
