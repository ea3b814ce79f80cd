package store

import (
	"time"

	"classledger/pkg/domain"
)

// mutation is the working state of a single dispatched action. Handlers
// replace collection slices wholesale; they never write through a slice they
// were handed.
type mutation struct {
	data     domain.Dataset
	idx      *naturalKeys
	now      time.Time
	newID    func() string
	cascade  CascadeMode
	changes  []domain.Change
	cascaded map[domain.EntityType]int
}

func (m *mutation) record(entity domain.EntityType, action domain.Action, before, after any) {
	m.changes = append(m.changes, domain.Change{Entity: entity, Action: action, Before: before, After: after})
}

func (m *mutation) countCascade(entity domain.EntityType, n int) {
	if n == 0 {
		return
	}
	if m.cascaded == nil {
		m.cascaded = make(map[domain.EntityType]int)
	}
	m.cascaded[entity] += n
}

func (m *mutation) outcome(kind Kind, status Status, entity domain.EntityType, id string) Outcome {
	return Outcome{Kind: kind, Status: status, Entity: entity, ID: id, Cascaded: m.cascaded}
}

func replaceByID[T any](s []T, idOf func(T) string, id string, next func(prev T) T) ([]T, T, T, bool) {
	i := indexWhere(s, func(v T) bool { return idOf(v) == id })
	if i < 0 {
		var zero T
		return s, zero, zero, false
	}
	prev := s[i]
	n := next(prev)
	return replacedAt(s, i, n), prev, n, true
}

func studentID(s domain.Student) string            { return s.ID }
func groupID(g domain.Group) string                { return g.ID }
func sessionID(s domain.Session) string            { return s.ID }
func reportID(r domain.SessionReport) string       { return r.ID }
func assessmentID(a domain.Assessment) string      { return a.ID }
func paymentID(p domain.PaymentRecord) string      { return p.ID }
func sessionIDs(s []domain.Session) []string       { return mapIDs(s, sessionID) }
func assessmentIDs(a []domain.Assessment) []string { return mapIDs(a, assessmentID) }

func inSet(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func mapIDs[T any](s []T, idOf func(T) string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, idOf(v))
	}
	return out
}

// Cascade helpers. Each removes matching dependents, records a delete change
// per removed record and counts it on the outcome.

func (m *mutation) dropLinks(drop func(domain.StudentGroup) bool) {
	var removed []domain.StudentGroup
	m.data.StudentGroups, removed = removedWhere(m.data.StudentGroups, drop)
	for _, l := range removed {
		delete(m.idx.links, pairKey(l.StudentID, l.GroupID))
		m.record(domain.EntityStudentGroup, domain.ActionDelete, l, nil)
	}
	m.countCascade(domain.EntityStudentGroup, len(removed))
}

func (m *mutation) dropSessions(drop func(domain.Session) bool) []domain.Session {
	var removed []domain.Session
	m.data.Sessions, removed = removedWhere(m.data.Sessions, drop)
	for _, s := range removed {
		m.record(domain.EntitySession, domain.ActionDelete, s, nil)
	}
	m.countCascade(domain.EntitySession, len(removed))
	return removed
}

func (m *mutation) dropAttendance(drop func(domain.AttendanceRecord) bool) {
	var removed []domain.AttendanceRecord
	m.data.AttendanceRecords, removed = removedWhere(m.data.AttendanceRecords, drop)
	for _, r := range removed {
		m.record(domain.EntityAttendance, domain.ActionDelete, r, nil)
	}
	if len(removed) > 0 {
		m.idx.stale = true
	}
	m.countCascade(domain.EntityAttendance, len(removed))
}

func (m *mutation) dropReports(drop func(domain.SessionReport) bool) {
	var removed []domain.SessionReport
	m.data.SessionReports, removed = removedWhere(m.data.SessionReports, drop)
	for _, r := range removed {
		m.record(domain.EntitySessionReport, domain.ActionDelete, r, nil)
	}
	if len(removed) > 0 {
		m.idx.stale = true
	}
	m.countCascade(domain.EntitySessionReport, len(removed))
}

func (m *mutation) dropAssessments(drop func(domain.Assessment) bool) []domain.Assessment {
	var removed []domain.Assessment
	m.data.Assessments, removed = removedWhere(m.data.Assessments, drop)
	for _, a := range removed {
		m.record(domain.EntityAssessment, domain.ActionDelete, a, nil)
	}
	m.countCascade(domain.EntityAssessment, len(removed))
	return removed
}

func (m *mutation) dropGrades(drop func(domain.Grade) bool) {
	var removed []domain.Grade
	m.data.Grades, removed = removedWhere(m.data.Grades, drop)
	for _, g := range removed {
		m.record(domain.EntityGrade, domain.ActionDelete, g, nil)
	}
	if len(removed) > 0 {
		m.idx.stale = true
	}
	m.countCascade(domain.EntityGrade, len(removed))
}

// Students ---------------------------------------------------------------

func createStudent(m *mutation, a CreateStudent) Outcome {
	s := a.Student
	s.ID = m.newID()
	s.CreatedAt = m.now
	m.data.Students = appended(m.data.Students, s)
	m.record(domain.EntityStudent, domain.ActionCreate, nil, s)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityStudent, s.ID)
}

func updateStudent(m *mutation, a UpdateStudent) Outcome {
	next, before, after, ok := replaceByID(m.data.Students, studentID, a.Student.ID, func(prev domain.Student) domain.Student {
		s := a.Student
		s.CreatedAt = prev.CreatedAt
		return s
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityStudent, a.Student.ID)
	}
	m.data.Students = next
	m.record(domain.EntityStudent, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntityStudent, after.ID)
}

func deleteStudent(m *mutation, a DeleteStudent) Outcome {
	next, removed := removedWhere(m.data.Students, func(s domain.Student) bool { return s.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityStudent, a.ID)
	}
	m.data.Students = next
	m.record(domain.EntityStudent, domain.ActionDelete, removed[0], nil)
	m.dropLinks(func(l domain.StudentGroup) bool { return l.StudentID == a.ID })
	m.dropAttendance(func(r domain.AttendanceRecord) bool { return r.StudentID == a.ID })
	m.dropGrades(func(g domain.Grade) bool { return g.StudentID == a.ID })
	return m.outcome(a.Kind(), StatusDeleted, domain.EntityStudent, a.ID)
}

// Groups -----------------------------------------------------------------

func createGroup(m *mutation, a CreateGroup) Outcome {
	g := a.Group
	g.ID = m.newID()
	g.CreatedAt = m.now
	m.data.Groups = appended(m.data.Groups, g)
	m.record(domain.EntityGroup, domain.ActionCreate, nil, g)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityGroup, g.ID)
}

func updateGroup(m *mutation, a UpdateGroup) Outcome {
	next, before, after, ok := replaceByID(m.data.Groups, groupID, a.Group.ID, func(prev domain.Group) domain.Group {
		g := a.Group
		g.CreatedAt = prev.CreatedAt
		return g
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityGroup, a.Group.ID)
	}
	m.data.Groups = next
	m.record(domain.EntityGroup, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntityGroup, after.ID)
}

func deleteGroup(m *mutation, a DeleteGroup) Outcome {
	next, removed := removedWhere(m.data.Groups, func(g domain.Group) bool { return g.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityGroup, a.ID)
	}
	m.data.Groups = next
	m.record(domain.EntityGroup, domain.ActionDelete, removed[0], nil)
	m.dropLinks(func(l domain.StudentGroup) bool { return l.GroupID == a.ID })
	sessions := m.dropSessions(func(s domain.Session) bool { return s.GroupID == a.ID })
	assessments := m.dropAssessments(func(x domain.Assessment) bool { return x.GroupID == a.ID })
	if m.cascade == CascadeStrict {
		sids := idSet(sessionIDs(sessions))
		aids := idSet(assessmentIDs(assessments))
		m.dropAttendance(func(r domain.AttendanceRecord) bool { return inSet(sids, r.SessionID) })
		m.dropReports(func(r domain.SessionReport) bool { return inSet(sids, r.SessionID) })
		m.dropGrades(func(g domain.Grade) bool { return inSet(aids, g.AssessmentID) })
	}
	return m.outcome(a.Kind(), StatusDeleted, domain.EntityGroup, a.ID)
}

// Memberships ------------------------------------------------------------

func addStudentToGroup(m *mutation, a AddStudentToGroup) Outcome {
	key := pairKey(a.StudentID, a.GroupID)
	if _, exists := m.idx.links[key]; exists {
		return m.outcome(a.Kind(), StatusUnchanged, domain.EntityStudentGroup, key)
	}
	link := domain.StudentGroup{StudentID: a.StudentID, GroupID: a.GroupID}
	m.data.StudentGroups = appended(m.data.StudentGroups, link)
	m.idx.links[key] = struct{}{}
	m.record(domain.EntityStudentGroup, domain.ActionCreate, nil, link)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityStudentGroup, key)
}

func removeStudentFromGroup(m *mutation, a RemoveStudentFromGroup) Outcome {
	key := pairKey(a.StudentID, a.GroupID)
	if _, exists := m.idx.links[key]; !exists {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityStudentGroup, key)
	}
	var removed []domain.StudentGroup
	m.data.StudentGroups, removed = removedWhere(m.data.StudentGroups, func(l domain.StudentGroup) bool {
		return l.StudentID == a.StudentID && l.GroupID == a.GroupID
	})
	delete(m.idx.links, key)
	for _, l := range removed {
		m.record(domain.EntityStudentGroup, domain.ActionDelete, l, nil)
	}
	return m.outcome(a.Kind(), StatusDeleted, domain.EntityStudentGroup, key)
}

// Sessions ---------------------------------------------------------------

func createSession(m *mutation, a CreateSession) Outcome {
	s := a.Session
	s.ID = m.newID()
	s.CreatedAt = m.now
	m.data.Sessions = appended(m.data.Sessions, s)
	m.record(domain.EntitySession, domain.ActionCreate, nil, s)
	return m.outcome(a.Kind(), StatusCreated, domain.EntitySession, s.ID)
}

func updateSession(m *mutation, a UpdateSession) Outcome {
	next, before, after, ok := replaceByID(m.data.Sessions, sessionID, a.Session.ID, func(prev domain.Session) domain.Session {
		s := a.Session
		s.CreatedAt = prev.CreatedAt
		return s
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntitySession, a.Session.ID)
	}
	m.data.Sessions = next
	m.record(domain.EntitySession, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntitySession, after.ID)
}

func deleteSession(m *mutation, a DeleteSession) Outcome {
	next, removed := removedWhere(m.data.Sessions, func(s domain.Session) bool { return s.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntitySession, a.ID)
	}
	m.data.Sessions = next
	m.record(domain.EntitySession, domain.ActionDelete, removed[0], nil)
	m.dropAttendance(func(r domain.AttendanceRecord) bool { return r.SessionID == a.ID })
	m.dropReports(func(r domain.SessionReport) bool { return r.SessionID == a.ID })
	return m.outcome(a.Kind(), StatusDeleted, domain.EntitySession, a.ID)
}

// Attendance -------------------------------------------------------------

func (m *mutation) putAttendance(sessionID, studentID string, status domain.AttendanceStatus) (string, Status) {
	key := pairKey(sessionID, studentID)
	if i, ok := m.idx.attendance[key]; ok {
		prev := m.data.AttendanceRecords[i]
		next := prev
		next.Status = status
		m.data.AttendanceRecords = replacedAt(m.data.AttendanceRecords, i, next)
		m.record(domain.EntityAttendance, domain.ActionUpdate, prev, next)
		return prev.ID, StatusUpdated
	}
	rec := domain.AttendanceRecord{ID: m.newID(), SessionID: sessionID, StudentID: studentID, Status: status}
	m.idx.attendance[key] = len(m.data.AttendanceRecords)
	m.data.AttendanceRecords = appended(m.data.AttendanceRecords, rec)
	m.record(domain.EntityAttendance, domain.ActionCreate, nil, rec)
	return rec.ID, StatusCreated
}

func upsertAttendance(m *mutation, a UpsertAttendance) Outcome {
	id, status := m.putAttendance(a.SessionID, a.StudentID, a.Status)
	return m.outcome(a.Kind(), status, domain.EntityAttendance, id)
}

func markAttendance(m *mutation, a MarkAttendance) Outcome {
	if len(a.Marks) == 0 {
		return m.outcome(a.Kind(), StatusUnchanged, domain.EntityAttendance, a.SessionID)
	}
	for _, mark := range a.Marks {
		m.putAttendance(a.SessionID, mark.StudentID, mark.Status)
	}
	return m.outcome(a.Kind(), StatusUpdated, domain.EntityAttendance, a.SessionID)
}

// Session reports --------------------------------------------------------

func upsertSessionReport(m *mutation, a UpsertSessionReport) Outcome {
	if i, ok := m.idx.reports[a.SessionID]; ok {
		prev := m.data.SessionReports[i]
		next := prev
		next.Summary, next.Homework, next.Notes = a.Summary, a.Homework, a.Notes
		m.data.SessionReports = replacedAt(m.data.SessionReports, i, next)
		m.record(domain.EntitySessionReport, domain.ActionUpdate, prev, next)
		return m.outcome(a.Kind(), StatusUpdated, domain.EntitySessionReport, prev.ID)
	}
	rep := domain.SessionReport{
		ID:        m.newID(),
		SessionID: a.SessionID,
		Summary:   a.Summary,
		Homework:  a.Homework,
		Notes:     a.Notes,
		CreatedAt: m.now,
	}
	m.idx.reports[a.SessionID] = len(m.data.SessionReports)
	m.data.SessionReports = appended(m.data.SessionReports, rep)
	m.record(domain.EntitySessionReport, domain.ActionCreate, nil, rep)
	return m.outcome(a.Kind(), StatusCreated, domain.EntitySessionReport, rep.ID)
}

func updateSessionReport(m *mutation, a UpdateSessionReport) Outcome {
	// Moving a report onto a session that already has one would break the
	// one-report-per-session key.
	if j, ok := m.idx.reports[a.Report.SessionID]; ok && m.data.SessionReports[j].ID != a.Report.ID {
		if indexWhere(m.data.SessionReports, func(r domain.SessionReport) bool { return r.ID == a.Report.ID }) < 0 {
			return m.outcome(a.Kind(), StatusNotFound, domain.EntitySessionReport, a.Report.ID)
		}
		return m.outcome(a.Kind(), StatusUnchanged, domain.EntitySessionReport, a.Report.ID)
	}
	next, before, after, ok := replaceByID(m.data.SessionReports, reportID, a.Report.ID, func(prev domain.SessionReport) domain.SessionReport {
		r := a.Report
		r.CreatedAt = prev.CreatedAt
		return r
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntitySessionReport, a.Report.ID)
	}
	m.data.SessionReports = next
	if before.SessionID != after.SessionID {
		m.idx.stale = true
	}
	m.record(domain.EntitySessionReport, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntitySessionReport, after.ID)
}

func deleteSessionReport(m *mutation, a DeleteSessionReport) Outcome {
	next, removed := removedWhere(m.data.SessionReports, func(r domain.SessionReport) bool { return r.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntitySessionReport, a.ID)
	}
	m.data.SessionReports = next
	m.idx.stale = true
	m.record(domain.EntitySessionReport, domain.ActionDelete, removed[0], nil)
	return m.outcome(a.Kind(), StatusDeleted, domain.EntitySessionReport, a.ID)
}

// Assessments and grades -------------------------------------------------

func createAssessment(m *mutation, a CreateAssessment) Outcome {
	x := a.Assessment
	x.ID = m.newID()
	x.CreatedAt = m.now
	m.data.Assessments = appended(m.data.Assessments, x)
	m.record(domain.EntityAssessment, domain.ActionCreate, nil, x)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityAssessment, x.ID)
}

func updateAssessment(m *mutation, a UpdateAssessment) Outcome {
	next, before, after, ok := replaceByID(m.data.Assessments, assessmentID, a.Assessment.ID, func(prev domain.Assessment) domain.Assessment {
		x := a.Assessment
		x.CreatedAt = prev.CreatedAt
		return x
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityAssessment, a.Assessment.ID)
	}
	m.data.Assessments = next
	m.record(domain.EntityAssessment, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntityAssessment, after.ID)
}

func deleteAssessment(m *mutation, a DeleteAssessment) Outcome {
	next, removed := removedWhere(m.data.Assessments, func(x domain.Assessment) bool { return x.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityAssessment, a.ID)
	}
	m.data.Assessments = next
	m.record(domain.EntityAssessment, domain.ActionDelete, removed[0], nil)
	m.dropGrades(func(g domain.Grade) bool { return g.AssessmentID == a.ID })
	return m.outcome(a.Kind(), StatusDeleted, domain.EntityAssessment, a.ID)
}

func upsertGrade(m *mutation, a UpsertGrade) Outcome {
	key := pairKey(a.AssessmentID, a.StudentID)
	if i, ok := m.idx.grades[key]; ok {
		prev := m.data.Grades[i]
		next := prev
		next.Score, next.Comments = a.Score, a.Comments
		m.data.Grades = replacedAt(m.data.Grades, i, next)
		m.record(domain.EntityGrade, domain.ActionUpdate, prev, next)
		return m.outcome(a.Kind(), StatusUpdated, domain.EntityGrade, prev.ID)
	}
	g := domain.Grade{ID: m.newID(), AssessmentID: a.AssessmentID, StudentID: a.StudentID, Score: a.Score, Comments: a.Comments}
	m.idx.grades[key] = len(m.data.Grades)
	m.data.Grades = appended(m.data.Grades, g)
	m.record(domain.EntityGrade, domain.ActionCreate, nil, g)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityGrade, g.ID)
}

// Payments ---------------------------------------------------------------

func createPayment(m *mutation, a CreatePayment) Outcome {
	p := a.Payment
	p.ID = m.newID()
	p.CreatedAt = m.now
	m.data.PaymentRecords = appended(m.data.PaymentRecords, p)
	m.record(domain.EntityPayment, domain.ActionCreate, nil, p)
	return m.outcome(a.Kind(), StatusCreated, domain.EntityPayment, p.ID)
}

func updatePayment(m *mutation, a UpdatePayment) Outcome {
	next, before, after, ok := replaceByID(m.data.PaymentRecords, paymentID, a.Payment.ID, func(prev domain.PaymentRecord) domain.PaymentRecord {
		p := a.Payment
		p.CreatedAt = prev.CreatedAt
		return p
	})
	if !ok {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityPayment, a.Payment.ID)
	}
	m.data.PaymentRecords = next
	m.record(domain.EntityPayment, domain.ActionUpdate, before, after)
	return m.outcome(a.Kind(), StatusUpdated, domain.EntityPayment, after.ID)
}

func deletePayment(m *mutation, a DeletePayment) Outcome {
	next, removed := removedWhere(m.data.PaymentRecords, func(p domain.PaymentRecord) bool { return p.ID == a.ID })
	if len(removed) == 0 {
		return m.outcome(a.Kind(), StatusNotFound, domain.EntityPayment, a.ID)
	}
	m.data.PaymentRecords = next
	m.record(domain.EntityPayment, domain.ActionDelete, removed[0], nil)
	return m.outcome(a.Kind(), StatusDeleted, domain.EntityPayment, a.ID)
}

// Whole dataset ----------------------------------------------------------

func replaceDataset(m *mutation, a ReplaceDataset) Outcome {
	m.data = a.Dataset.Clone().Normalize()
	m.idx.stale = true
	m.record("", domain.ActionReplace, nil, nil)
	return m.outcome(a.Kind(), StatusReplaced, "", "")
}

func clearDataset(m *mutation, a ClearDataset) Outcome {
	m.data = domain.EmptyDataset()
	m.idx.stale = true
	m.record("", domain.ActionReplace, nil, nil)
	return m.outcome(a.Kind(), StatusReplaced, "", "")
}
