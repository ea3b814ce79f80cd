package domain

// Dataset is the complete set of entity collections at one point in time.
// A Dataset handed out by the store is a snapshot: its slices must be treated
// as read-only by every consumer.
type Dataset struct {
	Students          []Student          `json:"students"`
	Groups            []Group            `json:"groups"`
	StudentGroups     []StudentGroup     `json:"studentGroups"`
	Sessions          []Session          `json:"sessions"`
	AttendanceRecords []AttendanceRecord `json:"attendanceRecords"`
	SessionReports    []SessionReport    `json:"sessionReports"`
	Assessments       []Assessment       `json:"assessments"`
	Grades            []Grade            `json:"grades"`
	PaymentRecords    []PaymentRecord    `json:"paymentRecords"`
}

// Collection names as they appear in the persisted snapshot object.
const (
	FieldStudents          = "students"
	FieldGroups            = "groups"
	FieldStudentGroups     = "studentGroups"
	FieldSessions          = "sessions"
	FieldAttendanceRecords = "attendanceRecords"
	FieldSessionReports    = "sessionReports"
	FieldAssessments       = "assessments"
	FieldGrades            = "grades"
	FieldPaymentRecords    = "paymentRecords"
)

// DatasetFields lists every collection field of the snapshot format in a stable order.
var DatasetFields = []string{
	FieldStudents,
	FieldGroups,
	FieldStudentGroups,
	FieldSessions,
	FieldAttendanceRecords,
	FieldSessionReports,
	FieldAssessments,
	FieldGrades,
	FieldPaymentRecords,
}

// EmptyDataset returns a dataset whose collections are all empty, non-nil slices.
func EmptyDataset() Dataset {
	return Dataset{
		Students:          []Student{},
		Groups:            []Group{},
		StudentGroups:     []StudentGroup{},
		Sessions:          []Session{},
		AttendanceRecords: []AttendanceRecord{},
		SessionReports:    []SessionReport{},
		Assessments:       []Assessment{},
		Grades:            []Grade{},
		PaymentRecords:    []PaymentRecord{},
	}
}

// Normalize replaces nil collections with empty slices so the dataset always
// serializes every field as an array.
func (d Dataset) Normalize() Dataset {
	if d.Students == nil {
		d.Students = []Student{}
	}
	if d.Groups == nil {
		d.Groups = []Group{}
	}
	if d.StudentGroups == nil {
		d.StudentGroups = []StudentGroup{}
	}
	if d.Sessions == nil {
		d.Sessions = []Session{}
	}
	if d.AttendanceRecords == nil {
		d.AttendanceRecords = []AttendanceRecord{}
	}
	if d.SessionReports == nil {
		d.SessionReports = []SessionReport{}
	}
	if d.Assessments == nil {
		d.Assessments = []Assessment{}
	}
	if d.Grades == nil {
		d.Grades = []Grade{}
	}
	if d.PaymentRecords == nil {
		d.PaymentRecords = []PaymentRecord{}
	}
	return d
}

// Clone returns a deep copy of the dataset so callers may modify it freely.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Students:          append([]Student{}, d.Students...),
		Groups:            append([]Group{}, d.Groups...),
		StudentGroups:     append([]StudentGroup{}, d.StudentGroups...),
		Sessions:          append([]Session{}, d.Sessions...),
		AttendanceRecords: append([]AttendanceRecord{}, d.AttendanceRecords...),
		SessionReports:    append([]SessionReport{}, d.SessionReports...),
		Assessments:       append([]Assessment{}, d.Assessments...),
		Grades:            append([]Grade{}, d.Grades...),
		PaymentRecords:    make([]PaymentRecord, len(d.PaymentRecords)),
	}
	for i, p := range d.PaymentRecords {
		if p.PaidDate != nil {
			t := *p.PaidDate
			p.PaidDate = &t
		}
		out.PaymentRecords[i] = p
	}
	return out
}

// Counts reports the size of every collection keyed by snapshot field name.
func (d Dataset) Counts() map[string]int {
	return map[string]int{
		FieldStudents:          len(d.Students),
		FieldGroups:            len(d.Groups),
		FieldStudentGroups:     len(d.StudentGroups),
		FieldSessions:          len(d.Sessions),
		FieldAttendanceRecords: len(d.AttendanceRecords),
		FieldSessionReports:    len(d.SessionReports),
		FieldAssessments:       len(d.Assessments),
		FieldGrades:            len(d.Grades),
		FieldPaymentRecords:    len(d.PaymentRecords),
	}
}
