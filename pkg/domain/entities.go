// Package domain defines the persistent entities, value types, and snapshot
// container used by classledger.
package domain

import "time"

// EntityType identifies the type of record stored in the dataset.
type EntityType string

// Supported entity type identifiers used in Change records and outcomes.
const (
	// EntityStudent identifies a student record.
	EntityStudent EntityType = "student"
	// EntityGroup identifies a class group record.
	EntityGroup EntityType = "group"
	// EntityStudentGroup identifies a student/group membership link.
	EntityStudentGroup EntityType = "student_group"
	// EntitySession identifies a scheduled session of a group.
	EntitySession EntityType = "session"
	// EntityAttendance identifies an attendance record.
	EntityAttendance EntityType = "attendance_record"
	// EntitySessionReport identifies a session-level report.
	EntitySessionReport EntityType = "session_report"
	// EntityAssessment identifies an assessment of a group.
	EntityAssessment EntityType = "assessment"
	// EntityGrade identifies a grade awarded for an assessment.
	EntityGrade EntityType = "grade"
	// EntityPayment identifies a monthly payment record.
	EntityPayment EntityType = "payment_record"
)

// AttendanceStatus enumerates the recorded presence of a student at a session.
type AttendanceStatus string

// Canonical attendance statuses.
const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceExcused AttendanceStatus = "excused"
)

// PaymentStatus enumerates the settlement state of a monthly payment.
type PaymentStatus string

// Canonical payment statuses.
const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentWaived  PaymentStatus = "waived"
)

// MonthLayout is the zero-padded month key format used by payment records.
const MonthLayout = "2006-01"

// Student is an enrolled learner.
type Student struct {
	ID          string    `json:"id"`
	FullName    string    `json:"fullName" validate:"required"`
	ContactInfo string    `json:"contactInfo,omitempty"`
	ParentPhone string    `json:"parentPhone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Group is a class group students can belong to.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StudentGroup links a student to a group. The pair is its identity.
type StudentGroup struct {
	StudentID string `json:"studentId" validate:"required"`
	GroupID   string `json:"groupId" validate:"required"`
}

// Session is a scheduled meeting of a group.
type Session struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId" validate:"required"`
	DateTime  time.Time `json:"dateTime" validate:"required"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttendanceRecord captures one student's presence at one session.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId" validate:"required"`
	StudentID string           `json:"studentId" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=present absent excused"`
}

// SessionReport holds the instructor's notes for a session. At most one exists per session.
type SessionReport struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId" validate:"required"`
	Summary   string    `json:"summary" validate:"required"`
	Homework  string    `json:"homework,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Assessment is a graded piece of work set for a group.
type Assessment struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	MaxScore  float64   `json:"maxScore" validate:"gt=0"`
	Date      time.Time `json:"date" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Grade is a student's score on an assessment.
type Grade struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessmentId" validate:"required"`
	StudentID    string  `json:"studentId" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0"`
	Comments     string  `json:"comments,omitempty"`
}

// PaymentRecord tracks a student's fee for one group and month.
type PaymentRecord struct {
	ID        string        `json:"id"`
	StudentID string        `json:"studentId" validate:"required"`
	GroupID   string        `json:"groupId" validate:"required"`
	Month     string        `json:"month" validate:"required,datetime=2006-01"`
	Status    PaymentStatus `json:"status" validate:"required,oneof=paid unpaid partial waived"`
	Amount    float64       `json:"amount" validate:"gte=0"`
	DueDate   time.Time     `json:"dueDate"`
	PaidDate  *time.Time    `json:"paidDate,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Change describes one record-level modification produced by an action.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported modifications captured in change records.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was deleted.
	ActionDelete Action = "delete"
	// ActionReplace indicates the whole dataset was replaced.
	ActionReplace Action = "replace"
)
