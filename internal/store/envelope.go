package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"classledger/internal/snapshot"
	"classledger/pkg/domain"
)

// Envelope is the wire form of an action: its kind plus a JSON payload.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type idPayload struct {
	ID string `json:"id"`
}

type linkPayload struct {
	StudentID string `json:"studentId"`
	GroupID   string `json:"groupId"`
}

type attendancePayload struct {
	SessionID string                  `json:"sessionId"`
	StudentID string                  `json:"studentId"`
	Status    domain.AttendanceStatus `json:"status"`
}

type markPayload struct {
	SessionID string           `json:"sessionId"`
	Marks     []AttendanceMark `json:"marks"`
}

type reportPayload struct {
	SessionID string `json:"sessionId"`
	Summary   string `json:"summary"`
	Homework  string `json:"homework"`
	Notes     string `json:"notes"`
}

type gradePayload struct {
	AssessmentID string  `json:"assessmentId"`
	StudentID    string  `json:"studentId"`
	Score        float64 `json:"score"`
	Comments     string  `json:"comments"`
}

// Decode converts an envelope into its typed action.
func (e Envelope) Decode() (Action, error) {
	payload := e.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	decode := func(v any) error {
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return nil
	}
	switch e.Kind {
	case KindCreateStudent, KindUpdateStudent:
		var v domain.Student
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindCreateStudent {
			return CreateStudent{Student: v}, nil
		}
		return UpdateStudent{Student: v}, nil
	case KindCreateGroup, KindUpdateGroup:
		var v domain.Group
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindCreateGroup {
			return CreateGroup{Group: v}, nil
		}
		return UpdateGroup{Group: v}, nil
	case KindCreateSession, KindUpdateSession:
		var v domain.Session
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindCreateSession {
			return CreateSession{Session: v}, nil
		}
		return UpdateSession{Session: v}, nil
	case KindCreateAssessment, KindUpdateAssessment:
		var v domain.Assessment
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindCreateAssessment {
			return CreateAssessment{Assessment: v}, nil
		}
		return UpdateAssessment{Assessment: v}, nil
	case KindCreatePayment, KindUpdatePayment:
		var v domain.PaymentRecord
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindCreatePayment {
			return CreatePayment{Payment: v}, nil
		}
		return UpdatePayment{Payment: v}, nil
	case KindUpdateSessionReport:
		var v domain.SessionReport
		if err := decode(&v); err != nil {
			return nil, err
		}
		return UpdateSessionReport{Report: v}, nil
	case KindDeleteStudent, KindDeleteGroup, KindDeleteSession, KindDeleteSessionReport, KindDeleteAssessment, KindDeletePayment:
		var v idPayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		return deleteAction(e.Kind, v.ID), nil
	case KindAddStudentToGroup, KindRemoveStudentFromGroup:
		var v linkPayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		if e.Kind == KindAddStudentToGroup {
			return AddStudentToGroup{StudentID: v.StudentID, GroupID: v.GroupID}, nil
		}
		return RemoveStudentFromGroup{StudentID: v.StudentID, GroupID: v.GroupID}, nil
	case KindUpsertAttendance:
		var v attendancePayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		return UpsertAttendance{SessionID: v.SessionID, StudentID: v.StudentID, Status: v.Status}, nil
	case KindMarkAttendance:
		var v markPayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		return MarkAttendance{SessionID: v.SessionID, Marks: v.Marks}, nil
	case KindUpsertSessionReport:
		var v reportPayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		return UpsertSessionReport{SessionID: v.SessionID, Summary: v.Summary, Homework: v.Homework, Notes: v.Notes}, nil
	case KindUpsertGrade:
		var v gradePayload
		if err := decode(&v); err != nil {
			return nil, err
		}
		return UpsertGrade{AssessmentID: v.AssessmentID, StudentID: v.StudentID, Score: v.Score, Comments: v.Comments}, nil
	case KindReplaceDataset:
		d, ok := snapshot.Decode(payload)
		if !ok {
			return nil, fmt.Errorf("decode %s payload: not a snapshot object", e.Kind)
		}
		return ReplaceDataset{Dataset: d}, nil
	case KindClearDataset:
		return ClearDataset{}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", e.Kind)
	}
}

func deleteAction(kind Kind, id string) Action {
	switch kind {
	case KindDeleteStudent:
		return DeleteStudent{ID: id}
	case KindDeleteGroup:
		return DeleteGroup{ID: id}
	case KindDeleteSession:
		return DeleteSession{ID: id}
	case KindDeleteSessionReport:
		return DeleteSessionReport{ID: id}
	case KindDeleteAssessment:
		return DeleteAssessment{ID: id}
	default:
		return DeletePayment{ID: id}
	}
}
