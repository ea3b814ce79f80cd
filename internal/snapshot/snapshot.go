// Package snapshot reads and writes the persisted dataset format: one JSON
// object holding every entity collection as an array.
package snapshot

import (
	"bytes"
	"encoding/json"

	"classledger/pkg/domain"
)

// Report describes how a raw snapshot was coerced into a Dataset.
type Report struct {
	// Object is false when the input was not a JSON object; the dataset is then empty.
	Object bool
	// Reset lists fields that were present but not arrays and so became empty.
	Reset []string
	// Missing lists fields absent from the object.
	Missing []string
	// Dropped counts array elements per field that could not be decoded.
	Dropped map[string]int
}

// Clean reports whether the input decoded without any coercion.
func (r Report) Clean() bool {
	return r.Object && len(r.Reset) == 0 && len(r.Missing) == 0 && len(r.Dropped) == 0
}

// Decode parses a persisted snapshot. It returns false when raw is not a JSON
// object, in which case the dataset is empty. Otherwise every collection field
// is coerced independently: a missing or non-array field becomes an empty
// collection and unknown fields are ignored.
func Decode(raw []byte) (domain.Dataset, bool) {
	d, rep := Inspect(raw)
	return d, rep.Object
}

// Inspect is Decode with a report of the coercions applied.
func Inspect(raw []byte) (domain.Dataset, Report) {
	out := domain.EmptyDataset()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, Report{}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return out, Report{}
	}
	rep := Report{Object: true}
	decodeField(fields, domain.FieldStudents, &out.Students, &rep)
	decodeField(fields, domain.FieldGroups, &out.Groups, &rep)
	decodeField(fields, domain.FieldStudentGroups, &out.StudentGroups, &rep)
	decodeField(fields, domain.FieldSessions, &out.Sessions, &rep)
	decodeField(fields, domain.FieldAttendanceRecords, &out.AttendanceRecords, &rep)
	decodeField(fields, domain.FieldSessionReports, &out.SessionReports, &rep)
	decodeField(fields, domain.FieldAssessments, &out.Assessments, &rep)
	decodeField(fields, domain.FieldGrades, &out.Grades, &rep)
	decodeField(fields, domain.FieldPaymentRecords, &out.PaymentRecords, &rep)
	return out, rep
}

// decodeField fills dst from fields[name]. Elements that fail to decode are
// skipped so one bad record does not discard its whole collection.
func decodeField[T any](fields map[string]json.RawMessage, name string, dst *[]T, rep *Report) {
	raw, ok := fields[name]
	if !ok {
		rep.Missing = append(rep.Missing, name)
		return
	}
	var elems []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' || json.Unmarshal(trimmed, &elems) != nil {
		rep.Reset = append(rep.Reset, name)
		return
	}
	out := make([]T, 0, len(elems))
	for _, e := range elems {
		var v T
		if bytes.TrimSpace(e)[0] != '{' || json.Unmarshal(e, &v) != nil {
			if rep.Dropped == nil {
				rep.Dropped = make(map[string]int)
			}
			rep.Dropped[name]++
			continue
		}
		out = append(out, v)
	}
	*dst = out
}

// Encode serializes a dataset in the persisted snapshot format.
func Encode(d domain.Dataset) ([]byte, error) {
	return json.Marshal(d.Normalize())
}
