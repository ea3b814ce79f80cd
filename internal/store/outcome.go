package store

import (
	"fmt"

	"classledger/pkg/domain"
)

// Status summarises what an action did to the dataset.
type Status string

// Outcome statuses.
const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusDeleted   Status = "deleted"
	StatusUnchanged Status = "unchanged"
	StatusNotFound  Status = "not_found"
	StatusReplaced  Status = "replaced"
)

// Outcome is the typed result of a dispatched action. Dispatch never fails;
// an update or delete on a missing id reports StatusNotFound and leaves the
// dataset as it was.
type Outcome struct {
	Kind     Kind
	Status   Status
	Entity   domain.EntityType
	ID       string
	Cascaded map[domain.EntityType]int
}

// Changed reports whether the action altered the dataset.
func (o Outcome) Changed() bool {
	return o.Status != StatusUnchanged && o.Status != StatusNotFound
}

func (o Outcome) String() string {
	if o.ID == "" {
		return fmt.Sprintf("%s: %s", o.Kind, o.Status)
	}
	return fmt.Sprintf("%s %s: %s", o.Kind, o.ID, o.Status)
}

// CascadeMode selects how far a group delete reaches.
type CascadeMode string

const (
	// CascadeLegacyPartial removes a group's links, sessions and assessments
	// but keeps the attendance, reports and grades that hung off them.
	CascadeLegacyPartial CascadeMode = "legacy-partial"
	// CascadeStrict also removes the dependents of the removed sessions and assessments.
	CascadeStrict CascadeMode = "strict"
)

// ParseCascadeMode converts a configuration value into a CascadeMode.
// The empty string selects CascadeLegacyPartial.
func ParseCascadeMode(v string) (CascadeMode, error) {
	switch CascadeMode(v) {
	case "", CascadeLegacyPartial:
		return CascadeLegacyPartial, nil
	case CascadeStrict:
		return CascadeStrict, nil
	default:
		return "", fmt.Errorf("unknown cascade mode %q", v)
	}
}
