package store

import "classledger/pkg/domain"

const keySep = "\x1f"

func pairKey(a, b string) string { return a + keySep + b }

// naturalKeys maps composite natural keys to positions in the current
// dataset's slices. When an imported dataset holds duplicate keys the first
// record wins, matching what the query layer returns. Positions shift when records are removed, so any handler
// that removes from an indexed collection marks the index stale and the
// store rebuilds it before the next action.
type naturalKeys struct {
	attendance map[string]int
	grades     map[string]int
	reports    map[string]int
	links      map[string]struct{}
	stale      bool
}

func buildNaturalKeys(d domain.Dataset) *naturalKeys {
	idx := &naturalKeys{}
	idx.rebuild(d)
	return idx
}

func (idx *naturalKeys) rebuild(d domain.Dataset) {
	idx.attendance = make(map[string]int, len(d.AttendanceRecords))
	for i, r := range d.AttendanceRecords {
		keepFirst(idx.attendance, pairKey(r.SessionID, r.StudentID), i)
	}
	idx.grades = make(map[string]int, len(d.Grades))
	for i, g := range d.Grades {
		keepFirst(idx.grades, pairKey(g.AssessmentID, g.StudentID), i)
	}
	idx.reports = make(map[string]int, len(d.SessionReports))
	for i, r := range d.SessionReports {
		keepFirst(idx.reports, r.SessionID, i)
	}
	idx.links = make(map[string]struct{}, len(d.StudentGroups))
	for _, l := range d.StudentGroups {
		idx.links[pairKey(l.StudentID, l.GroupID)] = struct{}{}
	}
	idx.stale = false
}

func keepFirst(m map[string]int, key string, i int) {
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

// Copy-on-write slice helpers. None of them writes into the backing array of
// the slice it is given, so slices already published in a snapshot stay intact.

func appended[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

func replacedAt[T any](s []T, i int, v T) []T {
	out := make([]T, len(s))
	copy(out, s)
	out[i] = v
	return out
}

func removedWhere[T any](s []T, drop func(T) bool) ([]T, []T) {
	var removed []T
	for _, v := range s {
		if drop(v) {
			removed = append(removed, v)
		}
	}
	if len(removed) == 0 {
		return s, nil
	}
	out := make([]T, 0, len(s)-len(removed))
	for _, v := range s {
		if !drop(v) {
			out = append(out, v)
		}
	}
	return out, removed
}

func indexWhere[T any](s []T, match func(T) bool) int {
	for i, v := range s {
		if match(v) {
			return i
		}
	}
	return -1
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
