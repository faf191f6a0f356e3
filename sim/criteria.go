package sim

import (
	"fmt"
	"slices"
	"strings"
)

// Criterion names one evaluation dimension a candidate is rated on.
type Criterion string

// DefaultCriteria is the built-in criteria list. These entries are always
// present and cannot be removed from a CriteriaSet.
var DefaultCriteria = []Criterion{"Personality", "Interests", "Appearance"}

// CriteriaSet is an ordered set of criteria. The first len(defaults) entries
// are fixed; entries added later may be removed again.
//
// Thread-safety: NOT thread-safe.
type CriteriaSet struct {
	names []Criterion
	fixed int
}

// NewCriteriaSet creates a set whose fixed entries are the given defaults.
// With no arguments, DefaultCriteria is used. Duplicate or blank defaults
// are dropped.
func NewCriteriaSet(defaults ...Criterion) *CriteriaSet {
	if len(defaults) == 0 {
		defaults = DefaultCriteria
	}
	s := &CriteriaSet{}
	for _, d := range defaults {
		if _, err := s.Add(string(d)); err == nil {
			s.fixed++
		}
	}
	return s
}

// Add appends a trimmed criterion name. Blank and duplicate names are rejected.
func (s *CriteriaSet) Add(name string) (Criterion, error) {
	c := Criterion(strings.TrimSpace(name))
	if c == "" {
		return "", ErrEmptyCriterion
	}
	if s.Contains(c) {
		return "", fmt.Errorf("%w: %q", ErrDuplicateCriterion, c)
	}
	s.names = append(s.names, c)
	return c, nil
}

// Remove deletes a non-default criterion.
func (s *CriteriaSet) Remove(name string) error {
	c := Criterion(strings.TrimSpace(name))
	idx := slices.Index(s.names, c)
	switch {
	case idx < 0:
		return fmt.Errorf("%w: %q", ErrUnknownCriterion, c)
	case idx < s.fixed:
		return fmt.Errorf("%w: %q", ErrDefaultCriterion, c)
	}
	s.names = slices.Delete(s.names, idx, idx+1)
	return nil
}

// Contains reports whether c is in the set.
func (s *CriteriaSet) Contains(c Criterion) bool {
	return slices.Contains(s.names, c)
}

// IsDefault reports whether c is one of the fixed entries.
func (s *CriteriaSet) IsDefault(c Criterion) bool {
	idx := slices.Index(s.names, c)
	return idx >= 0 && idx < s.fixed
}

// List returns a copy of the criteria in display and scoring order.
func (s *CriteriaSet) List() []Criterion {
	return slices.Clone(s.names)
}

// Len returns the number of active criteria.
func (s *CriteriaSet) Len() int {
	return len(s.names)
}

// Clone returns an independent copy of the set.
func (s *CriteriaSet) Clone() *CriteriaSet {
	return &CriteriaSet{names: slices.Clone(s.names), fixed: s.fixed}
}

// Strings returns the criteria as plain strings, for persistence records.
func (s *CriteriaSet) Strings() []string {
	out := make([]string, len(s.names))
	for i, c := range s.names {
		out[i] = string(c)
	}
	return out
}
