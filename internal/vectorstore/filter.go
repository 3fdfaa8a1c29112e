package vectorstore

import (
	"fmt"
	"sort"
	"strings"
)

// Filter is a boolean clause tree over metadata fields. A Filter is either a
// leaf (Field plus exactly one of Eq or In) or a conjunction (All). Filters
// are built once and never mutated.
type Filter struct {
	// All holds the child clauses of a conjunction; every clause must match.
	All []*Filter

	// Field names the metadata field of a leaf clause.
	Field string
	// Eq matches when the field equals this value.
	Eq string
	// In matches when the field equals any of these values.
	In []string
}

// Eq builds a leaf clause matching field == value.
func Eq(field, value string) *Filter {
	return &Filter{Field: field, Eq: value}
}

// In builds a leaf clause matching field against any of the values. A single
// value collapses to an equality clause.
func In(field string, values []string) *Filter {
	if len(values) == 1 {
		return Eq(field, values[0])
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return &Filter{Field: field, In: sorted}
}

// And combines clauses into a conjunction. Nil clauses are dropped; a single
// surviving clause is returned as-is; no survivors yields nil.
func And(clauses ...*Filter) *Filter {
	kept := make([]*Filter, 0, len(clauses))
	for _, c := range clauses {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Filter{All: kept}
	}
}

// Matches reports whether the metadata of a point satisfies the filter.
// Used by in-memory fakes in tests; the Qdrant store translates the tree
// into native conditions instead.
func (f *Filter) Matches(meta map[string]any) bool {
	if f == nil {
		return true
	}
	if len(f.All) > 0 {
		for _, c := range f.All {
			if !c.Matches(meta) {
				return false
			}
		}
		return true
	}

	value, ok := meta[f.Field]
	if !ok {
		return false
	}
	str, ok := value.(string)
	if !ok {
		return false
	}
	if f.Eq != "" {
		return str == f.Eq
	}
	for _, v := range f.In {
		if str == v {
			return true
		}
	}
	return false
}

// String renders the clause tree for logging.
func (f *Filter) String() string {
	if f == nil {
		return "<nil>"
	}
	if len(f.All) > 0 {
		parts := make([]string, len(f.All))
		for i, c := range f.All {
			parts[i] = c.String()
		}
		return "and(" + strings.Join(parts, ", ") + ")"
	}
	if f.Eq != "" {
		return fmt.Sprintf("%s=%s", f.Field, f.Eq)
	}
	return fmt.Sprintf("%s in [%s]", f.Field, strings.Join(f.In, " "))
}
