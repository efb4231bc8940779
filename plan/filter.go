// Package plan implements the predicate compiler: it turns a flat list
// of filter expressions over a RichProjection into a concrete
// PartitionScanMethod and ChunkScanMethod (spec.md §4.4).
package plan

import "fmt"

// FilterKind identifies the shape of one Filter.
type FilterKind int

const (
	EqualTo FilterKind = iota
	In
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
)

// Filter is one entry of the closed filter-expression surface
// consumed by the compiler (spec.md §6).
type Filter struct {
	Column string
	Kind   FilterKind
	Value  any   // EqualTo, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual
	Values []any // In
}

// UnsupportedFilterError reports a filter shape the compiler was
// asked to push down onto a partition column but cannot interpret --
// fatal to the query per spec.md §7.
type UnsupportedFilterError struct {
	Filter Filter
}

func (e *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("unsupported filter on partition column %q: kind=%v", e.Filter.Column, e.Filter.Kind)
}

// groupByColumn groups filters by column name, preserving the first-
// seen column order so diagnostics and iteration are deterministic.
func groupByColumn(filters []Filter) (order []string, byColumn map[string][]Filter) {
	byColumn = make(map[string][]Filter)
	for _, f := range filters {
		if _, ok := byColumn[f.Column]; !ok {
			order = append(order, f.Column)
		}
		byColumn[f.Column] = append(byColumn[f.Column], f)
	}
	return order, byColumn
}
