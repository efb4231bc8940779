// Package schema models dataset definitions and the projection used by a
// query: the ordered partition-key and row-key column layout plus the
// full set of data columns.
package schema

import (
	"fmt"

	"github.com/driftdb/chunkindex/keys"
)

// ColumnDef declares one column of a dataset: its name and key type.
type ColumnDef struct {
	Name    string
	KeyType string
}

// DatasetRef names a dataset, scoping everything else in this package.
type DatasetRef struct {
	Name string
}

// Dataset is the durable definition of a time series' columns, as
// looked up through a MetadataStore. PartitionKeyNames and
// RowKeyNames name columns that must also appear in Columns.
type Dataset struct {
	Ref               DatasetRef
	SchemaVersion     int
	Columns           []ColumnDef
	PartitionKeyNames []string
	RowKeyNames       []string
}

// ColumnByName returns the ColumnDef for name, or false if undefined.
func (d Dataset) ColumnByName(name string) (ColumnDef, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// RichProjection is the schema view used by a query: ordered
// partition-key columns, ordered row-key columns, and the full data
// column set, plus the dataset they were built from. Immutable for
// the life of a query.
type RichProjection struct {
	Dataset        Dataset
	PartitionKeys  []ColumnDef
	RowKeys        []ColumnDef
	DataColumns    []ColumnDef
}

// NewProjection builds a RichProjection from a Dataset's declared
// column schema, resolving each partition-key and row-key name to its
// ColumnDef. Returns an error if a declared key name has no matching
// column definition -- this indicates a corrupt or inconsistent
// Dataset record, not a query-time condition, so callers should treat
// it as fatal.
func NewProjection(ds Dataset) (RichProjection, error) {
	pk, err := resolve(ds, ds.PartitionKeyNames)
	if err != nil {
		return RichProjection{}, fmt.Errorf("partition key: %w", err)
	}
	rk, err := resolve(ds, ds.RowKeyNames)
	if err != nil {
		return RichProjection{}, fmt.Errorf("row key: %w", err)
	}
	return RichProjection{
		Dataset:       ds,
		PartitionKeys: pk,
		RowKeys:       rk,
		DataColumns:   ds.Columns,
	}, nil
}

func resolve(ds Dataset, names []string) ([]ColumnDef, error) {
	out := make([]ColumnDef, 0, len(names))
	for _, n := range names {
		cd, ok := ds.ColumnByName(n)
		if !ok {
			return nil, fmt.Errorf("undefined column %q", n)
		}
		out = append(out, cd)
	}
	return out, nil
}

// PartitionKeyLayout returns the KeyType layout for the projection's
// partition-key columns, in declared order.
func (p RichProjection) PartitionKeyLayout() (keys.KeyLayout, error) {
	return layoutFor(p.PartitionKeys)
}

// RowKeyLayout returns the KeyType layout for the projection's
// row-key columns, in declared order.
func (p RichProjection) RowKeyLayout() (keys.KeyLayout, error) {
	return layoutFor(p.RowKeys)
}

func layoutFor(cols []ColumnDef) (keys.KeyLayout, error) {
	layout := make(keys.KeyLayout, len(cols))
	for i, c := range cols {
		kt, ok := keys.Lookup(c.KeyType)
		if !ok {
			return nil, fmt.Errorf("column %q: unregistered key type %q", c.Name, c.KeyType)
		}
		layout[i] = kt
	}
	return layout, nil
}

// ColumnPosition returns the 0-based position of name within cols, or
// -1 if not present.
func ColumnPosition(cols []ColumnDef, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}
