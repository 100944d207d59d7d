// Package projection turns entities into feature tables and encodes them as GeoJSON or FlatGeobuf.
package projection

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
)

// Column describes one attribute of a feature table.
type Column struct {
	Name        string
	Title       string
	Description string
	Ordinal     int
	AllowNull   bool
	ReadOnly    bool
	Unique      bool
	Type        reflect.Type
}

type Schema struct {
	Table         string
	IDField       string
	GeometryField string
	Columns       []Column
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Describer is the part of an entity descriptor a schema is built from.
type Describer interface {
	Name() string
	IDField() string
	GeometryField() string
	Attributes() []entity.Attribute
}

func SchemaOf(d Describer) Schema {
	attrs := d.Attributes()
	cols := make([]Column, len(attrs))
	for i, a := range attrs {
		cols[i] = Column{
			Name:        a.Name,
			Title:       a.Title,
			Description: a.Description,
			Ordinal:     a.Ordinal,
			AllowNull:   a.AllowNull,
			ReadOnly:    a.ReadOnly,
			Unique:      a.Unique,
			Type:        a.Type,
		}
	}
	return Schema{
		Table:         d.Name(),
		IDField:       d.IDField(),
		GeometryField: d.GeometryField(),
		Columns:       cols,
	}
}

// RowError reports the entity at Index that could not be projected.
type RowError struct {
	Index int
	ID    uint64
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (id %d): %v", e.Index, e.ID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

type Table struct {
	Schema Schema
	Rows   []entity.Row
	byID   map[uint64]int
}

func NewTable(s Schema, rows []entity.Row) *Table {
	t := &Table{Schema: s, Rows: rows, byID: make(map[uint64]int, len(rows))}
	for i, r := range rows {
		if _, dup := t.byID[r.ID]; !dup {
			t.byID[r.ID] = i
		}
	}
	return t
}

func (t *Table) Len() int { return len(t.Rows) }

// Feature returns the first row with id.
func (t *Table) Feature(id uint64) (entity.Row, bool) {
	i, ok := t.byID[id]
	if !ok {
		return entity.Row{}, false
	}
	return t.Rows[i], true
}

// Value returns the attribute of row i by column name.
func (t *Table) Value(i int, column string) (any, bool) {
	c := t.Schema.Index(column)
	if c < 0 || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i].Values[c], true
}

// ProjectAll projects items in order. Entities whose geometry cannot be read are reported as
// joined *RowError values; the table still holds every other row.
func ProjectAll[T any](items []T, desc *entity.Descriptor[T]) (*Table, error) {
	rows := make([]entity.Row, 0, len(items))
	var errs []error
	for i, it := range items {
		r, err := desc.Project(it)
		if err != nil {
			errs = append(errs, &RowError{Index: i, ID: desc.ID(it), Err: err})
			continue
		}
		rows = append(rows, r)
	}
	return NewTable(SchemaOf(desc), rows), errors.Join(errs...)
}

// plain dereferences pointer attributes; nil pointers become nil.
func plain(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
