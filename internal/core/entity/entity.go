// Package entity derives identifier, geometry and attribute accessors for tagged entity structs.
//
// A type opts in with the `spatial` struct tag:
//
//	type Place struct {
//		ID    uint64     `spatial:"id"`
//		Shape geom.Point `spatial:"geometry"`
//		Label string     `spatial:"attr,ordinal=1,name=Label,unique"`
//	}
//
// Embedded structs act as base types. Descriptors are derived once per type and cached.
package entity

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

type Attribute struct {
	Name        string
	Title       string
	Description string
	Ordinal     int
	AllowNull   bool
	ReadOnly    bool
	Unique      bool
	Type        reflect.Type
}

// Row is one entity projected through its descriptor.
type Row struct {
	ID       uint64
	Values   []any
	Geometry geom.Geometry
}

// Descriptor exposes the compiled accessors of T. T is a struct or a pointer to one.
type Descriptor[T any] struct {
	info   *typeInfo
	ptr    bool
	getID  func(reflect.Value) uint64
	getGeo func(reflect.Value) reflect.Value
	getAt  []func(reflect.Value) reflect.Value
}

var descriptors sync.Map // reflect.Type of T -> *Descriptor[T]

// For returns the descriptor of T, deriving it on first use.
func For[T any]() (*Descriptor[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if v, ok := descriptors.Load(t); ok {
		return v.(*Descriptor[T]), nil
	}
	info, err := describe(t)
	if err != nil {
		return nil, err
	}
	d := &Descriptor[T]{info: info, ptr: t.Kind() == reflect.Pointer}

	idIdx := info.id.index
	d.getID = func(v reflect.Value) uint64 { return v.FieldByIndex(idIdx).Uint() }
	geoIdx := info.geometry.index
	d.getGeo = func(v reflect.Value) reflect.Value { return v.FieldByIndex(geoIdx) }
	d.getAt = make([]func(reflect.Value) reflect.Value, len(info.attrIdx))
	for i, idx := range info.attrIdx {
		d.getAt[i] = func(v reflect.Value) reflect.Value { return v.FieldByIndex(idx) }
	}
	v, _ := descriptors.LoadOrStore(t, d)
	return v.(*Descriptor[T]), nil
}

// MustFor panics on metadata errors; use it for package-level descriptors of known-good types.
func MustFor[T any]() *Descriptor[T] {
	d, err := For[T]()
	if err != nil {
		panic(err)
	}
	return d
}

// Name is the Go type name, used as table and layer name.
func (d *Descriptor[T]) Name() string { return d.info.typ.Name() }

// Attributes returns a copy of the attribute list in ordinal order.
func (d *Descriptor[T]) Attributes() []Attribute {
	out := make([]Attribute, len(d.info.attrs))
	copy(out, d.info.attrs)
	return out
}

func (d *Descriptor[T]) IDField() string       { return d.info.id.name }
func (d *Descriptor[T]) GeometryField() string { return d.info.geometry.name }

func (d *Descriptor[T]) value(e T) (reflect.Value, bool) {
	v := reflect.ValueOf(&e).Elem()
	if d.ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, true
}

func (d *Descriptor[T]) target(e *T) (reflect.Value, error) {
	if e == nil {
		return reflect.Value{}, ErrNilEntity
	}
	v := reflect.ValueOf(e).Elem()
	if d.ptr {
		if v.IsNil() {
			v.Set(reflect.New(d.info.typ))
		}
		v = v.Elem()
	}
	return v, nil
}

// ID returns 0 for a nil pointer entity.
func (d *Descriptor[T]) ID(e T) uint64 {
	v, ok := d.value(e)
	if !ok {
		return 0
	}
	return d.getID(v)
}

// Geometry always returns a value geometry, even for pointer-typed fields.
func (d *Descriptor[T]) Geometry(e T) (geom.Geometry, error) {
	v, ok := d.value(e)
	if !ok {
		return nil, ErrNilEntity
	}
	fv := d.getGeo(v)
	if fv.Kind() == reflect.Interface || fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, fmt.Errorf("%s %d: %w", d.Name(), d.getID(v), ErrNoGeometry)
		}
	}
	g, _ := fv.Interface().(geom.Geometry)
	if geom.IsNil(g) {
		return nil, fmt.Errorf("%s %d: %w", d.Name(), d.getID(v), ErrNoGeometry)
	}
	return geom.Value(g), nil
}

// Values returns attribute values in ordinal order.
func (d *Descriptor[T]) Values(e T) []any {
	v, ok := d.value(e)
	if !ok {
		return nil
	}
	out := make([]any, len(d.getAt))
	for i, get := range d.getAt {
		out[i] = get(v).Interface()
	}
	return out
}

// Project builds the feature row of e.
func (d *Descriptor[T]) Project(e T) (Row, error) {
	g, err := d.Geometry(e)
	if err != nil {
		return Row{}, err
	}
	return Row{ID: d.ID(e), Values: d.Values(e), Geometry: g}, nil
}

func (d *Descriptor[T]) SetID(e *T, id uint64) error {
	v, err := d.target(e)
	if err != nil {
		return err
	}
	v.FieldByIndex(d.info.id.index).SetUint(id)
	return nil
}

// SetGeometry accepts the field's own type, its pointer or value counterpart, or anything for
// an interface-typed field.
func (d *Descriptor[T]) SetGeometry(e *T, g geom.Geometry) error {
	v, err := d.target(e)
	if err != nil {
		return err
	}
	if geom.IsNil(g) {
		return ErrNoGeometry
	}
	fv := d.getGeo(v)
	ft := fv.Type()
	gv := reflect.ValueOf(g)
	switch {
	case gv.Type().AssignableTo(ft):
		fv.Set(gv)
	case ft.Kind() == reflect.Pointer && gv.Type().AssignableTo(ft.Elem()):
		p := reflect.New(ft.Elem())
		p.Elem().Set(gv)
		fv.Set(p)
	case gv.Kind() == reflect.Pointer && gv.Elem().Type().AssignableTo(ft):
		fv.Set(gv.Elem())
	default:
		return fmt.Errorf("%w: %s cannot hold %s", ErrGeometryMismatch, ft, g.Kind())
	}
	return nil
}

// SetAttribute decodes raw JSON into the i-th attribute of e.
func (d *Descriptor[T]) SetAttribute(e *T, i int, raw json.RawMessage) error {
	if i < 0 || i >= len(d.getAt) {
		return fmt.Errorf("attribute index %d out of range", i)
	}
	v, err := d.target(e)
	if err != nil {
		return err
	}
	fv := d.getAt[i](v)
	if err := json.Unmarshal(raw, fv.Addr().Interface()); err != nil {
		return fmt.Errorf("attribute %s: %w", d.info.attrs[i].Name, err)
	}
	return nil
}
