package entity

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

const tagName = "spatial"

var geometryType = reflect.TypeOf((*geom.Geometry)(nil)).Elem()

// field is one marked struct member addressed by its index path.
type field struct {
	name  string
	index []int
	typ   reflect.Type
}

type typeInfo struct {
	typ      reflect.Type
	id       field
	geometry field
	attrs    []Attribute
	attrIdx  [][]int
}

type regEntry struct {
	once sync.Once
	info *typeInfo
	err  error
}

// registry caches one derivation per struct type; sync.Once makes the first derivation win.
var registry sync.Map // reflect.Type -> *regEntry

func describe(t reflect.Type) (*typeInfo, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}
		return nil, &MetadataError{Type: name, Reason: NotStruct}
	}
	v, _ := registry.LoadOrStore(t, &regEntry{})
	e := v.(*regEntry)
	e.once.Do(func() { e.info, e.err = derive(t) })
	return e.info, e.err
}

type marked struct {
	field
	kind  string
	attr  Attribute
	depth int
}

func derive(t reflect.Type) (*typeInfo, error) {
	tname := t.String()
	var ids, geoms []marked
	var attrs []marked

	// VisibleFields already applies Go's shadowing: a shallower field hides deeper ones of the same name.
	for _, sf := range reflect.VisibleFields(t) {
		tag, ok := sf.Tag.Lookup(tagName)
		if !ok || tag == "-" {
			continue
		}
		if !sf.IsExported() {
			return nil, &MetadataError{Type: tname, Reason: BadTag, Field: sf.Name, Detail: "marked field is unexported"}
		}
		if throughPointer(t, sf.Index) {
			return nil, &MetadataError{Type: tname, Reason: BadTag, Field: sf.Name,
				Detail: "marked field is reached through an embedded pointer"}
		}
		m, err := parseTag(tname, sf, tag)
		if err != nil {
			return nil, err
		}
		switch m.kind {
		case "id":
			ids = append(ids, m)
		case "geometry":
			geoms = append(geoms, m)
		default:
			attrs = append(attrs, m)
		}
	}

	switch {
	case len(ids) == 0:
		return nil, &MetadataError{Type: tname, Reason: MissingID}
	case len(ids) > 1:
		return nil, &MetadataError{Type: tname, Reason: DuplicateID, Field: ids[0].name + "," + ids[1].name}
	case len(geoms) == 0:
		return nil, &MetadataError{Type: tname, Reason: MissingGeometry}
	case len(geoms) > 1:
		return nil, &MetadataError{Type: tname, Reason: DuplicateGeometry, Field: geoms[0].name + "," + geoms[1].name}
	}
	if !isUnsigned(ids[0].typ) {
		return nil, &MetadataError{Type: tname, Reason: BadIDType, Field: ids[0].name,
			Detail: ids[0].typ.String() + " is not an unsigned integer"}
	}
	if !geoms[0].typ.Implements(geometryType) {
		return nil, &MetadataError{Type: tname, Reason: BadGeometryType, Field: geoms[0].name,
			Detail: geoms[0].typ.String() + " does not implement geom.Geometry"}
	}

	attrs, err := shadowByName(tname, attrs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].attr.Ordinal < attrs[j].attr.Ordinal })
	for i := 1; i < len(attrs); i++ {
		if attrs[i].attr.Ordinal == attrs[i-1].attr.Ordinal {
			return nil, &MetadataError{Type: tname, Reason: DuplicateOrdinal,
				Field:  attrs[i-1].name + "," + attrs[i].name,
				Detail: "ordinal " + strconv.Itoa(attrs[i].attr.Ordinal)}
		}
	}

	info := &typeInfo{typ: t, id: ids[0].field, geometry: geoms[0].field}
	for _, a := range attrs {
		info.attrs = append(info.attrs, a.attr)
		info.attrIdx = append(info.attrIdx, a.index)
	}
	return info, nil
}

// shadowByName keeps the shallowest declaration of each attribute name; a derived type
// redeclaring a base attribute replaces it. Two declarations at the same depth are an error.
func shadowByName(tname string, attrs []marked) ([]marked, error) {
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].depth < attrs[j].depth })
	seen := make(map[string]marked, len(attrs))
	out := make([]marked, 0, len(attrs))
	for _, a := range attrs {
		if prev, ok := seen[a.attr.Name]; ok {
			if prev.depth == a.depth {
				return nil, &MetadataError{Type: tname, Reason: BadTag, Field: prev.name + "," + a.name,
					Detail: "attribute name " + strconv.Quote(a.attr.Name) + " declared twice"}
			}
			continue
		}
		seen[a.attr.Name] = a
		out = append(out, a)
	}
	return out, nil
}

func parseTag(tname string, sf reflect.StructField, tag string) (marked, error) {
	parts := strings.Split(tag, ",")
	m := marked{
		field: field{name: sf.Name, index: sf.Index, typ: sf.Type},
		kind:  strings.TrimSpace(parts[0]),
		depth: len(sf.Index),
	}
	bad := func(detail string) (marked, error) {
		return marked{}, &MetadataError{Type: tname, Reason: BadTag, Field: sf.Name, Detail: detail}
	}

	switch m.kind {
	case "id", "geometry":
		if len(parts) > 1 {
			return bad(m.kind + " marker takes no options")
		}
		return m, nil
	case "attr":
	default:
		return bad("unknown marker " + strconv.Quote(m.kind))
	}

	a := Attribute{Name: sf.Name, Type: sf.Type}
	hasOrdinal := false
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "ordinal":
			n, err := strconv.Atoi(val)
			if err != nil {
				return bad("ordinal " + strconv.Quote(val) + " is not an integer")
			}
			a.Ordinal, hasOrdinal = n, true
		case "name":
			a.Name = val
		case "title":
			a.Title = val
		case "desc":
			a.Description = val
		case "nullable":
			a.AllowNull = true
		case "readonly":
			a.ReadOnly = true
		case "unique":
			a.Unique = true
		case "":
		default:
			return bad("unknown attr option " + strconv.Quote(key))
		}
	}
	if !hasOrdinal {
		return bad("attr needs ordinal=N")
	}
	if a.Name == "" {
		return bad("empty attribute name")
	}
	if a.Title == "" {
		a.Title = a.Name
	}
	m.attr = a
	return m, nil
}

func throughPointer(t reflect.Type, index []int) bool {
	cur := t
	for i, x := range index {
		f := cur.Field(x)
		if i == len(index)-1 {
			return false
		}
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		cur = f.Type
	}
	return false
}

func isUnsigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func (ti *typeInfo) String() string {
	return fmt.Sprintf("%s{id=%s geometry=%s attrs=%d}", ti.typ, ti.id.name, ti.geometry.name, len(ti.attrs))
}
