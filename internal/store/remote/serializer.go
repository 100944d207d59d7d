package remote

import (
	"encoding/json"
	"fmt"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
)

type Serializer[T any] interface {
	Encode(e T) ([]byte, error)
	Decode(body []byte) (T, error)
}

// JSONSerializer writes {"id":..,"geometry":..,"properties":{..}} with the geometry in the
// converter's scheme.
type JSONSerializer[T any] struct {
	desc *entity.Descriptor[T]
	conv *codec.Converter
}

func NewJSONSerializer[T any](desc *entity.Descriptor[T], conv *codec.Converter) *JSONSerializer[T] {
	return &JSONSerializer[T]{desc: desc, conv: conv}
}

type jsonDoc struct {
	ID         uint64                 `json:"id"`
	Geometry   codec.ExternalGeometry `json:"geometry"`
	Properties map[string]any         `json:"properties"`
}

type jsonDocIn struct {
	ID         uint64                     `json:"id"`
	Geometry   codec.ExternalGeometry     `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func (s *JSONSerializer[T]) Encode(e T) ([]byte, error) {
	g, err := s.desc.Geometry(e)
	if err != nil {
		return nil, err
	}
	ext, err := s.conv.ToExternal(g)
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", s.desc.Name(), s.desc.ID(e), err)
	}
	props := make(map[string]any)
	vals := s.desc.Values(e)
	for i, a := range s.desc.Attributes() {
		props[a.Name] = vals[i]
	}
	return json.Marshal(jsonDoc{ID: s.desc.ID(e), Geometry: ext, Properties: props})
}

func (s *JSONSerializer[T]) Decode(body []byte) (T, error) {
	var zero T
	var in jsonDocIn
	if err := json.Unmarshal(body, &in); err != nil {
		return zero, fmt.Errorf("decode %s document: %w", s.desc.Name(), err)
	}
	g, err := s.conv.ToInternal(in.Geometry)
	if err != nil {
		return zero, fmt.Errorf("decode %s %d geometry: %w", s.desc.Name(), in.ID, err)
	}
	var e T
	if err := s.desc.SetID(&e, in.ID); err != nil {
		return zero, err
	}
	if err := s.desc.SetGeometry(&e, g); err != nil {
		return zero, fmt.Errorf("decode %s %d: %w", s.desc.Name(), in.ID, err)
	}
	for i, a := range s.desc.Attributes() {
		raw, ok := in.Properties[a.Name]
		if !ok {
			continue
		}
		if err := s.desc.SetAttribute(&e, i, raw); err != nil {
			return zero, fmt.Errorf("decode %s %d: %w", s.desc.Name(), in.ID, err)
		}
	}
	return e, nil
}
