package graph

import (
	"fmt"
	"reflect"
	"strings"
)

// Schema merges a node's partial update into the current state.
type Schema[S any] interface {
	Update(current, update S) (S, error)
}

// SchemaFunc adapts a plain merge function to Schema.
type SchemaFunc[S any] func(current, update S) (S, error)

// Update implements Schema.
func (f SchemaFunc[S]) Update(current, update S) (S, error) {
	return f(current, update)
}

// ReducerKind selects how a state field absorbs an update.
type ReducerKind int

const (
	// ReplaceReducer overwrites the field with the update. It is the default.
	ReplaceReducer ReducerKind = iota
	// AppendReducer concatenates slice updates after the existing elements.
	AppendReducer
	// MergeReducer copies map update entries into the existing map.
	MergeReducer
)

func (k ReducerKind) String() string {
	switch k {
	case ReplaceReducer:
		return "replace"
	case AppendReducer:
		return "append"
	case MergeReducer:
		return "merge"
	default:
		return fmt.Sprintf("ReducerKind(%d)", int(k))
	}
}

// StructSchema implements Schema for struct states. Reducers are read from the
// `reducer` struct tag ("append", "merge", "replace") and can be overridden with
// RegisterReducer. A zero-valued field in an update means "not set" and leaves the
// current value untouched, so optional fields should be pointers.
//
//	type RAGState struct {
//	    Question  string
//	    Messages  []llms.MessageContent `reducer:"append"`
//	    Relevant  *bool
//	}
type StructSchema[S any] struct {
	typ      reflect.Type
	reducers map[string]ReducerKind
	err      error
}

// NewStructSchema builds the schema for S. Invalid declarations are reported by
// Validate (and therefore by Compile).
func NewStructSchema[S any]() *StructSchema[S] {
	var zero S
	s := &StructSchema[S]{
		typ:      reflect.TypeOf(zero),
		reducers: make(map[string]ReducerKind),
	}
	if s.typ == nil || s.typ.Kind() != reflect.Struct {
		s.err = configErrorf("", "state type %v is not a struct", s.typ)
		return s
	}
	for i := 0; i < s.typ.NumField(); i++ {
		f := s.typ.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.TrimSpace(f.Tag.Get("reducer"))
		switch tag {
		case "", "replace":
			s.reducers[f.Name] = ReplaceReducer
		case "append":
			s.reducers[f.Name] = AppendReducer
		case "merge":
			s.reducers[f.Name] = MergeReducer
		default:
			s.err = configErrorf("", "field %s: unknown reducer %q", f.Name, tag)
			return s
		}
	}
	return s
}

// RegisterReducer overrides the reducer of a field.
func (s *StructSchema[S]) RegisterReducer(field string, kind ReducerKind) *StructSchema[S] {
	if s.err != nil {
		return s
	}
	if _, ok := s.reducers[field]; !ok {
		s.err = configErrorf("", "unknown state field %q", field)
		return s
	}
	s.reducers[field] = kind
	return s
}

// Reducer returns the reducer declared for field.
func (s *StructSchema[S]) Reducer(field string) (ReducerKind, bool) {
	k, ok := s.reducers[field]
	return k, ok
}

// Validate checks that every reducer fits the kind of its field.
func (s *StructSchema[S]) Validate() error {
	if s.err != nil {
		return s.err
	}
	for name, kind := range s.reducers {
		f, _ := s.typ.FieldByName(name)
		switch kind {
		case AppendReducer:
			if f.Type.Kind() != reflect.Slice {
				return configErrorf("", "field %s: append reducer on %s", name, f.Type.Kind())
			}
		case MergeReducer:
			if f.Type.Kind() != reflect.Map {
				return configErrorf("", "field %s: merge reducer on %s", name, f.Type.Kind())
			}
		}
	}
	return nil
}

// Update implements Schema.
func (s *StructSchema[S]) Update(current, update S) (S, error) {
	if err := s.Validate(); err != nil {
		return current, err
	}

	result := current
	dst := reflect.ValueOf(&result).Elem()
	src := reflect.ValueOf(update)

	for name, kind := range s.reducers {
		nv := src.FieldByName(name)
		if nv.IsZero() {
			continue
		}
		cv := dst.FieldByName(name)

		switch kind {
		case AppendReducer:
			merged := reflect.MakeSlice(cv.Type(), 0, cv.Len()+nv.Len())
			merged = reflect.AppendSlice(merged, cv)
			merged = reflect.AppendSlice(merged, nv)
			cv.Set(merged)
		case MergeReducer:
			merged := reflect.MakeMapWithSize(cv.Type(), cv.Len()+nv.Len())
			iter := cv.MapRange()
			for iter.Next() {
				merged.SetMapIndex(iter.Key(), iter.Value())
			}
			iter = nv.MapRange()
			for iter.Next() {
				merged.SetMapIndex(iter.Key(), iter.Value())
			}
			cv.Set(merged)
		default:
			cv.Set(nv)
		}
	}
	return result, nil
}

// validator is implemented by schemas that can check themselves at compile time.
type validator interface {
	Validate() error
}
