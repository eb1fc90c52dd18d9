package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

type JSONB[T any] struct {
	Data T
}

func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data}
}

func (p *JSONB[T]) Scan(src any) error {
	var b []byte
	var zero T
	p.Data = zero
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &p.Data)
}

// Value encodes Data as JSON. Payloads that json cannot encode (NaN, channels,
// funcs, cyclic maps) are re-encoded after replacing the offending values with
// their string form, so a write never fails on extension data.
func (p JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(p.Data)
	if err == nil {
		return b, nil
	}
	return json.Marshal(Sanitize(p.Data))
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}

// Sanitize converts v into a tree json can always encode.
func Sanitize(v any) any {
	return sanitize(reflect.ValueOf(v), 0)
}

const maxSanitizeDepth = 32

func sanitize(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxSanitizeDepth {
		return fmt.Sprintf("%v", v.Interface())
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return sanitize(v.Elem(), depth+1)
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("%v", f)
		}
		return f
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprintf("%v", iter.Key().Interface())] = sanitize(iter.Value(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = sanitize(v.Index(i), depth+1)
		}
		return out
	case reflect.Struct:
		if b, err := json.Marshal(v.Interface()); err == nil {
			var generic any
			if json.Unmarshal(b, &generic) == nil {
				return generic
			}
		}
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out[t.Field(i).Name] = sanitize(v.Field(i), depth+1)
		}
		return out
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v.Interface())
	default:
		return v.Interface()
	}
}
