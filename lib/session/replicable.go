package session

import (
	"encoding/gob"
	"fmt"
	"io"
	"reflect"
)

// RegisterAttributeType makes a named or composite type usable as an attribute value.
// It must be called on every node, typically from an init function.
func RegisterAttributeType(value any) {
	gob.Register(value)
}

// attributeEnvelope mirrors how the attribute map is encoded, values travel behind an interface.
type attributeEnvelope struct {
	V any
}

// checkReplicable returns an error if value cannot be encoded by the distributed store.
func checkReplicable(value any) error {
	t := reflect.TypeOf(value)
	if t.PkgPath() == "" && isPrimitive(value) {
		return nil
	}
	if err := checkType(t, map[reflect.Type]bool{}); err != nil {
		return err
	}
	return gob.NewEncoder(io.Discard).Encode(&attributeEnvelope{V: value})
}

// checkType rejects types that can never be sent, including ones gob would silently drop
// as struct fields.
func checkType(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("values of kind %s cannot be replicated", t.Kind())
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return checkType(t.Elem(), seen)
	case reflect.Map:
		if err := checkType(t.Key(), seen); err != nil {
			return err
		}
		return checkType(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if err := checkType(f.Type, seen); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	return nil
}
