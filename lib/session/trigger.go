package session

import (
	"fmt"
	"reflect"
	"strings"
)

// DirtyTracker decides whether reading an attribute marks the session dirty.
// Writes always mark the session dirty.
type DirtyTracker interface {
	DirtyOnGet(value any) bool
}

// Trigger is the replication trigger policy of a session.
type Trigger uint8

const (
	OnSetOnly               Trigger = iota // only writes mark the session dirty
	OnSetAndGet                            // every read of an existing attribute marks the session dirty
	OnSetAndNonPrimitiveGet                // reads of mutable values mark the session dirty
)

func (t Trigger) String() string {
	switch t {
	case OnSetOnly:
		return "SET"
	case OnSetAndGet:
		return "SET_AND_GET"
	case OnSetAndNonPrimitiveGet:
		return "SET_AND_NON_PRIMITIVE_GET"
	default:
		return "Unknown"
	}
}

// ParseTrigger parses the names returned by Trigger.String.
// Matching is case-insensitive and accepts '-' in place of '_'.
func ParseTrigger(s string) (Trigger, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "SET", "SET_ONLY", "ON_SET_ONLY":
		return OnSetOnly, nil
	case "SET_AND_GET", "ON_SET_AND_GET":
		return OnSetAndGet, nil
	case "SET_AND_NON_PRIMITIVE_GET", "ON_SET_AND_NON_PRIMITIVE_GET", "":
		return OnSetAndNonPrimitiveGet, nil
	default:
		return 0, fmt.Errorf("unknown replication trigger %q", s)
	}
}

// DirtyOnGet implements DirtyTracker.
func (t Trigger) DirtyOnGet(value any) bool {
	switch t {
	case OnSetAndGet:
		return true
	case OnSetAndNonPrimitiveGet:
		return !isPrimitive(value)
	default:
		return false
	}
}

// isPrimitive reports whether v is immutable from the caller's point of view.
func isPrimitive(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}
