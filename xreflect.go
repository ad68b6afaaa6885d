package ubjson
// Utilities that complement std reflect package.

import (
	"reflect"
)

// deepEqual is like reflect.DeepEqual but also supports Object.
//
// It is needed because reflect.DeepEqual considers two Objects not-equal:
// each Object's index is made with its own hash seed. Objects compare as
// ordered sequences of entries.
func deepEqual(a, b any) bool {
	switch xa := a.(type) {
	case *Object:
		xb, ok := b.(*Object)
		if !ok {
			return false
		}
		if xa.Len() != xb.Len() {
			return false
		}
		if xa.Len() == 0 {
			return true
		}
		for i := range xa.entries {
			ea, eb := xa.entries[i], xb.entries[i]
			if ea.Key != eb.Key || !deepEqual(ea.Value, eb.Value) {
				return false
			}
		}
		return true

	case []any:
		xb, ok := b.([]any)
		if !ok {
			return false
		}
		if len(xa) != len(xb) {
			return false
		}
		for i := range xa {
			if !deepEqual(xa[i], xb[i]) {
				return false
			}
		}
		return true

	case []ObjectEntry:
		xb, ok := b.([]ObjectEntry)
		if !ok {
			return false
		}
		if len(xa) != len(xb) {
			return false
		}
		for i := range xa {
			if xa[i].Key != xb[i].Key || !deepEqual(xa[i].Value, xb[i].Value) {
				return false
			}
		}
		return true
	}

	if _, ok := b.(*Object); ok {
		return false // Object != non-object
	}
	return reflect.DeepEqual(a, b)
}
