package ubjson
// Insertion-ordered string-keyed mapping used for decoded UBJSON objects.

import (
	"fmt"

	"github.com/aristanetworks/gomap"
)

// ObjectEntry is a single key/value pair of an Object. It is also the unit
// passed to DecoderConfig.ObjectPairsHook, in stream order.
type ObjectEntry struct {
	Key   string
	Value any
}

// Object represents a UBJSON object: a string-keyed mapping that preserves
// insertion order. Setting an existing key updates its value in place and
// keeps the key's original position, matching how duplicate keys collapse
// during decoding.
//
// Note: similarly to builtin map Object is pointer-like: use NewObject to
// obtain a usable instance; methods on a nil *Object treat it as empty and
// Set panics.
type Object struct {
	entries []ObjectEntry
	index   *gomap.Map[string, int]
}

// NewObject returns a new empty object.
func NewObject() *Object {
	return NewObjectWithSizeHint(0)
}

// NewObjectWithSizeHint returns a new empty object with preallocated space
// for size entries.
func NewObjectWithSizeHint(size int) *Object {
	o := &Object{index: gomap.NewHint[string, int](size, stringEqual, maphash_String)}
	if size > 0 {
		o.entries = make([]ObjectEntry, 0, size)
	}
	return o
}

// NewObjectWithData returns a new object with preset data.
//
// kv should be key₁, value₁, key₂, value₂, ...
func NewObjectWithData(kv ...any) *Object {
	l := len(kv)
	if l%2 != 0 {
		panic("odd number of arguments")
	}
	l /= 2
	o := NewObjectWithSizeHint(l)
	for i := 0; i < l; i++ {
		k, ok := kv[2*i].(string)
		if !ok {
			panic(fmt.Sprintf("object key must be string, not %T", kv[2*i]))
		}
		o.Set(k, kv[2*i+1])
	}
	return o
}

// Get returns the value associated with key, or nil if absent.
func (o *Object) Get(key string) any {
	value, _ := o.Get_(key)
	return value
}

// Get_ is comma-ok version of Get.
func (o *Object) Get_(key string) (value any, ok bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index.Get(key)
	if !ok {
		return nil, false
	}
	return o.entries[i].Value, true
}

// Set associates key with value. An existing key keeps its position.
func (o *Object) Set(key string, value any) {
	if i, ok := o.index.Get(key); ok {
		o.entries[i].Value = value
		return
	}
	o.index.Set(key, len(o.entries))
	o.entries = append(o.entries, ObjectEntry{Key: key, Value: value})
}

// Del removes key from the object, preserving the order of the remaining
// entries.
func (o *Object) Del(key string) {
	if o == nil {
		return
	}
	i, ok := o.index.Get(key)
	if !ok {
		return
	}
	o.index.Delete(key)
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	for j := i; j < len(o.entries); j++ {
		o.index.Set(o.entries[j].Key, j)
	}
}

// Len returns the number of entries.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.entries))
	for i, e := range o.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in insertion order.
func (o *Object) Entries() []ObjectEntry {
	if o == nil {
		return nil
	}
	entries := make([]ObjectEntry, len(o.entries))
	copy(entries, o.entries)
	return entries
}

// Iter returns an iterator over all entries in insertion order.
func (o *Object) Iter() /* iter.Seq2 */ func(yield func(string, any) bool) {
	return func(yield func(string, any) bool) {
		if o == nil {
			return
		}
		for _, e := range o.entries {
			if !yield(e.Key, e.Value) {
				break
			}
		}
	}
}

// String returns human-readable representation of the object.
func (o *Object) String() string {
	return o.sprintf("%v")
}

// GoString returns detailed human-readable representation of the object.
func (o *Object) GoString() string {
	return fmt.Sprintf("%T%s", o, o.sprintf("%#v"))
}

// sprintf serves String and GoString.
func (o *Object) sprintf(format string) string {
	s := "{"
	if o != nil {
		for i, e := range o.entries {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%q: "+format, e.Key, e.Value)
		}
	}
	s += "}"
	return s
}

func stringEqual(a, b string) bool { return a == b }
