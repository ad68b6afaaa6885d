package ubjson

import (
	"testing"
)

func TestObjectBasics(t *testing.T) {
	o := NewObject()
	if o.Len() != 0 {
		t.Errorf("new object: len %d", o.Len())
	}
	if v, ok := o.Get_("missing"); ok || v != nil {
		t.Errorf("missing key: got %v, %v", v, ok)
	}

	o.Set("a", int64(1))
	o.Set("b", int64(2))
	o.Set("c", int64(3))
	if o.Len() != 3 {
		t.Errorf("len: %d", o.Len())
	}
	if v := o.Get("b"); v != int64(2) {
		t.Errorf("Get(b): %v", v)
	}

	// updating an existing key keeps its position
	o.Set("a", int64(10))
	if keys := o.Keys(); !deepEqual(keys, []string{"a", "b", "c"}) {
		t.Errorf("keys after update: %v", keys)
	}
	if v := o.Get("a"); v != int64(10) {
		t.Errorf("Get(a) after update: %v", v)
	}
}

func TestObjectDel(t *testing.T) {
	o := NewObjectWithData("a", int64(1), "b", int64(2), "c", int64(3))

	o.Del("b")
	if keys := o.Keys(); !deepEqual(keys, []string{"a", "c"}) {
		t.Errorf("keys after del: %v", keys)
	}
	// index stays consistent after the shift
	if v := o.Get("c"); v != int64(3) {
		t.Errorf("Get(c) after del: %v", v)
	}
	if _, ok := o.Get_("b"); ok {
		t.Errorf("deleted key still present")
	}

	o.Del("nope") // no-op
	if o.Len() != 2 {
		t.Errorf("len after deleting absent key: %d", o.Len())
	}
}

func TestObjectIter(t *testing.T) {
	o := NewObjectWithData("x", int64(1), "y", int64(2), "z", int64(3))

	var keys []string
	o.Iter()(func(k string, v any) bool {
		keys = append(keys, k)
		return true
	})
	if !deepEqual(keys, []string{"x", "y", "z"}) {
		t.Errorf("iter order: %v", keys)
	}

	// early stop
	keys = keys[:0]
	o.Iter()(func(k string, v any) bool {
		keys = append(keys, k)
		return len(keys) < 2
	})
	if len(keys) != 2 {
		t.Errorf("iter early stop: %v", keys)
	}
}

func TestObjectEntries(t *testing.T) {
	o := NewObjectWithData("a", int64(1))
	entries := o.Entries()
	entries[0].Value = int64(99) // copies do not alias the object
	if v := o.Get("a"); v != int64(1) {
		t.Errorf("Entries aliases object: %v", v)
	}
}

func TestObjectString(t *testing.T) {
	o := NewObjectWithData("b", int64(1), "a", "x")
	if s := o.String(); s != `{"b": 1, "a": x}` {
		t.Errorf("String: %s", s)
	}
}

func TestObjectWithDataPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("odd kv count: expected panic")
		}
	}()
	NewObjectWithData("a")
}
