package ubjson

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// decodeErrors is the registry of malformed inputs. Every entry must fail
// with the given message at the given byte offset, on all three input
// strategies.
var decodeErrors = []struct {
	name   string
	data   string
	msg    string
	offset int64
}{
	{"empty input", "", "Insufficient input (Type marker)", 0},
	{"invalid marker", "01", "Invalid marker", 1},
	{"noop at top level", "4E", "Invalid marker", 1},
	{"missing int8 payload", "69", "Insufficient input (int8)", 1},
	{"partial int16", "49 00", "Insufficient (partial) input (int16/32)", 2},
	{"partial int64", "4C 00112233", "Insufficient (partial) input (int64)", 5},
	{"partial float32", "64 0000", "Insufficient (partial) input (float32)", 3},
	{"string length not integer", "53 54", "Integer marker expected", 2},
	{"string negative length", "53 69FF", "Negative count/length unexpected", 3},
	{"string truncated", "53 5505 4142", "Insufficient (partial) input (string)", 5},
	{"string bad utf8", "53 5502 FFFE", "Failed to decode utf8: string", 5},
	{"char bad utf8", "43 FF", "Failed to decode utf8: char", 2},
	{"highprec not decimal", "48 5502 2B2B", "Failed to decode highprec", 5},
	{"array truncated", "5B", "Insufficient input (container type, count or 1st key/value type)", 1},
	{"array invalid container type", "5B 24 4E", "Invalid container type", 3},
	{"array type without count", "5B 24 55 5D", "Container type without count", 4},
	{"array negative count", "5B 23 69FF", "Negative count/length unexpected", 4},
	{"bytes truncated", "5B 2455 23 5504 AABB", "Insufficient (partial) input (bytes array)", 8},
	{"object bad key marker", "7B 53", "Failed to decode object key (sized/unsized)", 2},
	{"object truncated key", "7B 5501", "Failed to decode object key (sized/unsized)", 3},
	{"object truncated value", "7B 550161", "Insufficient input (Type marker)", 4},
}

func TestDecodeErrors(t *testing.T) {
	for _, tt := range decodeErrors {
		data := h(tt.data)
		sources := map[string]func() (any, error){
			"bytes": func() (any, error) {
				return Unmarshal([]byte(data))
			},
			"stream": func() (any, error) {
				return NewDecoder(noSeek{strings.NewReader(data)}).Decode()
			},
			"seekable": func() (any, error) {
				return NewDecoder(strings.NewReader(data)).Decode()
			},
		}
		for mode, decode := range sources {
			_, err := decode()
			var de *DecoderError
			if !errors.As(err, &de) {
				t.Errorf("%s/%s: got %v; want DecoderError", tt.name, mode, err)
				continue
			}
			if de.Msg != tt.msg || de.Offset != tt.offset {
				t.Errorf("%s/%s: got %q at %d; want %q at %d",
					tt.name, mode, de.Msg, de.Offset, tt.msg, tt.offset)
			}
		}
	}
}

func TestDecodeError(t *testing.T) {
	_, err := Unmarshal([]byte(h("49 00")))
	want := "Insufficient (partial) input (int16/32) (at byte [2])"
	if err == nil || err.Error() != want {
		t.Errorf("error text: got %v; want %q", err, want)
	}
}

func TestDecodeNoBytes(t *testing.T) {
	data := []byte(h("5B 2455 23 5503 AABBCC"))

	v, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !deepEqual(v, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("default: have %#v", v)
	}

	v, err = UnmarshalWithConfig(data, &DecoderConfig{NoBytes: true})
	if err != nil {
		t.Fatalf("unmarshal with NoBytes: %v", err)
	}
	if !deepEqual(v, []any{int64(170), int64(187), int64(204)}) {
		t.Errorf("NoBytes: have %#v", v)
	}
}

func TestDecodeObjectHook(t *testing.T) {
	data := []byte(h("7B 550161 5501 550162 5502 7D"))

	config := &DecoderConfig{
		ObjectHook: func(obj *Object) (any, error) {
			m := map[string]any{}
			obj.Iter()(func(k string, v any) bool {
				m[k] = v
				return true
			})
			return m, nil
		},
	}
	v, err := UnmarshalWithConfig(data, config)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !deepEqual(v, map[string]any{"a": int64(1), "b": int64(2)}) {
		t.Errorf("object hook: have %#v", v)
	}

	// hook is applied to nested objects too
	nested := []byte(h("5B 7B7D 5D"))
	v, err = UnmarshalWithConfig(nested, config)
	if err != nil {
		t.Fatalf("unmarshal nested: %v", err)
	}
	if !deepEqual(v, []any{map[string]any{}}) {
		t.Errorf("nested object hook: have %#v", v)
	}

	// hook errors propagate unchanged
	errBoom := errors.New("boom")
	config = &DecoderConfig{ObjectHook: func(obj *Object) (any, error) { return nil, errBoom }}
	if _, err := UnmarshalWithConfig(data, config); err != errBoom {
		t.Errorf("object hook error: got %v; want %v", err, errBoom)
	}
}

func TestDecodeObjectPairsHook(t *testing.T) {
	// duplicate keys: the pairs hook observes every pair in stream order
	data := []byte(h("7B 550161 5501 550161 5502 7D"))

	var got []ObjectEntry
	config := &DecoderConfig{
		ObjectPairsHook: func(pairs []ObjectEntry) (any, error) {
			got = pairs
			return pairs, nil
		},
	}
	v, err := UnmarshalWithConfig(data, config)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []ObjectEntry{{"a", int64(1)}, {"a", int64(2)}}
	if !deepEqual(v, want) || !deepEqual(got, want) {
		t.Errorf("pairs hook: have %#v", v)
	}

	// while the default path collapses them, last write winning
	v, err = Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !deepEqual(v, NewObjectWithData("a", int64(2))) {
		t.Errorf("default duplicate keys: have %#v", v)
	}

	// the pairs hook takes precedence over the object hook
	config.ObjectHook = func(obj *Object) (any, error) {
		t.Errorf("object hook called despite pairs hook")
		return obj, nil
	}
	if _, err := UnmarshalWithConfig(data, config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// counted and typed objects go through the pairs hook as well
	counted := []byte(h("7B 2455 23 5502 550161 03 550162 04"))
	v, err = UnmarshalWithConfig(counted, &DecoderConfig{
		ObjectPairsHook: func(pairs []ObjectEntry) (any, error) { return pairs, nil },
	})
	if err != nil {
		t.Fatalf("unmarshal counted: %v", err)
	}
	if !deepEqual(v, []ObjectEntry{{"a", int64(3)}, {"b", int64(4)}}) {
		t.Errorf("counted pairs hook: have %#v", v)
	}
}

func TestDecodeInternObjectKeys(t *testing.T) {
	data := []byte(h("5B 7B 550161 5501 7D 7B 550161 5502 7D 5D"))
	v, err := UnmarshalWithConfig(data, &DecoderConfig{InternObjectKeys: true})
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []any{NewObjectWithData("a", int64(1)), NewObjectWithData("a", int64(2))}
	if !deepEqual(v, want) {
		t.Errorf("interned decode: have %#v", v)
	}
}

func TestDecodeDepth(t *testing.T) {
	deep := strings.Repeat("\x5B", 1001)
	_, err := Unmarshal([]byte(deep))
	var de *DecoderError
	if !errors.As(err, &de) || de.Msg != "maximum recursion depth exceeded whilst decoding a UBJSON array" {
		t.Errorf("deep arrays: got %v", err)
	}

	_, err = Unmarshal([]byte(h("7B 550161 " + strings.Repeat("7B 550161 ", 1000))))
	if !errors.As(err, &de) || de.Msg != "maximum recursion depth exceeded whilst decoding a UBJSON object" {
		t.Errorf("deep objects: got %v", err)
	}

	small := []byte(h("5B5B5B5B5B 5D5D5D5D5D"))
	if _, err := UnmarshalWithConfig(small, &DecoderConfig{MaxDepth: 4}); err == nil {
		t.Errorf("MaxDepth=4: expected error, got nil")
	}
	if _, err := UnmarshalWithConfig(small, &DecoderConfig{MaxDepth: 8}); err != nil {
		t.Errorf("MaxDepth=8: got %v; want nil", err)
	}
}

func TestSeekableRewind(t *testing.T) {
	payload, err := Marshal([]any{int64(1), "AB", []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	trailing := strings.Repeat("t", 500) // more than one buffered read

	r := bytes.NewReader(append(append([]byte{}, payload...), trailing...))
	d := NewDecoder(r)
	if _, err := d.Decode(); err != nil {
		t.Fatalf("decode: %v", err)
	}

	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != int64(len(payload)) {
		t.Fatalf("position after decode: %d; want %d", pos, len(payload))
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != trailing {
		t.Errorf("trailing data not preserved: %d bytes left", len(rest))
	}
}

func TestSeekableMultipleValues(t *testing.T) {
	var stream bytes.Buffer
	e := NewEncoder(&stream)
	values := []any{int64(300), "hello there", []any{int64(1), int64(2)}}
	for _, v := range values {
		if err := e.Encode(v); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	r := bytes.NewReader(stream.Bytes())
	d := NewDecoder(r)
	for i, want := range values {
		v, err := d.Decode()
		if err != nil {
			t.Fatalf("decode #%d: %v", i, err)
		}
		if !deepEqual(v, want) {
			t.Errorf("decode #%d: have %#v; want %#v", i, v, want)
		}
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != int64(stream.Len()) {
		t.Errorf("position after all values: %d; want %d", pos, stream.Len())
	}
}

// TestStreamExactConsumption checks that the non-seekable strategy never
// reads past the decoded value.
func TestStreamExactConsumption(t *testing.T) {
	payload, err := Marshal(NewObjectWithData("k", []any{int64(1), "x"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r := strings.NewReader(string(payload) + "tail")

	v, err := NewDecoder(noSeek{r}).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !deepEqual(v, NewObjectWithData("k", []any{int64(1), "x"})) {
		t.Errorf("decode: have %#v", v)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "tail" {
		t.Errorf("stream over-read: %q left", rest)
	}
}

// chunkyReader returns at most 3 bytes per Read call.
type chunkyReader struct {
	r io.Reader
}

func (c *chunkyReader) Read(p []byte) (int, error) {
	if len(p) > 3 {
		p = p[:3]
	}
	return c.r.Read(p)
}

func TestDecodeChunkyReader(t *testing.T) {
	want := []any{strings.Repeat("x", 700), int64(12345), []byte{9, 8, 7}}
	payload, err := Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v, err := NewDecoder(&chunkyReader{strings.NewReader(string(payload))}).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !deepEqual(v, want) {
		t.Errorf("chunky decode: have %#v", v)
	}
}

// TestSeekableSpanningRead decodes a value larger than the internal read
// window, so the buffered strategy combines the window tail with fresh
// fetches, then still rewinds precisely.
func TestSeekableSpanningRead(t *testing.T) {
	long := strings.Repeat("y", 1000)
	payload, err := Marshal([]any{long, strings.Repeat("z", 300)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r := bytes.NewReader(append(append([]byte{}, payload...), "rest"...))

	v, err := NewDecoder(r).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !deepEqual(v, []any{long, strings.Repeat("z", 300)}) {
		t.Errorf("spanning decode mismatch")
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != int64(len(payload)) {
		t.Errorf("position after decode: %d; want %d", pos, len(payload))
	}
}

// failingReader delivers data and then fails with err. TestDecodeSourceError
// uses it to check that errors from the underlying reader propagate
// unchanged rather than being turned into decoder errors.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestDecodeSourceError(t *testing.T) {
	errIO := errors.New("io trouble")
	r := &failingReader{data: []byte(h("53 5505 41")), err: errIO}
	_, err := NewDecoder(noSeek{r}).Decode()
	if err != errIO {
		t.Errorf("source error: got %v; want %v", err, errIO)
	}
}
