package ubjson

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EncoderError is the error reported for values that cannot be represented
// in UBJSON (unsupported types, non-string mapping keys, circular
// references, exceeded recursion depth).
type EncoderError struct {
	Msg string
}

func (e *EncoderError) Error() string { return e.Msg }

// ErrCircularReference is returned when a sequence or mapping contains
// itself, directly or transitively.
var ErrCircularReference = &EncoderError{"Circular reference detected"}

// smallest normal (non-subnormal) float64
const minNormal64 = 2.2250738585072014e-308

// float32 range limits used to decide whether a float64 may be narrowed to
// the float32 wire type. Taken from the UBJSON draft.
const (
	float32MinAbs = 1.18e-38
	float32MaxAbs = 3.4e38
)

// An Encoder encodes values into a UBJSON byte stream.
type Encoder struct {
	w      io.Writer
	config *EncoderConfig
}

// EncoderConfig allows to tune Encoder.
type EncoderConfig struct {
	// ContainerCount, if set, makes the encoder emit the optional `#`
	// count header for arrays and objects and omit the closing delimiter.
	ContainerCount bool

	// SortKeys, if set, makes object keys appear in the lexicographic
	// order of their UTF-8 encoding instead of insertion order.
	SortKeys bool

	// NoFloat32, if set, keeps non-zero finite float64 values in the
	// 8-byte float64 wire type even when they fit the float32 range.
	// float32 values always use the 4-byte type. NewEncoder and Marshal
	// set it.
	NoFloat32 bool

	// Default, if not nil, is called with a value the encoder does not
	// support; the returned value is encoded in its place.
	Default func(v any) (any, error)

	// MaxDepth bounds container nesting. 0 means the default of 1000.
	MaxDepth int
}

const defaultMaxDepth = 1000

// initial encoder buffer size (when not writing to a sink)
const bufferInitialSize = 64

// encoder buffer size when using a sink (minimum number of bytes to buffer
// before writing out); also the minimum read size of the decoder's
// seekable-source buffer
const bufferFPSize = 256

// NewEncoder returns a new Encoder writing to w with default configuration.
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderWithConfig(w, &EncoderConfig{NoFloat32: true})
}

// NewEncoderWithConfig is similar to NewEncoder, but allows specifying the
// encoder configuration.
func NewEncoderWithConfig(w io.Writer, config *EncoderConfig) *Encoder {
	return &Encoder{w: w, config: config}
}

// Encode writes the UBJSON encoding of v to the encoder's writer.
func (e *Encoder) Encode(v any) error {
	s := newEncodeState(e.config, e.w)
	if err := s.encode(v); err != nil {
		return err
	}
	_, err := s.finalise()
	return err
}

// Marshal returns the UBJSON encoding of v with default configuration.
func Marshal(v any) ([]byte, error) {
	return MarshalWithConfig(v, &EncoderConfig{NoFloat32: true})
}

// MarshalWithConfig is similar to Marshal, but allows specifying the
// encoder configuration.
func MarshalWithConfig(v any, config *EncoderConfig) ([]byte, error) {
	s := newEncodeState(config, nil)
	if err := s.encode(v); err != nil {
		return nil, err
	}
	return s.finalise()
}

// encodeState is the per-call working state of an encode: the output
// buffer, the identity set for circular-reference detection and the
// recursion depth counter. It is created per Encode/Marshal call and
// finalised exactly once.
type encodeState struct {
	raw      []byte
	pos      int
	w        io.Writer // if not nil, full buffer is flushed here
	seen     map[uintptr]struct{}
	config   *EncoderConfig
	depth    int
	maxDepth int
	numtmp   [9]byte // type byte + widest integer/float payload
}

func newEncodeState(config *EncoderConfig, w io.Writer) *encodeState {
	size := bufferInitialSize
	if w != nil {
		size = bufferFPSize
	}
	maxDepth := config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &encodeState{
		raw:      make([]byte, size),
		w:        w,
		seen:     make(map[uintptr]struct{}),
		config:   config,
		maxDepth: maxDepth,
	}
}

// write appends chunk to the buffer. Without a sink the buffer capacity
// doubles as needed; with a sink it grows to fit exactly and the whole
// buffer is flushed once full.
func (e *encodeState) write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if len(chunk) > len(e.raw)-e.pos {
		newLen := e.pos + len(chunk)
		if e.w == nil {
			for newLen = len(e.raw); newLen < e.pos+len(chunk); newLen *= 2 {
			}
		}
		raw := make([]byte, newLen)
		copy(raw, e.raw[:e.pos])
		e.raw = raw
	}
	e.pos += copy(e.raw[e.pos:], chunk)

	if e.w != nil && e.pos >= len(e.raw) {
		if err := e.flush(); err != nil {
			return err
		}
		if len(e.raw) != bufferFPSize {
			e.raw = make([]byte, bufferFPSize)
		}
		e.pos = 0
	}
	return nil
}

// flush hands the buffered bytes to the sink.
func (e *encodeState) flush() error {
	n, err := e.w.Write(e.raw[:e.pos])
	if err == nil && n < e.pos {
		err = io.ErrShortWrite
	}
	return err
}

// finalise flushes the remaining tail to the sink, or returns the encoded
// bytes when there is no sink. Called exactly once per encode.
func (e *encodeState) finalise() ([]byte, error) {
	if e.w == nil {
		return e.raw[:e.pos:e.pos], nil
	}
	if e.pos > 0 {
		if err := e.flush(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// emit writes byte arguments into encoder output.
func (e *encodeState) emit(bv ...byte) error {
	return e.write(bv)
}

// emits writes string into encoder output.
func (e *encodeState) emits(s string) error {
	return e.write([]byte(s))
}

func (e *encodeState) encode(v any) error {
	switch x := v.(type) {
	case nil:
		return e.emit(typeNull)
	case bool:
		if x {
			return e.emit(typeBoolTrue)
		}
		return e.emit(typeBoolFalse)
	case int:
		return e.encodeInt64(int64(x))
	case int8:
		return e.encodeInt64(int64(x))
	case int16:
		return e.encodeInt64(int64(x))
	case int32:
		return e.encodeInt64(int64(x))
	case int64:
		return e.encodeInt64(x)
	case uint:
		return e.encodeUint64(uint64(x))
	case uint8:
		return e.encodeInt64(int64(x))
	case uint16:
		return e.encodeInt64(int64(x))
	case uint32:
		return e.encodeInt64(int64(x))
	case uint64:
		return e.encodeUint64(x)
	case float32:
		return e.encodeFloat32(x)
	case float64:
		return e.encodeFloat64(x)
	case string:
		return e.encodeString(x)
	case HighPrec:
		return e.encodeHighPrec(x)
	case []byte:
		return e.encodeBytes(x)
	case *big.Int:
		return e.encodeBig(x)
	case *Object:
		return e.encodeObject(x)
	}
	return e.encodeReflect(reflectValueOf(v))
}

func (e *encodeState) encodeReflect(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Invalid:
		return e.emit(typeNull)
	case reflect.Bool:
		if rv.Bool() {
			return e.emit(typeBoolTrue)
		}
		return e.emit(typeBoolFalse)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.encodeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.encodeUint64(rv.Uint())
	case reflect.Float32:
		return e.encodeFloat32(float32(rv.Float()))
	case reflect.Float64:
		return e.encodeFloat64(rv.Float())
	case reflect.String:
		if hp, ok := rv.Interface().(HighPrec); ok {
			return e.encodeHighPrec(hp)
		}
		return e.encodeString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.encodeBytes(byteSliceOf(rv))
		}
		return e.encodeSlice(rv)
	case reflect.Map:
		return e.encodeMap(rv)
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return e.emit(typeNull)
		}
		if o, ok := rv.Interface().(*Object); ok {
			return e.encodeObject(o)
		}
		return e.encode(rv.Elem().Interface())
	case reflect.Struct:
		if b, ok := rv.Interface().(big.Int); ok {
			return e.encodeBig(&b)
		}
	}
	return e.encodeDefault(rv)
}

// encodeDefault handles values of unsupported types: the configured
// fallback gets a chance to substitute an encodable value, otherwise the
// encode fails.
func (e *encodeState) encodeDefault(rv reflect.Value) error {
	if def := e.config.Default; def != nil {
		newv, err := def(rv.Interface())
		if err != nil {
			return err
		}
		if err := e.enter(0, " while encoding with default function"); err != nil {
			return err
		}
		err = e.encode(newv)
		e.leave(0)
		return err
	}
	return &EncoderError{fmt.Sprintf("Cannot encode item of type %s", rv.Type())}
}

// encodeInt64 emits num with the narrowest integer marker whose range
// contains it.
func (e *encodeState) encodeInt64(num int64) error {
	t := e.numtmp[:]
	switch {
	case num >= 0:
		switch {
		case num < 1<<8:
			t[0], t[1] = typeUint8, byte(num)
			return e.write(t[:2])
		case num < 1<<15:
			t[0] = typeInt16
			binary.BigEndian.PutUint16(t[1:], uint16(num))
			return e.write(t[:3])
		case num < 1<<31:
			t[0] = typeInt32
			binary.BigEndian.PutUint32(t[1:], uint32(num))
			return e.write(t[:5])
		}
	case num >= -(1 << 7):
		t[0], t[1] = typeInt8, byte(num)
		return e.write(t[:2])
	case num >= -(1 << 15):
		t[0] = typeInt16
		binary.BigEndian.PutUint16(t[1:], uint16(num))
		return e.write(t[:3])
	case num >= -(1 << 31):
		t[0] = typeInt32
		binary.BigEndian.PutUint32(t[1:], uint32(num))
		return e.write(t[:5])
	}
	t[0] = typeInt64
	binary.BigEndian.PutUint64(t[1:], uint64(num))
	return e.write(t[:9])
}

// encodeUint64 emits num as an integer, promoting values beyond the int64
// range to the high-precision type.
func (e *encodeState) encodeUint64(num uint64) error {
	if num > math.MaxInt64 {
		return e.writeHighPrec(strconv.FormatUint(num, 10))
	}
	return e.encodeInt64(int64(num))
}

// encodeBig emits an arbitrary-precision integer, using the regular
// integer markers whenever it fits int64.
func (e *encodeState) encodeBig(b *big.Int) error {
	if b == nil {
		return e.emit(typeNull)
	}
	if b.IsInt64() {
		return e.encodeInt64(b.Int64())
	}
	return e.writeHighPrec(b.String())
}

// encodeFloat32 emits f in the 4-byte float type; NaN and infinities
// become null.
func (e *encodeState) encodeFloat32(f float32) error {
	f64 := float64(f)
	if math.IsNaN(f64) || math.IsInf(f64, 0) {
		return e.emit(typeNull)
	}
	t := e.numtmp[:]
	t[0] = typeFloat32
	if err := floatPack4(f64, t[1:], false); err != nil {
		return err
	}
	return e.write(t[:5])
}

// encodeFloat64 classifies f per the wire rules: NaN and infinities become
// null, zeros use the 4-byte type, subnormals are promoted to
// high-precision, everything else uses the 4- or 8-byte type depending on
// range and the NoFloat32 preference.
func (e *encodeState) encodeFloat64(f float64) error {
	t := e.numtmp[:]
	switch abs := math.Abs(f); {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return e.emit(typeNull)
	case f == 0:
		t[0] = typeFloat32
		if err := floatPack4(f, t[1:], false); err != nil {
			return err
		}
		return e.write(t[:5])
	case abs < minNormal64:
		return e.writeHighPrec(strconv.FormatFloat(f, 'g', -1, 64))
	case !e.config.NoFloat32 && abs >= float32MinAbs && abs <= float32MaxAbs:
		t[0] = typeFloat32
		if err := floatPack4(f, t[1:], false); err != nil {
			return err
		}
		return e.write(t[:5])
	default:
		t[0] = typeFloat64
		floatPack8(f, t[1:], false)
		return e.write(t[:9])
	}
}

// encodeHighPrec emits a high-precision decimal. Non-finite values encode
// as null; text that is not a decimal at all is an error.
func (e *encodeState) encodeHighPrec(h HighPrec) error {
	finite, ok := parseDecimal(string(h))
	if !ok {
		return &EncoderError{fmt.Sprintf("invalid high-precision decimal %q", string(h))}
	}
	if !finite {
		return e.emit(typeNull)
	}
	return e.writeHighPrec(string(h))
}

func (e *encodeState) writeHighPrec(s string) error {
	if err := e.emit(typeHighPrec); err != nil {
		return err
	}
	if err := e.encodeInt64(int64(len(s))); err != nil {
		return err
	}
	return e.emits(s)
}

// encodeString emits s as char when its UTF-8 encoding is a single byte,
// as a length-prefixed string otherwise.
func (e *encodeState) encodeString(s string) error {
	if len(s) == 1 {
		return e.emit(typeChar, s[0])
	}
	if err := e.emit(typeString); err != nil {
		return err
	}
	if err := e.encodeInt64(int64(len(s))); err != nil {
		return err
	}
	return e.emits(s)
}

// encodeBytes emits b as a uint8-typed counted array, without a closing
// delimiter.
func (e *encodeState) encodeBytes(b []byte) error {
	if err := e.write(bytesArrayPrefix); err != nil {
		return err
	}
	if err := e.encodeInt64(int64(len(b))); err != nil {
		return err
	}
	return e.write(b)
}

// enter bumps the recursion depth and registers the container identity in
// the circular-reference set. id 0 means no identity to track.
func (e *encodeState) enter(id uintptr, recurseMsg string) error {
	if e.depth++; e.depth > e.maxDepth {
		return &EncoderError{"maximum recursion depth exceeded" + recurseMsg}
	}
	if id != 0 {
		if _, ok := e.seen[id]; ok {
			return ErrCircularReference
		}
		e.seen[id] = struct{}{}
	}
	return nil
}

func (e *encodeState) leave(id uintptr) {
	e.depth--
	if id != 0 {
		delete(e.seen, id)
	}
}

// identityOf returns the address identity used for circular-reference
// detection. Empty containers cannot contain themselves and are not
// tracked (all empty slices share one base address).
func identityOf(rv reflect.Value, l int) uintptr {
	if l == 0 {
		return 0
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Ptr:
		return rv.Pointer()
	case reflect.Array:
		if rv.CanAddr() {
			return rv.Addr().Pointer()
		}
	}
	return 0
}

func (e *encodeState) encodeSlice(rv reflect.Value) error {
	l := rv.Len()
	id := identityOf(rv, l)
	if err := e.enter(id, " while encoding a UBJSON array"); err != nil {
		return err
	}
	defer e.leave(id)

	if err := e.emit(arrayStart); err != nil {
		return err
	}
	if e.config.ContainerCount {
		if err := e.emit(containerCount); err != nil {
			return err
		}
		if err := e.encodeInt64(int64(l)); err != nil {
			return err
		}
	}
	for i := 0; i < l; i++ {
		if err := e.encode(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	if !e.config.ContainerCount {
		return e.emit(arrayEnd)
	}
	return nil
}

func (e *encodeState) encodeMap(rv reflect.Value) error {
	l := rv.Len()
	id := identityOf(rv, l)
	if err := e.enter(id, " while encoding a UBJSON object"); err != nil {
		return err
	}
	defer e.leave(id)

	// common case without reflection over the values
	if m, ok := rv.Interface().(map[string]any); ok {
		keys := maps.Keys(m)
		if e.config.SortKeys {
			slices.Sort(keys)
		}
		if err := e.writeObjectHead(l); err != nil {
			return err
		}
		for _, k := range keys {
			if err := e.writeObjectKey(k); err != nil {
				return err
			}
			if err := e.encode(m[k]); err != nil {
				return err
			}
		}
		return e.writeObjectTail()
	}

	items := make([]ObjectEntry, 0, l)
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}
		if k.Kind() != reflect.String {
			return &EncoderError{"Mapping keys can only be strings"}
		}
		items = append(items, ObjectEntry{Key: k.String(), Value: iter.Value().Interface()})
	}
	if e.config.SortKeys {
		slices.SortFunc(items, func(a, b ObjectEntry) int {
			return strings.Compare(a.Key, b.Key)
		})
	}
	if err := e.writeObjectHead(l); err != nil {
		return err
	}
	for _, item := range items {
		if err := e.writeObjectKey(item.Key); err != nil {
			return err
		}
		if err := e.encode(item.Value); err != nil {
			return err
		}
	}
	return e.writeObjectTail()
}

func (e *encodeState) encodeObject(o *Object) error {
	if o == nil {
		return e.emit(typeNull)
	}
	l := o.Len()
	id := identityOf(reflectValueOf(o), l)
	if err := e.enter(id, " while encoding a UBJSON object"); err != nil {
		return err
	}
	defer e.leave(id)

	entries := o.entries
	if e.config.SortKeys {
		entries = o.Entries()
		slices.SortFunc(entries, func(a, b ObjectEntry) int {
			return strings.Compare(a.Key, b.Key)
		})
	}
	if err := e.writeObjectHead(l); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := e.writeObjectKey(entry.Key); err != nil {
			return err
		}
		if err := e.encode(entry.Value); err != nil {
			return err
		}
	}
	return e.writeObjectTail()
}

func (e *encodeState) writeObjectHead(l int) error {
	if err := e.emit(objectStart); err != nil {
		return err
	}
	if e.config.ContainerCount {
		if err := e.emit(containerCount); err != nil {
			return err
		}
		return e.encodeInt64(int64(l))
	}
	return nil
}

// writeObjectKey emits an object key: length then UTF-8 bytes, without a
// type marker (the key type is implicitly string).
func (e *encodeState) writeObjectKey(key string) error {
	if err := e.encodeInt64(int64(len(key))); err != nil {
		return err
	}
	return e.emits(key)
}

func (e *encodeState) writeObjectTail() error {
	if !e.config.ContainerCount {
		return e.emit(objectEnd)
	}
	return nil
}

func reflectValueOf(v any) reflect.Value {
	rv, ok := v.(reflect.Value)
	if !ok {
		rv = reflect.ValueOf(v)
	}
	return rv
}

func byteSliceOf(rv reflect.Value) []byte {
	if rv.Kind() == reflect.Slice && rv.Type().Elem() == byteType {
		return rv.Bytes()
	}
	b := make([]byte, rv.Len())
	for i := range b {
		b[i] = byte(rv.Index(i).Uint())
	}
	return b
}

var byteType = reflect.TypeOf(byte(0))
