package ubjson

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DecoderError is the error that Decode returns on malformed or truncated
// input. Offset is the number of bytes the decoder had consumed when the
// error was detected.
type DecoderError struct {
	Msg    string
	Offset int64
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("%s (at byte [%d])", e.Msg, e.Offset)
}

// A Decoder decodes values from a UBJSON byte stream.
type Decoder struct {
	buf      readBuffer
	config   *DecoderConfig
	depth    int
	maxDepth int
	interned map[string]string
}

// DecoderConfig allows to tune Decoder.
type DecoderConfig struct {
	// NoBytes, if set, decodes uint8-typed counted arrays as []any of
	// int64 instead of []byte.
	NoBytes bool

	// ObjectHook, if not nil, is called with every decoded object; its
	// result is used in place of the Object. Ignored for objects when
	// ObjectPairsHook is also set.
	ObjectHook func(obj *Object) (any, error)

	// ObjectPairsHook, if not nil, is called with every key/value pair
	// of a decoded object in stream order, duplicates included; its
	// result is used in place of the object. Takes precedence over
	// ObjectHook.
	ObjectPairsHook func(pairs []ObjectEntry) (any, error)

	// InternObjectKeys deduplicates object key strings within one
	// Decoder, so repeated keys share storage.
	InternObjectKeys bool

	// MaxDepth bounds container nesting. 0 means the default of 1000.
	MaxDepth int
}

// NewDecoder constructs a new Decoder which will decode the UBJSON stream
// in r. If r is seekable, reads are buffered and any buffered bytes past
// the decoded value are returned to r with a relative seek when Decode
// finishes; otherwise the stream is consumed exactly as needed.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithConfig(r, &DecoderConfig{})
}

// NewDecoderWithConfig is similar to NewDecoder, but allows specifying
// decoder configuration.
func NewDecoderWithConfig(r io.Reader, config *DecoderConfig) *Decoder {
	var buf readBuffer
	if s, ok := r.(io.Seeker); ok {
		buf = &seekBuffer{r: r, s: s}
	} else {
		buf = &streamBuffer{r: r}
	}
	return newDecoder(buf, config)
}

// Unmarshal decodes a single value from the UBJSON encoding in data.
func Unmarshal(data []byte) (any, error) {
	return UnmarshalWithConfig(data, &DecoderConfig{})
}

// UnmarshalWithConfig is similar to Unmarshal, but allows specifying
// decoder configuration.
func UnmarshalWithConfig(data []byte, config *DecoderConfig) (any, error) {
	return newDecoder(&fixedBuffer{data: data}, config).Decode()
}

func newDecoder(buf readBuffer, config *DecoderConfig) *Decoder {
	maxDepth := config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Decoder{buf: buf, config: config, maxDepth: maxDepth}
}

// Decode decodes one value from the stream and returns it. On a seekable
// source, unconsumed buffered bytes are seeked back even when decoding
// fails; a seek failure is reported only if decoding itself succeeded.
func (d *Decoder) Decode() (any, error) {
	d.depth = 0
	v, err := d.decodeValue(typeNone)
	ferr := d.buf.finish()
	if err != nil {
		return nil, err
	}
	if ferr != nil {
		return nil, ferr
	}
	return v, nil
}

// raise produces a DecoderError at the current stream offset.
func (d *Decoder) raise(msg string) error {
	return &DecoderError{Msg: msg, Offset: d.buf.total()}
}

// read delivers exactly n bytes, either borrowed from the buffer until the
// next read or copied into dst if provided. Anything short fails.
func (d *Decoder) read(n int, dst []byte, item string) ([]byte, error) {
	chunk, err := d.buf.read(n, dst)
	if err != nil {
		return nil, err
	}
	switch {
	case len(chunk) == n:
		return chunk, nil
	case len(chunk) == 0:
		return nil, d.raise("Insufficient input (" + item + ")")
	default:
		return nil, d.raise("Insufficient (partial) input (" + item + ")")
	}
}

func (d *Decoder) readChar(item string) (byte, error) {
	chunk, err := d.read(1, nil, item)
	if err != nil {
		return 0, err
	}
	return chunk[0], nil
}

func (d *Decoder) decodeInt8() (int64, error) {
	b, err := d.readChar("int8")
	if err != nil {
		return 0, err
	}
	return int64(int8(b)), nil
}

func (d *Decoder) decodeUint8() (int64, error) {
	b, err := d.readChar("uint8")
	if err != nil {
		return 0, err
	}
	return int64(b), nil
}

// decodeInt reads a size-byte big-endian integer, sign-extending for
// widths below 8 bytes.
func (d *Decoder) decodeInt(size int, item string) (int64, error) {
	raw, err := d.read(size, nil, item)
	if err != nil {
		return 0, err
	}
	var value int64
	for _, c := range raw {
		value = value<<8 | int64(c)
	}
	if size < 8 {
		value |= -(value & (1 << uint(8*size-1)))
	}
	return value, nil
}

// decodeIntNonNegative reads the integer appearing after H, S, # and
// object keys: any of the integer markers followed by its payload. given
// is the already-read marker, or typeNone to read one.
func (d *Decoder) decodeIntNonNegative(given byte) (int64, error) {
	marker := given
	if marker == typeNone {
		var err error
		marker, err = d.readChar("Length marker")
		if err != nil {
			return 0, err
		}
	}

	var value int64
	var err error
	switch marker {
	case typeInt8:
		value, err = d.decodeInt8()
	case typeUint8:
		value, err = d.decodeUint8()
	case typeInt16:
		value, err = d.decodeInt(2, "int16/32")
	case typeInt32:
		value, err = d.decodeInt(4, "int16/32")
	case typeInt64:
		value, err = d.decodeInt(8, "int64")
	default:
		return 0, d.raise("Integer marker expected")
	}
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, d.raise("Negative count/length unexpected")
	}
	return value, nil
}

// lengthToInt narrows a decoded length/count to the platform int used for
// allocation.
func (d *Decoder) lengthToInt(v int64) (int, error) {
	if int64(int(v)) != v {
		return 0, d.raise("Count/length too large")
	}
	return int(v), nil
}

func (d *Decoder) decodeFloat32() (float32, error) {
	raw, err := d.read(4, nil, "float32")
	if err != nil {
		return 0, err
	}
	return floatUnpack4(raw, false), nil
}

func (d *Decoder) decodeFloat64() (float64, error) {
	raw, err := d.read(8, nil, "float64")
	if err != nil {
		return 0, err
	}
	return floatUnpack8(raw, false), nil
}

func (d *Decoder) decodeHighPrec() (HighPrec, error) {
	length, err := d.decodeIntNonNegative(typeNone)
	if err != nil {
		return "", err
	}
	n, err := d.lengthToInt(length)
	if err != nil {
		return "", err
	}
	raw, err := d.read(n, nil, "highprec")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", d.raise("Failed to decode utf8: highprec")
	}
	s := string(raw)
	if _, ok := parseDecimal(s); !ok {
		return "", d.raise("Failed to decode highprec")
	}
	return HighPrec(s), nil
}

func (d *Decoder) decodeChar() (string, error) {
	b, err := d.readChar("char")
	if err != nil {
		return "", err
	}
	if b >= utf8.RuneSelf {
		return "", d.raise("Failed to decode utf8: char")
	}
	return string([]byte{b}), nil
}

func (d *Decoder) decodeString() (string, error) {
	length, err := d.decodeIntNonNegative(typeNone)
	if err != nil {
		return "", err
	}
	n, err := d.lengthToInt(length)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := d.read(n, nil, "string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", d.raise("Failed to decode utf8: string")
	}
	return string(raw), nil
}

// containerParams is the result of negotiating the optional $type and
// #count prefixes at the start of an array or object.
type containerParams struct {
	// next marker after the container parameters
	marker byte
	// whether the container has its count specified
	counting bool
	// number of elements (valid only if counting)
	count int64
	// fixed type of the contained values, or typeNone
	typ byte
}

func (d *Decoder) containerParams(inMapping bool) (containerParams, error) {
	var p containerParams

	marker, err := d.readChar("container type, count or 1st key/value type")
	if err != nil {
		return p, err
	}
	if marker == containerType {
		marker, err = d.readChar("container type")
		if err != nil {
			return p, err
		}
		if !isContainerType(marker) {
			return p, d.raise("Invalid container type")
		}
		p.typ = marker
		marker, err = d.readChar("container count or 1st key/value type")
		if err != nil {
			return p, err
		}
	} else {
		p.typ = typeNone
	}

	switch {
	case marker == containerCount:
		p.counting = true
		p.count, err = d.decodeIntNonNegative(typeNone)
		if err != nil {
			return p, err
		}
		// reading ahead just to capture the first marker, which will
		// not exist in the stream if the value type is fixed
		if p.count > 0 && (inMapping || p.typ == typeNone) {
			marker, err = d.readChar("1st key/value type")
			if err != nil {
				return p, err
			}
		} else {
			marker = p.typ
		}
	case p.typ == typeNone:
		// count not provided but indicate that
		p.count = 1
		p.counting = false
	default:
		return p, d.raise("Container type without count")
	}

	p.marker = marker
	return p, nil
}

func (d *Decoder) decodeArray() (any, error) {
	p, err := d.containerParams(false)
	if err != nil {
		return nil, err
	}
	marker := p.marker

	if p.counting {
		n, err := d.lengthToInt(p.count)
		if err != nil {
			return nil, err
		}

		// special case - byte array
		if p.typ == typeUint8 && !d.config.NoBytes {
			b := make([]byte, n)
			if _, err := d.read(n, b, "bytes array"); err != nil {
				return nil, err
			}
			return b, nil
		}

		// special case - no data types
		if isNoDataType(p.typ) {
			list := make([]any, n)
			value := noDataValue(p.typ)
			for i := range list {
				list[i] = value
			}
			return list, nil
		}

		// count known, so the backing array is allocated up front
		list := make([]any, n)
		pos := 0
		for count := n; count > 0; {
			if marker == typeNoop {
				marker, err = d.readChar("array value type marker (sized, after no-op)")
				if err != nil {
					return nil, err
				}
				continue
			}
			value, err := d.decodeValue(marker)
			if err != nil {
				return nil, err
			}
			list[pos] = value
			pos++
			count--
			if count > 0 && p.typ == typeNone {
				marker, err = d.readChar("array value type marker (sized)")
				if err != nil {
					return nil, err
				}
			}
		}
		return list, nil
	}

	list := []any{}
	for marker != arrayEnd {
		if marker == typeNoop {
			marker, err = d.readChar("array value type marker (after no-op)")
			if err != nil {
				return nil, err
			}
			continue
		}
		value, err := d.decodeValue(marker)
		if err != nil {
			return nil, err
		}
		list = append(list, value)

		if p.typ == typeNone {
			marker, err = d.readChar("array value type marker")
			if err != nil {
				return nil, err
			}
		}
	}
	return list, nil
}

// objectKey decodes an object key: a length integer (whose marker was
// already read) followed by UTF-8 bytes. There is no 'S' marker, the key
// type is implicit.
func (d *Decoder) objectKey(marker byte) (string, error) {
	length, err := d.decodeIntNonNegative(marker)
	if err != nil {
		return "", err
	}
	n, err := d.lengthToInt(length)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := d.read(n, nil, "string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", d.raise("Failed to decode utf8: string")
	}
	key := string(raw)
	if d.config.InternObjectKeys {
		key = d.intern(key)
	}
	return key, nil
}

// decodeObjectKey wraps objectKey failures with the object-key context,
// leaving source errors untouched.
func (d *Decoder) decodeObjectKey(marker byte, context string) (string, error) {
	key, err := d.objectKey(marker)
	if err != nil {
		var de *DecoderError
		if errors.As(err, &de) {
			return "", d.raise("Failed to decode object key (" + context + ")")
		}
		return "", err
	}
	return key, nil
}

func (d *Decoder) intern(s string) string {
	if v, ok := d.interned[s]; ok {
		return v
	}
	if d.interned == nil {
		d.interned = make(map[string]string)
	}
	d.interned[s] = s
	return s
}

func (d *Decoder) decodeObject() (any, error) {
	p, err := d.containerParams(true)
	if err != nil {
		return nil, err
	}
	marker := p.marker

	obj := NewObject()

	// special case: no data values (keys only)
	if p.counting && isNoDataType(p.typ) {
		value := noDataValue(p.typ)
		for count := p.count; count > 0; {
			key, err := d.decodeObjectKey(marker, "sized, no data")
			if err != nil {
				return nil, err
			}
			obj.Set(key, value)
			count--
			if count > 0 {
				marker, err = d.readChar("object key length")
				if err != nil {
					return nil, err
				}
			}
		}
	} else {
		for count := p.count; count > 0 && (p.counting || marker != objectEnd); {
			if marker == typeNoop {
				marker, err = d.readChar("object key length")
				if err != nil {
					return nil, err
				}
				continue
			}
			key, err := d.decodeObjectKey(marker, "sized/unsized")
			if err != nil {
				return nil, err
			}
			value, err := d.decodeValue(p.typ)
			if err != nil {
				return nil, err
			}
			obj.Set(key, value)

			if p.counting {
				count--
			}
			if count > 0 {
				marker, err = d.readChar("object key length")
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if hook := d.config.ObjectHook; hook != nil {
		return hook(obj)
	}
	return obj, nil
}

func (d *Decoder) decodeObjectWithPairsHook() (any, error) {
	p, err := d.containerParams(true)
	if err != nil {
		return nil, err
	}
	marker := p.marker
	hook := d.config.ObjectPairsHook

	if p.counting {
		n, err := d.lengthToInt(p.count)
		if err != nil {
			return nil, err
		}
		pairs := make([]ObjectEntry, n)
		pos := 0

		// special case: no data values (keys only)
		if isNoDataType(p.typ) {
			value := noDataValue(p.typ)
			for count := n; count > 0; {
				key, err := d.decodeObjectKey(marker, "sized, no data")
				if err != nil {
					return nil, err
				}
				pairs[pos] = ObjectEntry{Key: key, Value: value}
				pos++
				count--
				if count > 0 {
					marker, err = d.readChar("object key length")
					if err != nil {
						return nil, err
					}
				}
			}
		} else {
			for count := n; count > 0; {
				if marker == typeNoop {
					marker, err = d.readChar("object key length (sized, after no-op)")
					if err != nil {
						return nil, err
					}
					continue
				}
				key, err := d.decodeObjectKey(marker, "sized")
				if err != nil {
					return nil, err
				}
				value, err := d.decodeValue(p.typ)
				if err != nil {
					return nil, err
				}
				pairs[pos] = ObjectEntry{Key: key, Value: value}
				pos++
				count--
				if count > 0 {
					marker, err = d.readChar("object key length (sized)")
					if err != nil {
						return nil, err
					}
				}
			}
		}
		return hook(pairs)
	}

	pairs := []ObjectEntry{}
	for marker != objectEnd {
		if marker == typeNoop {
			marker, err = d.readChar("object key length (after no-op)")
			if err != nil {
				return nil, err
			}
			continue
		}
		key, err := d.decodeObjectKey(marker, "unsized")
		if err != nil {
			return nil, err
		}
		value, err := d.decodeValue(p.typ)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, ObjectEntry{Key: key, Value: value})

		marker, err = d.readChar("object key length")
		if err != nil {
			return nil, err
		}
	}
	return hook(pairs)
}

// decodeValue decodes one value. given is the value's already-read marker,
// or typeNone to read one from the stream.
func (d *Decoder) decodeValue(given byte) (any, error) {
	marker := given
	if marker == typeNone {
		var err error
		marker, err = d.readChar("Type marker")
		if err != nil {
			return nil, err
		}
	}

	switch marker {
	case typeNull:
		return nil, nil
	case typeBoolTrue:
		return true, nil
	case typeBoolFalse:
		return false, nil
	case typeChar:
		return d.decodeChar()
	case typeString:
		return d.decodeString()
	case typeInt8:
		return d.decodeInt8()
	case typeUint8:
		return d.decodeUint8()
	case typeInt16:
		return d.decodeInt(2, "int16/32")
	case typeInt32:
		return d.decodeInt(4, "int16/32")
	case typeInt64:
		return d.decodeInt(8, "int64")
	case typeFloat32:
		return d.decodeFloat32()
	case typeFloat64:
		return d.decodeFloat64()
	case typeHighPrec:
		return d.decodeHighPrec()
	case arrayStart:
		if err := d.enter("whilst decoding a UBJSON array"); err != nil {
			return nil, err
		}
		defer d.leave()
		return d.decodeArray()
	case objectStart:
		if err := d.enter("whilst decoding a UBJSON object"); err != nil {
			return nil, err
		}
		defer d.leave()
		if d.config.ObjectPairsHook != nil {
			return d.decodeObjectWithPairsHook()
		}
		return d.decodeObject()
	default:
		return nil, d.raise("Invalid marker")
	}
}

func (d *Decoder) enter(recurseMsg string) error {
	if d.depth++; d.depth > d.maxDepth {
		return d.raise("maximum recursion depth exceeded " + recurseMsg)
	}
	return nil
}

func (d *Decoder) leave() {
	d.depth--
}

// readBuffer is the contract shared by the three input strategies. read
// attempts to deliver n bytes: the returned chunk is either borrowed and
// valid only until the next read, or is dst when dst is non-nil. A chunk
// shorter than n means the input ended; errors are source errors only.
// total reports bytes delivered to the decoder, not bytes fetched.
type readBuffer interface {
	read(n int, dst []byte) ([]byte, error)
	total() int64
	finish() error
}

// fixedBuffer reads from an in-memory byte slice.
type fixedBuffer struct {
	data []byte
	pos  int
}

func (b *fixedBuffer) read(n int, dst []byte) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if b.pos >= len(b.data) {
		return nil, nil
	}
	if m := len(b.data) - b.pos; m < n {
		n = m
	}
	chunk := b.data[b.pos : b.pos+n]
	b.pos += n
	if dst != nil {
		copy(dst, chunk)
		return dst[:n], nil
	}
	return chunk, nil
}

func (b *fixedBuffer) total() int64 { return int64(b.pos) }

func (b *fixedBuffer) finish() error { return nil }

// streamBuffer pulls from a non-seekable reader, fetching exactly what the
// decoder asks for.
type streamBuffer struct {
	r         io.Reader
	chunk     []byte // reusable read destination
	totalRead int64
}

func (b *streamBuffer) read(n int, dst []byte) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	p := dst
	if p == nil {
		if cap(b.chunk) < n {
			b.chunk = make([]byte, n)
		}
		p = b.chunk
	}
	m, err := io.ReadFull(b.r, p[:n])
	b.totalRead += int64(m)
	switch err {
	case nil:
		return p[:n], nil
	case io.EOF:
		return nil, nil
	case io.ErrUnexpectedEOF:
		return p[:m], nil
	default:
		return nil, err
	}
}

func (b *streamBuffer) total() int64 { return b.totalRead }

func (b *streamBuffer) finish() error { return nil }

// seekBuffer reads from a seekable source through an internal window of at
// least bufferFPSize bytes. Reads spanning the window copy its tail plus a
// fresh fetch into a scratch buffer. On finish, unconsumed window bytes
// are returned to the source with a negative relative seek.
type seekBuffer struct {
	r         io.Reader
	s         io.Seeker
	buf       []byte // backing storage for view
	view      []byte // fetched but not fully consumed window
	pos       int    // consumed within view
	totalRead int64
	tmp       []byte // scratch for reads spanning the window
}

func (b *seekBuffer) read(n int, dst []byte) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	// previously handed out scratch is no longer needed
	b.tmp = nil

	// enough data in the current window
	if n <= len(b.view)-b.pos {
		old := b.pos
		b.pos += n
		b.totalRead += int64(n)
		if dst != nil {
			copy(dst, b.view[old:old+n])
			return dst[:n], nil
		}
		return b.view[old : old+n], nil
	}

	// spanning read: combine the window remainder with a fresh fetch
	out := dst
	if out == nil {
		b.tmp = make([]byte, n)
		out = b.tmp
	}
	remaining := len(b.view) - b.pos
	if remaining > 0 {
		copy(out, b.view[b.pos:])
		b.totalRead += int64(remaining)
	}
	b.pos = 0
	b.view = nil

	fetch := n - remaining
	if fetch < bufferFPSize {
		fetch = bufferFPSize
	}
	if cap(b.buf) < fetch {
		b.buf = make([]byte, fetch)
	}
	m, err := io.ReadFull(b.r, b.buf[:fetch])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	b.view = b.buf[:m]

	if remaining == 0 && m == 0 {
		return nil, nil
	}
	avail := n
	if remaining+m < n {
		avail = remaining + m
	}
	b.pos = avail - remaining
	b.totalRead += int64(b.pos)
	copy(out[remaining:], b.view[:b.pos])
	return out[:avail], nil
}

func (b *seekBuffer) total() int64 { return b.totalRead }

// finish rewinds the source past the decoded value, handing unconsumed
// window bytes back to it.
func (b *seekBuffer) finish() error {
	var err error
	if len(b.view) > b.pos {
		_, err = b.s.Seek(int64(b.pos-len(b.view)), io.SeekCurrent)
	}
	b.view = nil
	b.pos = 0
	b.tmp = nil
	return err
}
