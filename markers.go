package ubjson

// Type markers (UBJSON Draft-12)
const (
	// Value types

	typeNull      byte = 'Z' // null; no payload
	typeNoop      byte = 'N' // no-op; filler inside containers, never a value
	typeBoolTrue  byte = 'T' // true; no payload
	typeBoolFalse byte = 'F' // false; no payload
	typeInt8      byte = 'i' // signed 8-bit integer
	typeUint8     byte = 'U' // unsigned 8-bit integer
	typeInt16     byte = 'I' // signed 16-bit integer, big endian
	typeInt32     byte = 'l' // signed 32-bit integer, big endian
	typeInt64     byte = 'L' // signed 64-bit integer, big endian
	typeFloat32   byte = 'd' // IEEE-754 single, big endian
	typeFloat64   byte = 'D' // IEEE-754 double, big endian
	typeHighPrec  byte = 'H' // high-precision decimal; length + decimal string
	typeChar      byte = 'C' // single byte character
	typeString    byte = 'S' // length + UTF-8 bytes

	// Container delimiters

	objectStart byte = '{'
	objectEnd   byte = '}'
	arrayStart  byte = '['
	arrayEnd    byte = ']'

	// Optional container parameters

	containerType  byte = '$' // fixed element type follows
	containerCount byte = '#' // element count follows

	// typeNone is used internally to denote "no fixed type" in container
	// parameters. It never appears on the wire.
	typeNone byte = 0
)

// bytesArrayPrefix is emitted before []byte payloads: a uint8-typed,
// counted array. No arrayEnd follows since the count is specified.
var bytesArrayPrefix = []byte{arrayStart, containerType, typeUint8, containerCount}

// isNoDataType reports whether values of the given marker carry no payload
// bytes, so a typed counted container of them has no per-element data.
func isNoDataType(marker byte) bool {
	return marker == typeNull || marker == typeBoolTrue || marker == typeBoolFalse
}

// noDataValue returns the value denoted by a no-data marker.
func noDataValue(marker byte) any {
	switch marker {
	case typeBoolTrue:
		return true
	case typeBoolFalse:
		return false
	default: // typeNull
		return nil
	}
}

// isContainerType reports whether marker may follow a containerType ('$')
// prefix as the fixed element type of an array or object.
func isContainerType(marker byte) bool {
	switch marker {
	case typeNull, typeBoolTrue, typeBoolFalse, typeChar, typeString,
		typeInt8, typeUint8, typeInt16, typeInt32, typeInt64,
		typeFloat32, typeFloat64, typeHighPrec, arrayStart, objectStart:
		return true
	}
	return false
}
