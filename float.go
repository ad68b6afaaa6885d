package ubjson
// IEEE-754 pack/unpack over byte strings. UBJSON is big endian on the wire
// so codec callers pass littleEndian=false.

import (
	"encoding/binary"
	"errors"
	"math"
)

var errFloat32Overflow = errors.New("float too large to pack with f format")

// floatPack4 packs f into b[0:4] as an IEEE-754 single. Values whose
// magnitude exceeds the float32 range cannot be represented and fail;
// NaN and infinities pack faithfully.
func floatPack4(f float64, b []byte, littleEndian bool) error {
	if !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return errFloat32Overflow
	}
	bits := math.Float32bits(float32(f))
	if littleEndian {
		binary.LittleEndian.PutUint32(b[:4], bits)
	} else {
		binary.BigEndian.PutUint32(b[:4], bits)
	}
	return nil
}

// floatPack8 packs f into b[0:8] as an IEEE-754 double.
func floatPack8(f float64, b []byte, littleEndian bool) {
	bits := math.Float64bits(f)
	if littleEndian {
		binary.LittleEndian.PutUint64(b[:8], bits)
	} else {
		binary.BigEndian.PutUint64(b[:8], bits)
	}
}

// floatUnpack4 decodes an IEEE-754 single from b[0:4]. NaN and infinities
// decode faithfully.
func floatUnpack4(b []byte, littleEndian bool) float32 {
	var bits uint32
	if littleEndian {
		bits = binary.LittleEndian.Uint32(b[:4])
	} else {
		bits = binary.BigEndian.Uint32(b[:4])
	}
	return math.Float32frombits(bits)
}

// floatUnpack8 decodes an IEEE-754 double from b[0:8].
func floatUnpack8(b []byte, littleEndian bool) float64 {
	var bits uint64
	if littleEndian {
		bits = binary.LittleEndian.Uint64(b[:8])
	} else {
		bits = binary.BigEndian.Uint64(b[:8])
	}
	return math.Float64frombits(bits)
}
