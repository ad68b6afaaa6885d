package ubjson

import (
	"bytes"
	"math"
	"testing"
)

func TestFloatPack4(t *testing.T) {
	var b [4]byte

	if err := floatPack4(1.5, b[:], false); err != nil {
		t.Fatalf("pack4: %v", err)
	}
	if !bytes.Equal(b[:], []byte{0x3F, 0xC0, 0x00, 0x00}) {
		t.Errorf("pack4 big endian: % x", b)
	}

	if err := floatPack4(1.5, b[:], true); err != nil {
		t.Fatalf("pack4: %v", err)
	}
	if !bytes.Equal(b[:], []byte{0x00, 0x00, 0xC0, 0x3F}) {
		t.Errorf("pack4 little endian: % x", b)
	}

	// out of float32 range
	if err := floatPack4(1e39, b[:], false); err != errFloat32Overflow {
		t.Errorf("pack4 overflow: got %v", err)
	}
	if err := floatPack4(-1e39, b[:], false); err != errFloat32Overflow {
		t.Errorf("pack4 negative overflow: got %v", err)
	}

	// non-finite values pack faithfully
	if err := floatPack4(math.Inf(1), b[:], false); err != nil {
		t.Fatalf("pack4 inf: %v", err)
	}
	if v := floatUnpack4(b[:], false); !math.IsInf(float64(v), 1) {
		t.Errorf("inf round trip: %v", v)
	}
	if err := floatPack4(math.NaN(), b[:], false); err != nil {
		t.Fatalf("pack4 nan: %v", err)
	}
	if v := floatUnpack4(b[:], false); !math.IsNaN(float64(v)) {
		t.Errorf("nan round trip: %v", v)
	}
}

func TestFloatPack8(t *testing.T) {
	var b [8]byte

	floatPack8(math.Pi, b[:], false)
	if v := floatUnpack8(b[:], false); v != math.Pi {
		t.Errorf("pi round trip: %v", v)
	}

	floatPack8(math.Pi, b[:], true)
	if v := floatUnpack8(b[:], true); v != math.Pi {
		t.Errorf("pi little endian round trip: %v", v)
	}

	floatPack8(math.Inf(-1), b[:], false)
	if v := floatUnpack8(b[:], false); !math.IsInf(v, -1) {
		t.Errorf("-inf round trip: %v", v)
	}

	// subnormals survive the double round trip
	floatPack8(5e-324, b[:], false)
	if v := floatUnpack8(b[:], false); v != 5e-324 {
		t.Errorf("subnormal round trip: %v", v)
	}
}

func TestFloatUnpack4(t *testing.T) {
	v := floatUnpack4([]byte{0x3F, 0xC0, 0x00, 0x00}, false)
	if v != 1.5 {
		t.Errorf("unpack4: %v", v)
	}
	v = floatUnpack4([]byte{0x7F, 0xC0, 0x00, 0x00}, false)
	if !math.IsNaN(float64(v)) {
		t.Errorf("unpack4 nan: %v", v)
	}
}
