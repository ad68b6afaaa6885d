// Package ubjson implements encoding and decoding of the Universal Binary
// JSON format, Draft 12 (https://ubjson.org).
//
// Use Marshal/Unmarshal to convert in between values and byte slices:
//
//	data, err := ubjson.Marshal(obj)
//	obj, err := ubjson.Unmarshal(data)
//
// Use Encoder to write a value to an output stream and Decoder to read one
// from an input stream:
//
//	e := ubjson.NewEncoder(w)
//	err := e.Encode(obj)
//
//	d := ubjson.NewDecoder(r)
//	obj, err := d.Decode() // obj is any, holding the decoded value
//
// The following table summarizes the mapping in between UBJSON and Go:
//
//	UBJSON             Go
//	------             --
//
//	null (Z)        ↔  nil
//	true/false      ↔  bool
//	int (i U I l L) ↔  int64          (+)
//	int             ←  int, intX, uintX, *big.Int
//	float32 (d)     ↔  float32
//	float64 (D)     ↔  float64
//	high-prec (H)   ↔  ubjson.HighPrec (~)
//	char (C)        ↔  string of length 1
//	string (S)      ↔  string
//	[$U#... bytes   ↔  []byte         (^)
//	array           ↔  []any
//	object          ↔  *ubjson.Object (%)
//	object          ←  map with string keys
//
// (+) whichever integer marker a value was encoded with, it decodes to
// int64; encoding always picks the narrowest marker that fits, and values
// outside the int64 range travel as high-precision decimals.
//
// (~) HighPrec carries the canonical decimal string of an
// arbitrary-precision decimal. Non-finite decimals (NaN, Infinity) cannot
// be represented on the wire and encode as null.
//
// (^) a counted array with fixed type uint8 is the byte-array form; set
// DecoderConfig.NoBytes to decode it as []any of int64 instead.
//
// (%) Object preserves the insertion order of its keys. On encode, plain
// Go maps are also accepted, but their iteration order is unspecified
// unless EncoderConfig.SortKeys is set.
//
// Streams produced with EncoderConfig.ContainerCount carry explicit
// element counts instead of closing delimiters; the decoder handles both
// forms, as well as fixed-type containers, transparently.
//
// When decoding from an io.Reader that also implements io.Seeker, reads
// are buffered and the source is repositioned to just past the decoded
// value when Decode returns. For non-seekable readers buffering is not
// used, so the stream is consumed exactly as far as the decoded value
// reaches.
package ubjson
