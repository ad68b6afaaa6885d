//go:build gofuzz

package ubjson

import (
	"bytes"
	"fmt"
)

func Fuzz(data []byte) int {
	// obj = decode(data) - this tests things like stack overflow in Decoder
	obj, err := Unmarshal(data)
	if err != nil {
		return 0
	}

	// assert encode(decode(encode(obj))) == encode(obj)
	//
	// this tests that Encoder and Decoder are consistent: obj - as we got
	// it from a successful decode - is known to contain only supported
	// types, so re-encoding it must succeed and must be canonical: one
	// more decode/encode round must reproduce the same bytes.
	b1, err := Marshal(obj)
	if err != nil {
		panic(fmt.Sprintf("re-encode error: %s", err))
	}

	obj2, err := Unmarshal(b1)
	if err != nil {
		panic(fmt.Sprintf("decode back error: %s\nubjson: %x", err, b1))
	}

	b2, err := Marshal(obj2)
	if err != nil {
		panic(fmt.Sprintf("re-encode 2 error: %s", err))
	}

	if !bytes.Equal(b1, b2) {
		panic(fmt.Sprintf("encode·decode·encode != encode:\nhave: %x\nwant: %x", b2, b1))
	}

	return 1
}
