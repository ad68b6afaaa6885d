package ubjson

import (
	"hash/maphash"
)

// maphash_String is the hash function behind Object's key index. It spells
// out the maphash.Hash form because maphash.String only exists since
// go1.19 and this module keeps a go1.18 floor.
func maphash_String(seed maphash.Seed, key string) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteString(key)
	return h.Sum64()
}
