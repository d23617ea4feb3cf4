package bucketcache

import (
	"encoding/binary"
	"math/bits"
)

// fibMul is 2^64 / φ, the multiplier for Fibonacci hashing.
const fibMul = 0x9E3779B97F4A7C15

// bucketFor maps key onto [0, n). The multiply spreads sequential keys over
// the whole 64-bit range; the high word of the second multiply reduces that
// range to n without a modulo bias.
func bucketFor(key uint64, n uint64) uint64 {
	hi, _ := bits.Mul64(key*fibMul, n)

	return hi
}

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
	suffixLen   = 8
)

// StringHash hashes s with a bias towards its last 8 bytes, where keys such
// as "user:1042" or "tenant/acme/row/77" differ. The prefix is folded in
// with FNV-1a; the suffix enters as one little-endian word right before the
// final mix so it spreads over all output bits.
func StringHash(s string) uint64 {
	cut := max(len(s)-suffixLen, 0)

	h := uint64(fnvOffset64)
	for i := range cut {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}

	var buf [suffixLen]byte
	copy(buf[:], s[cut:])

	h ^= binary.LittleEndian.Uint64(buf[:]) * fibMul
	h ^= uint64(len(s))

	return mix64(h)
}

// mix64 is the splitmix64 finalizer.
func mix64(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xBF58476D1CE4E5B9
	h ^= h >> 27
	h *= 0x94D049BB133111EB
	h ^= h >> 31

	return h
}
