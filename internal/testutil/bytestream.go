package testutil

import "encoding/binary"

// ByteStream reads bytes sequentially from a byte slice.
//
// Used by fuzz tests to derive cache operations from fuzz input. When the
// stream is exhausted all reads return zero, so the same input always
// produces the same operations.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal) derived from the next byte.
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextUint64 reads 8 bytes little endian, zero padded.
func (s *ByteStream) NextUint64() uint64 {
	var buf [8]byte
	for i := range buf {
		buf[i] = s.NextByte()
	}

	return binary.LittleEndian.Uint64(buf[:])
}
