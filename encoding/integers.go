package encoding

import "encoding/binary"

// padTo grows b to n bytes, zero-filling the tail, when it is short. A
// truncated read is tolerated as implicitly zero rather than treated as a
// decode error, matching the rest of this package's lenient decode style.
func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	padded := make([]byte, n)
	copy(padded, b)
	return padded
}

// EncUint64 encodes v as 8 little-endian bytes.
func EncUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DecUint64 decodes the leading 8 bytes of b as a little-endian uint64.
func DecUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(padTo(b, 8))
}

// EncInt64 encodes v as 8 little-endian bytes.
func EncInt64(v int64) []byte {
	return EncUint64(uint64(v))
}

// DecInt64 decodes the leading 8 bytes of b as a little-endian int64.
func DecInt64(b []byte) int64 {
	return int64(DecUint64(b))
}

// EncLen encodes a slice/string length prefix as 4 little-endian bytes.
func EncLen(n int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

// DecLen decodes a 4-byte little-endian length prefix.
func DecLen(b []byte) int {
	return int(binary.LittleEndian.Uint32(padTo(b, 4)))
}
