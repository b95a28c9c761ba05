// Package bits holds the small bit and byte helpers shared by the APDU codec
// and the PICC engine.
//
// Bit positions follow the ISO/IEC 7816 convention: bit 1 is the least
// significant bit and bit 8 the most significant one.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with bit n raised.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n lowered.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// MaxUint24 is the largest value a 3-byte field can carry.
const MaxUint24 = 0xFFFFFF

// Uint24 decodes a 3-byte little-endian field, the encoding the card uses for
// file offsets, lengths and record counts.
func Uint24(b [3]byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// PutUint24 encodes v as a 3-byte little-endian field. Bits above 24 are dropped.
func PutUint24(v uint32) [3]byte {
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

// AppendUint24 appends the 3-byte little-endian encoding of b to dst.
func AppendUint24(dst []byte, b [3]byte) []byte {
	return append(dst, b[0], b[1], b[2])
}
