package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments. Spaces are ignored so fixtures
// can be laid out field by field ("90 BD 00 00", "07", ...). It panics on
// malformed input and is meant for tests and constant tables.
func Hex(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}

// UpperHex renders data as contiguous upper-case hex, the format used in
// logs and reports.
func UpperHex(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
