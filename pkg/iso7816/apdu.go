package iso7816

import (
	"bytes"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header: CLA, INS, P1, P2.
// 2. Body: Lc (data length), Data, Le (expected response length).
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte.
//   - Extended Length: Lc is '00 hi lo'; Le is 'hi lo' after an extended Lc,
//     or '00 hi lo' when Lc is absent.
//
// RESPONSE APDU (R-APDU): optional Body followed by the SW1 SW2 trailer.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	// HeaderLen is the size of CLA INS P1 P2.
	HeaderLen = 4
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)

	// Extended forces extended length encoding even when Nc and Ne fit the
	// short form.
	Extended bool
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// IsExtended reports whether the command will use extended length fields.
func (c *CommandAPDU) IsExtended() bool {
	return c.Extended || len(c.Data) > MaxShortLc || c.Ne > MaxShortLe
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// Extended encoding is used when forced or when Nc/Ne do not fit the short form.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	if nc > MaxExtendedLc || c.Ne > MaxExtendedLe || c.Ne < 0 {
		return nil, fmt.Errorf("length out of range: Nc=%d Ne=%d", nc, c.Ne)
	}

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderLen+3+nc+3))
	buf.Write([]byte{class, byte(c.Instruction.Raw), c.P1, c.P2})

	ext := c.IsExtended()
	buf.Write(AppendLc(nil, nc, ext))
	buf.Write(c.Data)
	buf.Write(AppendLe(nil, c.Ne, ext, nc > 0))

	return buf.Bytes(), nil
}

// AppendLc appends the Lc field for nc data bytes. Nothing is appended when
// nc is zero.
func AppendLc(dst []byte, nc int, extended bool) []byte {
	switch {
	case nc == 0:
		return dst
	case !extended:
		return append(dst, byte(nc))
	default:
		return append(dst, 0x00, byte(nc>>8), byte(nc))
	}
}

// AppendLe appends the Le field for ne expected bytes. ne equal to the mode
// maximum (256 short, 65536 extended) is encoded as zero. lcPresent selects
// between the 2-byte and 3-byte extended forms. Nothing is appended when ne
// is zero.
func AppendLe(dst []byte, ne int, extended, lcPresent bool) []byte {
	switch {
	case ne == 0:
		return dst
	case !extended:
		return append(dst, byte(ne))
	case !lcPresent:
		dst = append(dst, 0x00)
	}
	return append(dst, byte(ne>>8), byte(ne))
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw bytes into data and the trailing status word.
// The input must contain at least 2 bytes. Data aliases raw.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	i := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:i],
		Status: NewStatusWord(raw[i], raw[i+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
