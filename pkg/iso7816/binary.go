package iso7816

import "fmt"

// BINARY AND RECORD FILE COMMANDS (ISO 7816-4):
//
// READ BINARY ('B0') / UPDATE BINARY ('D6'):
//   - P1 bit 8 = 1: P1 bits 5-1 carry an SFI and P2 is the offset (0-255).
//   - P1 bit 8 = 0: P1 bits 7-1 and P2 form a 15-bit offset in the current EF.
//
// APPEND RECORD ('E2'): P1 = 00, P2 = (SFI << 3), record in the data field.
//
// GET CHALLENGE ('84'): Case 2, Le is the challenge length.
//
// GET RESPONSE ('C0'): Case 2, fetches the bytes announced by '61XX'.

// MaxSFI is the largest short file identifier (5 bits).
const MaxSFI = 0x1F

// MaxBinaryOffset is the largest offset addressable without an SFI.
const MaxBinaryOffset = 0x7FFF

// binaryP1P2 encodes the addressing of READ/UPDATE BINARY.
func binaryP1P2(sfi byte, offset int) (byte, byte, error) {
	if sfi != 0 {
		if sfi > MaxSFI {
			return 0, 0, fmt.Errorf("SFI %d out of range", sfi)
		}
		if offset < 0 || offset > 0xFF {
			return 0, 0, fmt.Errorf("offset %d not addressable with an SFI", offset)
		}
		return 0x80 | sfi, byte(offset), nil
	}

	if offset < 0 || offset > MaxBinaryOffset {
		return 0, 0, fmt.Errorf("offset %d out of range", offset)
	}
	return byte(offset >> 8), byte(offset), nil
}

// ReadBinary builds READ BINARY. sfi = 0 addresses the current EF. ne = 0 is
// promoted to MaxShortLe, i.e. "as much as possible".
func ReadBinary(cla Class, sfi byte, offset int, ne int) (*CommandAPDU, error) {
	p1, p2, err := binaryP1P2(sfi, offset)
	if err != nil {
		return nil, err
	}
	if ne == 0 {
		ne = MaxShortLe
	}

	ins, _ := NewInstruction(INS_READ_BINARY)
	return NewCommandAPDU(cla, ins, p1, p2, nil, ne), nil
}

// UpdateBinary builds UPDATE BINARY (Case 3).
func UpdateBinary(cla Class, sfi byte, offset int, data []byte) (*CommandAPDU, error) {
	p1, p2, err := binaryP1P2(sfi, offset)
	if err != nil {
		return nil, err
	}

	ins, _ := NewInstruction(INS_UPDATE_BINARY)
	return NewCommandAPDU(cla, ins, p1, p2, data, 0), nil
}

// AppendRecord builds APPEND RECORD (Case 3).
func AppendRecord(cla Class, sfi byte, record []byte) (*CommandAPDU, error) {
	if sfi > MaxSFI {
		return nil, fmt.Errorf("SFI %d out of range", sfi)
	}

	ins, _ := NewInstruction(INS_APPEND_RECORD)
	return NewCommandAPDU(cla, ins, 0x00, sfi<<3, record, 0), nil
}

// GetChallenge builds GET CHALLENGE for ne random bytes.
func GetChallenge(cla Class, ne int) *CommandAPDU {
	ins, _ := NewInstruction(INS_GET_CHALLENGE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, ne)
}

// GetResponse builds GET RESPONSE for the n bytes announced by '61XX'.
// n = 0 stands for 256, as in SW2.
func GetResponse(cla Class, n byte) *CommandAPDU {
	ne := int(n)
	if ne == 0 {
		ne = MaxShortLe
	}

	cla.IsChained = false
	ins, _ := NewInstruction(INS_GET_RESPONSE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, ne)
}
