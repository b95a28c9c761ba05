package desfire

import "fmt"

const (
	// BlockSize is the AES block size.
	BlockSize = 16
	// MACSize is the length of the truncated MAC appended to frames.
	MACSize = 8
	// ISOHeaderAllowance is reserved in every frame for the wrapping header.
	ISOHeaderAllowance = 4
	// NativeChainingCap bounds frames when native chaining is used.
	NativeChainingCap = 64
)

// frameSizes is indexed by the frame size index reported by the card (FSCI).
var frameSizes = [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256, 512, 1024, 2048, 4096}

// CommMode selects the secure messaging envelope of an operation.
type CommMode int

const (
	CommPlain CommMode = iota
	CommMAC
	CommFull
)

func (m CommMode) String() string {
	switch m {
	case CommPlain:
		return "plain"
	case CommMAC:
		return "mac"
	case CommFull:
		return "full"
	default:
		return fmt.Sprintf("CommMode(%d)", int(m))
	}
}

// MaxFramePayload returns the payload available in one frame. Indexes past
// the table clamp to its ends.
func MaxFramePayload(fsci int, nativeChaining bool) int {
	fsci = max(0, min(fsci, len(frameSizes)-1))

	size := frameSizes[fsci]
	if nativeChaining {
		size = min(size, NativeChainingCap)
	}
	return size - ISOHeaderAllowance
}

func RoundUpToBlock(n int) int {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

func RoundDownToBlock(n int) int {
	return n / BlockSize * BlockSize
}

// EncodedLength is the number of bytes n payload bytes occupy once the
// envelope is applied. Full mode always pads (ISO/IEC 9797-1 method 2), so a
// non-empty payload grows by at least one byte before the MAC.
func EncodedLength(mode CommMode, n int) int {
	switch mode {
	case CommMAC:
		return n + MACSize
	case CommFull:
		if n == 0 {
			return MACSize
		}
		return RoundDownToBlock(n) + BlockSize + MACSize
	default:
		return n
	}
}
