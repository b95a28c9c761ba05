package iso7816

import (
	"fmt"

	"github.com/gregLibert/desfire/pkg/bits"
)

// CLASS BYTE (CLA), ISO/IEC 7816-4 §5.4.1:
//
//	b8 = 1        proprietary; the PICC uses 0x90 to wrap native commands
//	00 0x xx xx   first interindustry: b5 chaining, b4-b3 SM, b2-b1 channel 0-3
//	01 xx xx xx   further interindustry: b6 SM, b5 chaining, b4-b1 channel-4
//
// Only the first interindustry range with channel 0 is used by the ISO file
// commands; the other encodings are decoded so that GET RESPONSE can reuse
// the class of the command it completes.

// SecureMessaging is the SM indication of an interindustry class.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "none"
	case SMProprietary:
		return "proprietary"
	case SMHeaderNoProc:
		return "ISO, header not processed"
	case SMHeaderAuth:
		return "ISO, header authenticated"
	default:
		return fmt.Sprintf("SecureMessaging(%d)", int(sm))
	}
}

const (
	// ClaInterindustry is the first interindustry class, channel 0, no SM.
	ClaInterindustry byte = 0x00
	// ClaNativeWrap is the proprietary class that encapsulates native PICC
	// commands in ISO 7816-4 APDUs.
	ClaNativeWrap byte = 0x90

	maxChannel = 19
)

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// InterindustryClass returns the class of the ISO file commands.
func InterindustryClass() Class {
	return Class{Raw: ClaInterindustry}
}

// NativeWrapClass returns the class of natively wrapped commands.
func NativeWrapClass() Class {
	return Class{Raw: ClaNativeWrap, IsProprietary: true}
}

// NewClass decodes cla. 0xFF is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	c := Class{Raw: cla}

	switch {
	case cla == 0xFF:
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")

	case bits.IsSet(cla, 8):
		c.IsProprietary = true

	case !bits.IsSet(cla, 7):
		c.IsChained = bits.IsSet(cla, 5)
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)

	default:
		c.IsChained = bits.IsSet(cla, 5)
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}
	return c, nil
}

// Encode returns the CLA byte. A proprietary class is returned as is.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > maxChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, maxChannel)
	}

	var res byte
	if c.IsChained {
		res = bits.Set(res, 5)
	}

	if c.Channel < 4 {
		return res | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}

	switch c.SecureMessaging {
	case SMNone:
	case SMHeaderNoProc:
		res = bits.Set(res, 6)
	default:
		return 0, fmt.Errorf("SM %s not available on channel %d", c.SecureMessaging, c.Channel)
	}
	return bits.Set(res, 7) | (c.Channel - 4), nil
}

// String returns a one line description of the class.
func (c Class) String() string {
	if c.IsProprietary {
		if c.Raw == ClaNativeWrap {
			return "CLA 90 (native wrapping)"
		}
		return fmt.Sprintf("CLA %02X (proprietary)", c.Raw)
	}

	s := fmt.Sprintf("CLA %02X (channel %d, SM %s", c.Raw, c.Channel, c.SecureMessaging)
	if c.IsChained {
		s += ", chained"
	}
	return s + ")"
}
