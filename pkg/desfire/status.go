package desfire

import (
	"fmt"

	"github.com/gregLibert/desfire/pkg/iso7816"
)

// Outcome of an exchange that did not fail.
type Outcome int

const (
	// Success completes the logical operation.
	Success Outcome = iota
	// Continue means the card has more data or wants another frame.
	Continue
)

func (o Outcome) String() string {
	if o == Continue {
		return "continue"
	}
	return "success"
}

// Code is the local error taxonomy. Values below 0xF0 are the native PICC
// status bytes.
type Code byte

const (
	CodeOK                  Code = 0x00
	CodeNoChanges           Code = 0x0C
	CodeOutOfEEPROM         Code = 0x0E
	CodeIllegalCommand      Code = 0x1C
	CodeIntegrity           Code = 0x1E
	CodeNoSuchKey           Code = 0x40
	CodeLength              Code = 0x7E
	CodePermissionDenied    Code = 0x9D
	CodeParameter           Code = 0x9E
	CodeApplicationNotFound Code = 0xA0
	CodeAuthentication      Code = 0xAE
	CodeAdditionalFrame     Code = 0xAF
	CodeBoundary            Code = 0xBE
	CodeCommandAborted      Code = 0xCA
	CodeCount               Code = 0xCE
	CodeDuplicate           Code = 0xDE
	CodeFileNotFound        Code = 0xF0

	// CodeGeneric groups the card integrity and memory failures; the raw
	// status is kept as additional info.
	CodeGeneric Code = 0xFE
	// CodeISO7816 is any ISO 7816 error word; the SW is kept as additional
	// info.
	CodeISO7816 Code = 0xFF
)

// Native status bytes folded into CodeGeneric.
const (
	statusApplicationIntegrity = 0xA1
	statusPICCIntegrity        = 0xC1
	statusPICCDisabled         = 0xCD
	statusEEPROM               = 0xEE
	statusFileIntegrity        = 0xF1
)

var codeNames = map[Code]string{
	CodeOK:                  "OK",
	CodeNoChanges:           "no changes",
	CodeOutOfEEPROM:         "out of EEPROM",
	CodeIllegalCommand:      "illegal command",
	CodeIntegrity:           "integrity error",
	CodeNoSuchKey:           "no such key",
	CodeLength:              "length error",
	CodePermissionDenied:    "permission denied",
	CodeParameter:           "parameter error",
	CodeApplicationNotFound: "application not found",
	CodeAuthentication:      "authentication error",
	CodeAdditionalFrame:     "additional frame",
	CodeBoundary:            "boundary error",
	CodeCommandAborted:      "command aborted",
	CodeCount:               "count error",
	CodeDuplicate:           "duplicate error",
	CodeFileNotFound:        "file not found",
	CodeGeneric:             "card integrity or memory failure",
	CodeISO7816:             "ISO 7816 error",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%02X)", byte(c))
}

func (c Code) Error() string {
	return c.String()
}

// Translate maps a raw status to an Outcome. iso selects the ISO 7816 family
// (SW1SW2, including the '91XX' native wrapping); otherwise raw is a native
// status byte, optionally wrapped as '91XX'.
//
// info is non-zero when the status carries diagnostic detail for the
// additional info side channel.
func Translate(raw uint16, iso bool) (out Outcome, info uint16, err error) {
	sw := iso7816.StatusWord(raw)

	switch {
	case sw.IsNativeWrapped():
		return translateNative(raw, byte(raw))
	case !iso && raw <= 0xFF:
		return translateNative(raw, byte(raw))
	case !iso:
		return Success, 0, protocolErrorf("unknown native status %04X", raw)
	case sw == iso7816.SW_NO_ERROR:
		return Success, 0, nil
	case sw.IsKnown() || sw.IsWarning() || sw.IsError():
		return Success, raw, &StatusError{Code: CodeISO7816, Raw: raw}
	default:
		return Success, 0, protocolErrorf("unknown status word %04X", raw)
	}
}

func translateNative(raw uint16, status byte) (Outcome, uint16, error) {
	switch status {
	case byte(CodeOK):
		return Success, 0, nil
	case byte(CodeAdditionalFrame):
		return Continue, 0, nil
	case statusApplicationIntegrity, statusPICCIntegrity, statusPICCDisabled, statusEEPROM, statusFileIntegrity:
		return Success, raw, &StatusError{Code: CodeGeneric, Raw: raw}
	}

	if _, ok := codeNames[Code(status)]; !ok || Code(status) >= CodeGeneric {
		return Success, 0, protocolErrorf("unknown PICC status %02X", status)
	}
	return Success, 0, &StatusError{Code: Code(status), Raw: raw}
}
