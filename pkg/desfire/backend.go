package desfire

import (
	"fmt"

	"github.com/ansel1/merry/v2"
)

// Direction tells a backend which side of the exchange it is processing.
type Direction int

const (
	DirCommand Direction = iota
	DirResponse
)

// Backend supplies the cryptography of the secure messaging envelope. The
// envelope drives it as a stream: BeginMAC, any number of UpdateMAC, then
// FinishMAC; BeginCipher then Encrypt or Decrypt on whole blocks.
type Backend interface {
	// BeginMAC starts a MAC over code, the little-endian counter and the
	// transaction identifier.
	BeginMAC(dir Direction, code byte, counter uint16) error
	UpdateMAC(p []byte)
	// FinishMAC returns the truncated MAC.
	FinishMAC() [MACSize]byte

	// BeginCipher derives the IV for dir and counter.
	BeginCipher(dir Direction, counter uint16) error
	// Encrypt and Decrypt process whole blocks in CBC mode. dst and src
	// may be the same slice.
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

// Layer selects the backend implementation.
type Layer int

const (
	// LayerNone allows plain communication only.
	LayerNone Layer = iota
	// LayerSoftware uses crypto/aes and AES-CMAC.
	LayerSoftware
	// LayerCustom uses Config.Backend.
	LayerCustom
)

func (l Layer) String() string {
	switch l {
	case LayerNone:
		return "none"
	case LayerSoftware:
		return "software"
	case LayerCustom:
		return "custom"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// SessionKeys are the outcome of an authentication: the session encryption
// and MAC keys plus the transaction identifier.
type SessionKeys struct {
	Enc [16]byte
	MAC [16]byte
	TI  [4]byte
}

// NewBackend builds the backend for layer. LayerNone yields a nil backend.
func NewBackend(layer Layer, keys SessionKeys, custom Backend) (Backend, error) {
	switch layer {
	case LayerNone:
		return nil, nil
	case LayerSoftware:
		return NewSoftwareBackend(keys)
	case LayerCustom:
		if custom == nil {
			return nil, merry.Errorf("%w: custom layer without backend", ErrNoBackend)
		}
		return custom, nil
	default:
		return nil, merry.Errorf("%w: unknown layer %d", ErrState, int(layer))
	}
}
