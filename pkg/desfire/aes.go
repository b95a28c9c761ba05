package desfire

import (
	"crypto/aes"
	"crypto/cipher"
	"hash"

	"github.com/aead/cmac"
	"github.com/ansel1/merry/v2"
)

// softwareBackend implements the EV2 secure messaging layout:
//
//	IV  = E(Kenc, A5 5A || TI || CmdCtr || 00..00)  commands
//	IV  = E(Kenc, 5A A5 || TI || CmdCtr || 00..00)  responses
//	MAC = CMAC(Kmac, code || CmdCtr || TI || ...), odd bytes kept
type softwareBackend struct {
	enc cipher.Block
	mac hash.Hash
	ti  [4]byte

	cbc cipher.BlockMode
	sum [BlockSize]byte
}

// NewSoftwareBackend returns a Backend using crypto/aes and AES-CMAC.
func NewSoftwareBackend(keys SessionKeys) (b Backend, err error) {
	defer deferWrap(&err)

	enc, err := aes.NewCipher(keys.Enc[:])
	if err != nil {
		return nil, err
	}
	macBlock, err := aes.NewCipher(keys.MAC[:])
	if err != nil {
		return nil, err
	}
	mac, err := cmac.New(macBlock)
	if err != nil {
		return nil, merry.Errorf("create CMAC: %w", err)
	}

	return &softwareBackend{enc: enc, mac: mac, ti: keys.TI}, nil
}

func (s *softwareBackend) BeginMAC(_ Direction, code byte, counter uint16) error {
	s.mac.Reset()
	s.mac.Write([]byte{code, byte(counter), byte(counter >> 8)})
	s.mac.Write(s.ti[:])
	return nil
}

func (s *softwareBackend) UpdateMAC(p []byte) {
	s.mac.Write(p)
}

func (s *softwareBackend) FinishMAC() (tag [MACSize]byte) {
	full := s.mac.Sum(s.sum[:0])
	for i := range tag {
		tag[i] = full[2*i+1]
	}
	return tag
}

func (s *softwareBackend) BeginCipher(dir Direction, counter uint16) error {
	var iv [BlockSize]byte
	iv[0], iv[1] = 0xA5, 0x5A
	if dir == DirResponse {
		iv[0], iv[1] = 0x5A, 0xA5
	}
	copy(iv[2:6], s.ti[:])
	iv[6] = byte(counter)
	iv[7] = byte(counter >> 8)
	s.enc.Encrypt(iv[:], iv[:])

	if dir == DirCommand {
		s.cbc = cipher.NewCBCEncrypter(s.enc, iv[:])
	} else {
		s.cbc = cipher.NewCBCDecrypter(s.enc, iv[:])
	}
	return nil
}

func (s *softwareBackend) Encrypt(dst, src []byte) {
	s.cbc.CryptBlocks(dst, src)
}

func (s *softwareBackend) Decrypt(dst, src []byte) {
	s.cbc.CryptBlocks(dst, src)
}
