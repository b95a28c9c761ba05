package desfire

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aead/cmac"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/bits"
	"github.com/gregLibert/desfire/pkg/link"
)

// step is one scripted card answer.
type step struct {
	resp    []byte
	pending bool
	err     error
	// chained answers a frame sent with the chaining bit instead of
	// acknowledging it.
	chained bool
}

// scriptCard plays a fixed sequence of answers. Chained frames are
// acknowledged silently unless the next step claims them.
type scriptCard struct {
	steps   []step
	pending bool
}

func (c *scriptCard) Transceive(_ context.Context, f link.Frame) ([]byte, error) {
	if f.Chained && (len(c.steps) == 0 || !c.steps[0].chained) {
		return nil, nil
	}
	if len(c.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	c.pending = s.pending
	return s.resp, s.err
}

func (c *scriptCard) RxPending() bool { return c.pending }

// echoCard keeps one standard data file. WriteData is answered 0xAF until
// the announced length has arrived; ReadData serves the file back in 0xAF
// frames of chunk bytes. ISO 14443-4 chained frames are joined first.
type echoCard struct {
	chunk int

	file    []byte
	want    int
	writing bool
	unread  []byte
	joined  []byte
}

func (c *echoCard) Transceive(_ context.Context, f link.Frame) ([]byte, error) {
	c.joined = append(c.joined, f.Data...)
	if f.Chained {
		return nil, nil
	}
	frame := c.joined
	c.joined = nil

	switch {
	case len(frame) >= 8 && frame[0] == cmdWriteData:
		c.writing = true
		c.want = int(bits.Uint24([3]byte(frame[5:8])))
		c.file = append(c.file[:0], frame[8:]...)

	case len(frame) == 8 && frame[0] == cmdReadData:
		c.writing = false
		n := int(bits.Uint24([3]byte(frame[5:8])))
		if n == 0 {
			n = len(c.file)
		}
		c.unread = c.file[:n]
		return c.serve(), nil

	case len(frame) >= 1 && frame[0] == byte(CodeAdditionalFrame):
		if !c.writing {
			return c.serve(), nil
		}
		c.file = append(c.file, frame[1:]...)

	default:
		return nil, fmt.Errorf("unexpected frame % X", frame)
	}

	if len(c.file) < c.want {
		return []byte{byte(CodeAdditionalFrame)}, nil
	}
	return []byte{byte(CodeOK)}, nil
}

func (c *echoCard) serve() []byte {
	n := min(c.chunk, len(c.unread))
	status := CodeOK
	if n < len(c.unread) {
		status = CodeAdditionalFrame
	}
	out := append([]byte{byte(status)}, c.unread[:n]...)
	c.unread = c.unread[n:]
	return out
}

func (c *echoCard) RxPending() bool { return false }

// stallCard never answers before the exchange deadline.
type stallCard struct{}

func (stallCard) Transceive(ctx context.Context, _ link.Frame) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallCard) RxPending() bool { return false }

func newTestEngine(t *testing.T, card link.Link, tweak func(*Config)) (*Engine, *link.Recorder) {
	t.Helper()

	rec := link.NewRecorder(card)
	cfg := DefaultConfig()
	cfg.ExchangeTimeout = 50 * time.Millisecond
	if tweak != nil {
		tweak(&cfg)
	}
	e, err := New(rec, cfg)
	require.NoError(t, err)
	return e, rec
}

func steps(resps ...[]byte) []step {
	out := make([]step, 0, len(resps))
	for _, r := range resps {
		out = append(out, step{resp: r})
	}
	return out
}

var testKeys = SessionKeys{
	Enc: [16]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	MAC: [16]byte{0x0F, 0x1E, 0x2D, 0x3C, 0x4B, 0x5A, 0x69, 0x78, 0x87, 0x96, 0xA5, 0xB4, 0xC3, 0xD2, 0xE1, 0xF0},
	TI:  [4]byte{0x9D, 0x00, 0xC4, 0xDF},
}

// cardMAC computes the truncated CMAC the way the card does.
func cardMAC(t *testing.T, code byte, counter uint16, parts ...[]byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(testKeys.MAC[:])
	require.NoError(t, err)
	h, err := cmac.New(block)
	require.NoError(t, err)

	h.Write([]byte{code, byte(counter), byte(counter >> 8)})
	h.Write(testKeys.TI[:])
	for _, p := range parts {
		h.Write(p)
	}

	full := h.Sum(nil)
	out := make([]byte, 0, MACSize)
	for i := 1; i < len(full); i += 2 {
		out = append(out, full[i])
	}
	return out
}

// cardCipher CBC-encrypts the padded plaintext with the IV of dir.
func cardCipher(t *testing.T, dir Direction, counter uint16, plain []byte) []byte {
	t.Helper()

	if len(plain) == 0 {
		return nil
	}
	block, err := aes.NewCipher(testKeys.Enc[:])
	require.NoError(t, err)

	iv := make([]byte, BlockSize)
	iv[0], iv[1] = 0xA5, 0x5A
	if dir == DirResponse {
		iv[0], iv[1] = 0x5A, 0xA5
	}
	copy(iv[2:], testKeys.TI[:])
	iv[6], iv[7] = byte(counter), byte(counter>>8)
	block.Encrypt(iv, iv)

	padded := append(append([]byte(nil), plain...), 0x80)
	for len(padded)%BlockSize != 0 {
		padded = append(padded, 0x00)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
	return padded
}

// sealResponse builds the payload of a full mode answer: ciphertext and MAC.
func sealResponse(t *testing.T, counter uint16, status byte, plain []byte) []byte {
	t.Helper()

	ct := cardCipher(t, DirResponse, counter, plain)
	return append(ct, cardMAC(t, status, counter, ct)...)
}
