package link

import (
	"context"
	"errors"
	"slices"

	"github.com/ansel1/merry/v2"

	"github.com/gregLibert/desfire/pkg/iso7816"
)

// PC/SC LINK:
// A PC/SC reader exchanges complete APDUs and performs the ISO 14443-4 block
// chaining itself. The PCSC link therefore:
//
// 1. Collects Chained frames and transmits them together with the next
//    unchained frame. Chained frames are acknowledged with an empty answer.
//
// 2. Resolves the T=0 procedure bytes the way a terminal does:
//    "61 XX" (Response Available): sends GET RESPONSE for XX bytes and
//    concatenates the data.
//    "6C XX" (Wrong Length): re-sends the command with Le = XX.
//
// RX chaining never reaches the caller: RxPending is always false.

// ErrChainTooLong is returned when the collected chained frames exceed the
// buffer given to NewPCSC.
var ErrChainTooLong = errors.New("chained frames exceed link buffer")

// PCSC drives a Transmitter, usually a *scard.Card.
type PCSC struct {
	Card Transmitter

	// AutoGetResponse resolves 61XX and 6CXX answers.
	AutoGetResponse bool

	pending []byte
	limit   int
}

// NewPCSC creates a link over card. limit bounds the bytes of one chained
// command.
func NewPCSC(card Transmitter, limit int) *PCSC {
	return &PCSC{
		Card:            card,
		AutoGetResponse: true,
		pending:         make([]byte, 0, limit),
		limit:           limit,
	}
}

// Transceive implements Link.
func (p *PCSC) Transceive(ctx context.Context, f Frame) (resp []byte, err error) {
	defer deferWrap(&err)

	if err = ctx.Err(); err != nil {
		p.pending = p.pending[:0]
		return nil, err
	}

	if len(p.pending)+len(f.Data) > p.limit {
		p.pending = p.pending[:0]
		return nil, merry.Wrap(ErrChainTooLong)
	}
	p.pending = append(p.pending, f.Data...)

	if f.Chained {
		return nil, nil
	}

	cmd := slices.Clone(p.pending)
	p.pending = p.pending[:0]

	resp, err = p.send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return resp, ctx.Err()
}

// RxPending implements Link.
func (p *PCSC) RxPending() bool {
	return false
}

// send transmits cmd and handles protocol logic (61xx, 6Cxx).
func (p *PCSC) send(ctx context.Context, cmd []byte) ([]byte, error) {
	rawResp, err := p.Card.Transmit(cmd)
	if err != nil {
		return nil, merry.Errorf("transmission error: %w", err)
	}
	if !p.AutoGetResponse || len(rawResp) < 2 || len(cmd) < iso7816.HeaderLen {
		return rawResp, nil
	}

	resp, err := iso7816.ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	sw1 := resp.Status.SW1()
	sw2 := resp.Status.SW2()

	// Case 61XX: More data available -> Issue GET RESPONSE
	if sw1 == 0x61 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// ISO 7816-4: GET RESPONSE must use the same logical channel as the original command.
		respCls, err := iso7816.NewClass(cmd[0])
		if err != nil {
			respCls = iso7816.InterindustryClass()
		}
		getResp, err := iso7816.GetResponse(respCls, sw2).Bytes()
		if err != nil {
			return nil, err
		}

		more, err := p.send(ctx, getResp)
		if err != nil {
			return nil, err
		}
		return append(slices.Clone(resp.Data), more...), nil
	}

	// Case 6CXX: Wrong Length -> Re-issue original command with correct Le
	if sw1 == 0x6C {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.send(ctx, withLe(cmd, sw2))
	}

	return rawResp, nil
}

// withLe replaces the trailing short Le of cmd, or appends one to a header
// only command.
func withLe(cmd []byte, le byte) []byte {
	out := slices.Clone(cmd)
	switch {
	case len(out) == iso7816.HeaderLen:
		return append(out, le)
	case len(out) == iso7816.HeaderLen+1:
		out[iso7816.HeaderLen] = le
		return out
	}

	lc := int(out[iso7816.HeaderLen])
	if end := iso7816.HeaderLen + 1 + lc; lc != 0 && len(out) == end {
		return append(out, le)
	}
	out[len(out)-1] = le
	return out
}

func deferWrap(err *error) {
	if *err != nil {
		*err = merry.WrapSkipping(*err, 1)
	}
}
