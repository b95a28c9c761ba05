package desfire

import (
	"context"
	"encoding/binary"

	"github.com/ansel1/merry/v2"
	"go.uber.org/zap"

	"github.com/gregLibert/desfire/pkg/iso7816"
	"github.com/gregLibert/desfire/pkg/link"
	"github.com/gregLibert/desfire/pkg/logging"
)

// CARD EXCHANGE:
// Every byte for the card goes through the Command Buffer. A logical frame
// is assembled in up to three steps:
//
//   - first: the command code, or the wrapping header 90 cmd 00 00 Lc,
//   - continuation: header and data bytes,
//   - last: the Le trailer of a wrapped command, then the transceive.
//
// When the buffer reaches the frame ceiling with bytes still to come, it is
// handed to the link with the ISO 14443-4 chaining bit set. The card
// acknowledges such frames without a status, unless it wants native
// chaining, in which case it answers 0xAF.

// Chaining overrides the chaining bit of the final frame.
type Chaining int

const (
	ChainingUnspecified Chaining = iota
	// ChainingOn sets the chaining bit on the final frame too.
	ChainingOn
	// ChainingOff keeps the whole command in one frame.
	ChainingOff
)

// Options shape how a response is split into status and payload.
type Options uint8

const (
	// OptStatusWrapped: the status is the trailing two-byte word, as in
	// any wrapped session.
	OptStatusWrapped Options = 1 << iota
	// OptReturnStatus keeps the status bytes in the returned payload.
	OptReturnStatus
	// OptExcludeStatus: the answer carries no status at all.
	OptExcludeStatus
)

// Frame describes one logical exchange.
type Frame struct {
	Role     link.Role
	Chaining Chaining
	Options  Options
	// TotalLen is the length of the logical command, command code
	// included, before wrapping. Zero means the data of a RoleDefault
	// frame.
	TotalLen int
	// WantLe appends Le to a wrapped command.
	WantLe bool
}

type result struct {
	outcome   Outcome
	data      []byte
	status    uint16
	rxPending bool
}

type txState struct {
	frame     Frame
	ceiling   int
	extended  bool
	lcPresent bool

	// afRequested is set when the card answered 0xAF to a chained frame.
	afRequested bool

	rxActive bool
	rxStatus uint16
}

var afFrame = [1]byte{byte(CodeAdditionalFrame)}

// exchange runs one step of a logical frame. For RoleFirst and RoleDefault
// data[0] is the command code.
func (e *Engine) exchange(ctx context.Context, f Frame, data []byte) (res result, err error) {
	switch f.Role {
	case link.RoleFirst, link.RoleDefault:
		if len(data) == 0 {
			return res, merry.Errorf("%w: frame without command code", ErrState)
		}
		if f.TotalLen == 0 {
			f.TotalLen = len(data)
		}
		if err = e.open(ctx, f, data[0]); err != nil {
			return res, err
		}
		if _, err = e.push(ctx, data[1:]); err != nil {
			return res, err
		}
		if f.Role == link.RoleFirst {
			return res, nil
		}
		return e.finish(ctx)

	case link.RoleCont:
		_, err = e.push(ctx, data)
		return res, err

	case link.RoleLast:
		if _, err = e.push(ctx, data); err != nil {
			return res, err
		}
		return e.finish(ctx)

	case link.RoleRxChaining:
		resp, err := e.transceive(ctx, link.Frame{Role: link.RoleRxChaining, Data: []byte{0x00}})
		if err != nil {
			return res, err
		}
		return e.parse(resp)

	default:
		return res, merry.Errorf("%w: unknown role %s", ErrState, f.Role)
	}
}

// open starts a logical frame with its command code or wrapping header.
func (e *Engine) open(ctx context.Context, f Frame, cmd byte) error {
	e.sess.cmd.reset()
	e.tx = txState{
		frame:   f,
		ceiling: MaxFramePayload(e.cfg.FrameSizeIndex, false),
	}

	if !e.sess.wrapped {
		_, err := e.push(ctx, []byte{cmd})
		return err
	}

	lc := f.TotalLen - 1
	if lc > iso7816.MaxExtendedLc {
		return overflow("wrapped command", lc, iso7816.MaxExtendedLc)
	}
	e.tx.extended = e.sess.extended || lc > iso7816.MaxShortLc
	e.tx.lcPresent = lc > 0

	var hdr [iso7816.HeaderLen + 3]byte
	h := append(hdr[:0], iso7816.ClaNativeWrap, cmd, 0x00, 0x00)
	h = iso7816.AppendLc(h, lc, e.tx.extended)
	_, err := e.push(ctx, h)
	return err
}

// openAPDU starts a raw ISO 7816 command.
func (e *Engine) openAPDU(ctx context.Context, cmd *iso7816.CommandAPDU) error {
	e.sess.cmd.reset()
	e.tx = txState{
		frame:   Frame{Role: link.RoleDefault, Options: OptStatusWrapped},
		ceiling: MaxFramePayload(e.cfg.FrameSizeIndex, false),
	}

	nc := len(cmd.Data)
	if nc > iso7816.MaxExtendedLc || cmd.Ne > iso7816.MaxExtendedLe || cmd.Ne < 0 {
		return merry.Errorf("%w: APDU length out of range: Nc=%d Ne=%d", ErrState, nc, cmd.Ne)
	}
	cla, err := cmd.Class.Encode()
	if err != nil {
		return merry.Wrap(err)
	}
	e.sess.lastCmd = byte(cmd.Instruction.Raw)

	ext := cmd.IsExtended()
	var hdr [iso7816.HeaderLen + 3]byte
	h := append(hdr[:0], cla, byte(cmd.Instruction.Raw), cmd.P1, cmd.P2)
	h = iso7816.AppendLc(h, nc, ext)
	if err = e.pushAll(ctx, h); err != nil {
		return err
	}
	if err = e.pushAll(ctx, cmd.Data); err != nil {
		return err
	}

	var le [3]byte
	return e.pushAll(ctx, iso7816.AppendLe(le[:0], cmd.Ne, ext, nc > 0))
}

// pushAll is push for bytes that cannot move to native chaining: an ISO
// header, ISO data or an Le trailer.
func (e *Engine) pushAll(ctx context.Context, p []byte) error {
	taken, err := e.push(ctx, p)
	if err != nil {
		return err
	}
	if e.tx.afRequested {
		return protocolErrorf("additional frame requested with %d bytes unsent", len(p)-taken)
	}
	return nil
}

// push appends p to the Command Buffer, flushing chained frames at the
// ceiling. It stops early when the card asks for native chaining and
// returns the number of bytes taken.
func (e *Engine) push(ctx context.Context, p []byte) (int, error) {
	cmd := &e.sess.cmd
	off := e.tx.frame.Chaining == ChainingOff
	taken := 0

	for len(p) > 0 {
		if !off && cmd.length >= e.tx.ceiling {
			if err := e.flush(ctx); err != nil {
				return taken, err
			}
			if e.tx.afRequested {
				return taken, nil
			}
		}

		n := len(p)
		if !off {
			n = min(n, e.tx.ceiling-cmd.length)
		}
		if err := cmd.append(p[:n]...); err != nil {
			return taken, err
		}
		p = p[n:]
		taken += n
	}
	return taken, nil
}

// flush sends the Command Buffer as a chained frame.
func (e *Engine) flush(ctx context.Context) error {
	cmd := &e.sess.cmd

	role := link.RoleCont
	if cmd.offset == 0 {
		role = link.RoleFirst
	}
	resp, err := e.transceive(ctx, link.Frame{Role: role, Chained: true, Data: cmd.Bytes()})
	if err != nil {
		return err
	}
	cmd.offset += cmd.length
	cmd.length = 0

	if len(resp) == 0 {
		return nil
	}

	res, err := e.parse(resp)
	if err != nil {
		return err
	}
	if res.outcome != Continue {
		return protocolErrorf("card completed a chained frame")
	}
	e.tx.afRequested = true
	return nil
}

// finish appends the trailer and sends the final frame.
func (e *Engine) finish(ctx context.Context) (result, error) {
	if e.sess.wrapped && e.tx.frame.WantLe {
		ne := iso7816.MaxShortLe
		if e.tx.extended {
			ne = iso7816.MaxExtendedLe
		}
		var le [3]byte
		if err := e.pushAll(ctx, iso7816.AppendLe(le[:0], ne, e.tx.extended, e.tx.lcPresent)); err != nil {
			return result{}, err
		}
	}

	cmd := &e.sess.cmd
	role := link.RoleLast
	if cmd.offset == 0 {
		role = link.RoleDefault
	}
	resp, err := e.transceive(ctx, link.Frame{
		Role:    role,
		Chained: e.tx.frame.Chaining == ChainingOn,
		Data:    cmd.Bytes(),
	})
	if err != nil {
		return result{}, err
	}
	cmd.offset += cmd.length
	cmd.length = 0

	return e.parse(resp)
}

// transceive performs one bounded link exchange.
func (e *Engine) transceive(ctx context.Context, f link.Frame) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
	defer cancel()

	e.log.Debug("exchange", zap.Stringer("role", f.Role), zap.Bool("chained", f.Chained), logging.Hex("tx", f.Data))

	resp, err := e.link.Transceive(ctx, f)
	if err != nil {
		return nil, merry.WrapSkipping(merry.Errorf("%w: %w", ErrTransport, err), 1)
	}

	e.log.Debug("exchange", logging.Hex("rx", resp), zap.Bool("pending", e.link.RxPending()))
	return resp, nil
}

// parse splits a response into payload and status and translates the
// status. A failure status is returned as error without touching the
// Processing Buffer.
func (e *Engine) parse(resp []byte) (res result, err error) {
	opts := e.tx.frame.Options
	res.rxPending = e.link.RxPending()
	res.data = resp

	if opts&OptExcludeStatus != 0 {
		if res.rxPending {
			res.outcome = Continue
		}
		return res, nil
	}

	trailing := e.sess.wrapped || opts&OptStatusWrapped != 0

	switch {
	case res.rxPending && trailing:
		// the status word comes with the last piece
		e.tx.rxActive = true
		res.outcome = Continue
		return res, nil

	case res.rxPending && e.tx.rxActive:
		res.status = e.tx.rxStatus
		res.outcome = Continue
		return res, nil

	case trailing:
		if len(resp) < 2 {
			return res, protocolErrorf("response of %d bytes has no status word", len(resp))
		}
		res.status = binary.BigEndian.Uint16(resp[len(resp)-2:])
		if opts&OptReturnStatus == 0 {
			res.data = resp[:len(resp)-2]
		}

	case e.tx.rxActive:
		res.status = e.tx.rxStatus

	default:
		if len(resp) < 1 {
			return res, protocolErrorf("empty response")
		}
		res.status = uint16(resp[0])
		if opts&OptReturnStatus == 0 {
			res.data = resp[1:]
		}
	}

	outcome, info, err := Translate(res.status, trailing)
	if info != 0 {
		e.sess.info = info
	}
	if err != nil {
		return res, err
	}

	if res.rxPending {
		// native status byte leads the first piece only
		e.tx.rxActive = true
		e.tx.rxStatus = res.status
		res.outcome = Continue
		return res, nil
	}
	e.tx.rxActive = false
	res.outcome = outcome
	return res, nil
}
