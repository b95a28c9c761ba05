package desfire

import (
	"context"

	"github.com/ansel1/merry/v2"
	"go.uber.org/zap"

	"github.com/gregLibert/desfire/pkg/link"
)

// command sends cmd with its clear header and data, then collects the
// response into the Processing Buffer.
//
// The data is cut into frame sized chunks and each chunk goes through the
// envelope, first and last tracking the whole command. Chunks are buffered
// into ISO 14443-4 chained frames until the card asks for native chaining
// (or NativeChaining is configured); from then on the rest is sent in 0xAF
// frames of at most 64 bytes.
func (e *Engine) command(ctx context.Context, cmd byte, header, data []byte, mode CommMode) (err error) {
	defer deferWrap(&err)

	if len(header) > maxHeaderLen {
		return merry.Errorf("%w: header of %d bytes", ErrState, len(header))
	}
	e.sess.lastCmd = cmd

	af := e.cfg.NativeChaining
	chunk := MaxFramePayload(e.cfg.FrameSizeIndex, af)
	n := max(1, (len(data)+chunk-1)/chunk)

	if af {
		e.stage = append(e.stage[:0], cmd)
	} else {
		f := Frame{
			Role:     link.RoleFirst,
			TotalLen: 1 + len(header) + EncodedLength(mode, len(data)),
			WantLe:   true,
		}
		if _, err = e.exchange(ctx, f, []byte{cmd}); err != nil {
			return err
		}
	}

	for i := range n {
		part := data[min(len(data), i*chunk):min(len(data), (i+1)*chunk)]

		enc, err := e.env.Apply(i == 0, i == n-1, mode, cmd, header, part)
		if err != nil {
			return err
		}

		if !af {
			taken, err := e.push(ctx, enc)
			if err != nil {
				return err
			}
			if !e.tx.afRequested {
				continue
			}
			e.log.Debug("card requested native chaining", zap.Int("sent", e.sess.cmd.offset))
			af = true
			e.stage = append(e.stage[:0], afFrame[0])
			enc = enc[taken:]
		}

		if err = e.stageBytes(ctx, enc); err != nil {
			return err
		}
	}

	var res result
	if af {
		res, err = e.sendStage(ctx)
	} else {
		res, err = e.finish(ctx)
	}
	if err != nil {
		return err
	}
	return e.collect(ctx, res, mode, true)
}

// stageBytes adds p to the native chaining frame, sending full frames.
// Every frame but the last must be answered with 0xAF.
func (e *Engine) stageBytes(ctx context.Context, p []byte) error {
	limit := MaxFramePayload(e.cfg.FrameSizeIndex, true)

	for len(p) > 0 {
		if len(e.stage) >= limit {
			res, err := e.sendStage(ctx)
			if err != nil {
				return err
			}
			if res.outcome != Continue || res.rxPending || len(res.data) > 0 {
				return protocolErrorf("card answered %04X with %d command bytes unsent", res.status, len(p))
			}
			e.stage = append(e.stage[:0], afFrame[0])
		}

		n := min(len(p), limit-len(e.stage))
		e.stage = append(e.stage, p[:n]...)
		p = p[n:]
	}
	return nil
}

func (e *Engine) sendStage(ctx context.Context) (result, error) {
	return e.exchange(ctx, Frame{Role: link.RoleDefault, WantLe: true}, e.stage)
}

// collect removes the envelope from res and from every further frame until
// the card completes. RX chaining is followed without bound; 0xAF answers
// are followed while they bring payload, and at most MaxAdditionalFrames
// times in a row when they do not.
func (e *Engine) collect(ctx context.Context, res result, mode CommMode, afAllowed bool) error {
	first := true
	idle := 0

	for {
		last := res.outcome == Success && !res.rxPending

		out, err := e.env.Remove(res.rxPending, first, last, mode, res.data, byte(res.status))
		if err != nil {
			return err
		}
		if out == Success {
			return nil
		}
		first = false

		if res.rxPending {
			if res, err = e.exchange(ctx, Frame{Role: link.RoleRxChaining}, nil); err != nil {
				return err
			}
			continue
		}

		if !afAllowed {
			return protocolErrorf("additional frame requested by %04X", res.status)
		}
		if len(res.data) == 0 {
			idle++
			if idle >= e.cfg.MaxAdditionalFrames {
				return protocolErrorf("%d additional frames without data", idle)
			}
		} else {
			idle = 0
		}

		if res, err = e.exchange(ctx, Frame{Role: link.RoleDefault, WantLe: true}, afFrame[:]); err != nil {
			return err
		}
	}
}

// read runs a command without data. A positive recordSize checks that the
// payload holds whole records and returns their count.
func (e *Engine) read(ctx context.Context, cmd byte, header []byte, mode CommMode, recordSize int) ([]byte, int, error) {
	if err := e.command(ctx, cmd, header, nil, mode); err != nil {
		return nil, 0, err
	}

	data := e.take()
	if recordSize <= 0 {
		return data, 0, nil
	}
	n, err := recordCount(len(data), recordSize)
	return data, n, err
}

func recordCount(total, recordSize int) (int, error) {
	if total%recordSize != 0 {
		return 0, protocolErrorf("%d bytes is not a multiple of the %d byte record size", total, recordSize)
	}
	return total / recordSize, nil
}
