package desfire

import (
	"crypto/hmac"
	"fmt"
	"math"

	"github.com/ansel1/merry/v2"
)

// envState tracks one logical operation through the envelope:
//
//	Idle -> Encoding -> Exchanging -> Decoding -> Idle
//
// Apply(first) leaves Idle, Apply(last) enters Exchanging, Remove(first)
// enters Decoding and Remove(last) returns to Idle. Anything else is refused.
type envState int

const (
	envIdle envState = iota
	envEncoding
	envExchanging
	envDecoding
)

func (s envState) String() string {
	switch s {
	case envIdle:
		return "idle"
	case envEncoding:
		return "encoding"
	case envExchanging:
		return "exchanging"
	case envDecoding:
		return "decoding"
	default:
		return fmt.Sprintf("envState(%d)", int(s))
	}
}

// envelope applies and removes secure messaging. It writes decoded payload
// into the session Processing Buffer.
type envelope struct {
	sess    *Session
	state   envState
	mode    CommMode
	backend Backend

	// encoding
	total    int
	carry    [BlockSize]byte
	carryLen int
	out      []byte

	// decoding
	hold      [MACSize + BlockSize]byte
	holdLen   int
	procStart int
}

func newEnvelope(sess *Session, scratch int) envelope {
	return envelope{sess: sess, out: make([]byte, 0, scratch)}
}

func (v *envelope) illegal(op string) error {
	return merry.Errorf("%w: envelope %s while %s", ErrState, op, v.state)
}

// abort drops any operation in progress.
func (v *envelope) abort() {
	v.state = envIdle
	v.total = 0
	v.carryLen = 0
	v.holdLen = 0
	v.backend = nil
}

// Apply encodes one chunk of an outgoing command. first and last refer to
// the whole logical operation. header is only used on the first chunk and is
// never enciphered. The returned slice is valid until the next call.
func (v *envelope) Apply(first, last bool, mode CommMode, cmd byte, header, data []byte) (out []byte, err error) {
	defer deferWrap(&err)

	switch {
	case first && v.state != envIdle:
		return nil, v.illegal("apply(first)")
	case !first && (v.state != envEncoding || mode != v.mode):
		return nil, v.illegal("apply")
	}

	if first {
		if v.sess.auth == Authenticated && v.sess.counter == math.MaxUint16 {
			return nil, merry.Errorf("%w: %04X", ErrCounterExhausted, v.sess.counter)
		}
		v.abort()
		v.mode = mode
		if mode != CommPlain {
			if v.sess.backend == nil {
				return nil, merry.Errorf("%w: %s mode requested", ErrNoBackend, mode)
			}
			v.backend = v.sess.backend
		}
		v.state = envEncoding
	} else {
		header = nil
	}

	if need := len(header) + v.carryLen + len(data) + BlockSize + MACSize; need > cap(v.out) {
		return nil, overflow("envelope", need, cap(v.out))
	}
	out = append(v.out[:0], header...)

	switch mode {
	case CommPlain:
		out = append(out, data...)

	case CommMAC:
		if first {
			if err = v.backend.BeginMAC(DirCommand, cmd, v.sess.counter); err != nil {
				return nil, err
			}
			v.backend.UpdateMAC(header)
		}
		v.backend.UpdateMAC(data)
		out = append(out, data...)

	case CommFull:
		if first {
			if err = v.backend.BeginMAC(DirCommand, cmd, v.sess.counter); err != nil {
				return nil, err
			}
			v.backend.UpdateMAC(header)
			if err = v.backend.BeginCipher(DirCommand, v.sess.counter); err != nil {
				return nil, err
			}
		}
		start := len(out)
		out = v.encipher(out, data, last)
		v.backend.UpdateMAC(out[start:])

	default:
		return nil, merry.Errorf("%w: unknown communication mode %d", ErrState, int(mode))
	}

	if last {
		if mode != CommPlain {
			tag := v.backend.FinishMAC()
			out = append(out, tag[:]...)
		}
		v.state = envExchanging
	}
	return out, nil
}

// encipher appends the ciphertext of every block completed by data. The
// partial block stays in carry; the last call pads it.
func (v *envelope) encipher(out, data []byte, last bool) []byte {
	start := len(out)
	v.total += len(data)

	if v.carryLen > 0 {
		n := copy(v.carry[v.carryLen:], data)
		v.carryLen += n
		data = data[n:]
		if v.carryLen == BlockSize {
			out = append(out, v.carry[:]...)
			v.carryLen = 0
		}
	}

	whole := RoundDownToBlock(len(data))
	out = append(out, data[:whole]...)
	v.carryLen += copy(v.carry[v.carryLen:], data[whole:])

	if last && v.total > 0 {
		v.carry[v.carryLen] = 0x80
		clear(v.carry[v.carryLen+1:])
		out = append(out, v.carry[:]...)
		v.carryLen = 0
	}

	v.backend.Encrypt(out[start:], out[start:])
	return out
}

// Remove decodes one received frame into the Processing Buffer. rxChained
// marks a piece of a response the link is still receiving. status is the
// native status of the answer; the MAC covers the final status, which is
// OK whenever Remove is reached.
func (v *envelope) Remove(rxChained, first, last bool, mode CommMode, raw []byte, status byte) (o Outcome, err error) {
	defer deferWrap(&err)

	switch {
	case first && (v.state != envExchanging || mode != v.mode):
		return Continue, v.illegal("remove(first)")
	case !first && v.state != envDecoding:
		return Continue, v.illegal("remove")
	case rxChained && last:
		return Continue, merry.Errorf("%w: last frame still chained", ErrState)
	}

	if status == byte(CodeAdditionalFrame) {
		status = byte(CodeOK)
	}

	proc := &v.sess.proc

	if first {
		v.state = envDecoding
		v.holdLen = 0
		v.procStart = proc.length

		if mode != CommPlain {
			v.sess.advance()
			if err = v.backend.BeginMAC(DirResponse, status, v.sess.counter); err != nil {
				return Continue, err
			}
			if mode == CommFull {
				if err = v.backend.BeginCipher(DirResponse, v.sess.counter); err != nil {
					return Continue, err
				}
			}
			proc.offset = proc.length
		}
	}

	switch mode {
	case CommPlain:
		if err = proc.append(raw...); err != nil {
			return Continue, err
		}
		if last {
			v.sess.advance()
		}

	case CommMAC, CommFull:
		if err = v.feed(raw, last); err != nil {
			return Continue, err
		}
		if last {
			if err = v.verify(); err != nil {
				return Continue, err
			}
		}
	}

	if !last {
		return Continue, nil
	}
	v.state = envIdle
	v.backend = nil
	return Success, nil
}

// feed promotes received bytes into the Processing Buffer, holding back the
// bytes that may still be the trailing MAC. In full mode only whole cipher
// blocks are promoted and deciphered in place.
func (v *envelope) feed(raw []byte, last bool) error {
	n := max(0, v.holdLen+len(raw)-MACSize)
	if v.mode == CommFull {
		n = RoundDownToBlock(n)
	}

	fromHold := min(n, v.holdLen)
	if err := v.promote(v.hold[:fromHold]); err != nil {
		return err
	}
	v.holdLen = copy(v.hold[:], v.hold[fromHold:v.holdLen])

	fromRaw := n - fromHold
	if err := v.promote(raw[:fromRaw]); err != nil {
		return err
	}
	rest := raw[fromRaw:]
	if v.holdLen+len(rest) > len(v.hold) {
		return protocolErrorf("%d unaligned bytes received", v.holdLen+len(rest))
	}
	v.holdLen += copy(v.hold[v.holdLen:], rest)

	if v.mode == CommFull {
		proc := &v.sess.proc
		enc := proc.data[proc.offset:proc.length]
		v.backend.Decrypt(enc, enc)
		proc.offset = proc.length
	}
	return nil
}

func (v *envelope) promote(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	v.backend.UpdateMAC(p)
	return v.sess.proc.append(p...)
}

// verify checks the trailing MAC and strips the full mode padding.
func (v *envelope) verify() error {
	if v.holdLen != MACSize {
		return protocolErrorf("response ends with %d bytes instead of a %d byte MAC", v.holdLen, MACSize)
	}

	tag := v.backend.FinishMAC()
	if !hmac.Equal(tag[:], v.hold[:MACSize]) {
		return merry.Errorf("%w: %w", ErrProtocol, CodeIntegrity)
	}

	if v.mode != CommFull {
		return nil
	}

	proc := &v.sess.proc
	if proc.length == v.procStart {
		return nil
	}
	i := proc.length - 1
	for i > v.procStart && proc.data[i] == 0x00 && proc.length-i < BlockSize {
		i--
	}
	if proc.data[i] != 0x80 {
		return protocolErrorf("bad padding")
	}
	proc.length = i
	proc.offset = i
	return nil
}
