package desfire

import (
	"errors"
	"fmt"

	"github.com/ansel1/merry/v2"
)

var (
	// ErrTransport reports a link failure or an exchange timeout.
	ErrTransport = errors.New("transport error")
	// ErrProtocol reports a malformed or unexpected answer.
	ErrProtocol = errors.New("protocol error")
	// ErrBufferOverflow reports a Command or Processing Buffer overrun.
	ErrBufferOverflow = errors.New("buffer overflow")
	// ErrNoBackend reports a MAC or full mode request without a secure
	// messaging backend.
	ErrNoBackend = errors.New("no secure messaging backend")
	// ErrState reports an illegal envelope transition or engine misuse.
	ErrState = errors.New("invalid engine state")
	// ErrCounterExhausted reports an authenticated session whose command
	// counter cannot advance any further. The session must authenticate
	// again.
	ErrCounterExhausted = errors.New("command counter exhausted")
)

// StatusError is a failure reported by the card.
type StatusError struct {
	Code Code
	// Raw is the status as received: the native byte, the wrapped '91XX'
	// word or the ISO 7816 SW1SW2.
	Raw uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card status %04X: %s", e.Raw, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Code
}

func deferWrap(err *error) {
	if *err != nil {
		*err = merry.WrapSkipping(*err, 1)
	}
}

func protocolErrorf(format string, args ...any) error {
	return merry.WrapSkipping(fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...), 1)
}

func overflow(what string, need, capacity int) error {
	return merry.WrapSkipping(fmt.Errorf("%w: %s needs %d bytes, capacity %d", ErrBufferOverflow, what, need, capacity), 1)
}

// resetsAuth applies the authentication reset policy to a failed operation.
func resetsAuth(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code != CodeNoChanges && se.Code != CodeDuplicate
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, CodeIntegrity) || errors.Is(err, ErrCounterExhausted)
}
