// Package link abstracts the ISO/IEC 14443-4 block transport that carries
// PICC frames.
//
// A Link moves one frame at a time. Frames flagged Chained are sent with the
// chaining bit of the I-block set: the card acknowledges them without a
// status and the response of the chain comes with the first unchained frame.
// When the card itself chains its answer, RxPending reports true and the
// caller drives the next turn with a RoleRxChaining frame.
package link

import (
	"context"
	"fmt"
)

// Role tells the link where a frame sits in the logical operation.
type Role int

const (
	// RoleDefault is a standalone frame.
	RoleDefault Role = iota
	// RoleFirst opens a chained command.
	RoleFirst
	// RoleCont continues a chained command.
	RoleCont
	// RoleLast closes a chained command.
	RoleLast
	// RoleRxChaining asks for the next part of a chained response.
	RoleRxChaining
)

func (r Role) String() string {
	switch r {
	case RoleDefault:
		return "default"
	case RoleFirst:
		return "first"
	case RoleCont:
		return "cont"
	case RoleLast:
		return "last"
	case RoleRxChaining:
		return "rx-chaining"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Frame is one unit handed to the link.
type Frame struct {
	Role    Role
	Chained bool
	Data    []byte
}

// Link is a synchronous frame transport. The returned slice is only valid
// until the next call.
type Link interface {
	Transceive(ctx context.Context, f Frame) ([]byte, error)
	// RxPending reports whether the card still holds response bytes of the
	// last exchange.
	RxPending() bool
}

// Transmitter abstracts a reader that exchanges whole APDUs, such as a
// *scard.Card.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}
