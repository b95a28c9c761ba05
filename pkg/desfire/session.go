package desfire

import "math"

// AuthState is the authentication state of a session.
type AuthState int

const (
	NotAuthenticated AuthState = iota
	Authenticated
)

func (a AuthState) String() string {
	if a == Authenticated {
		return "authenticated"
	}
	return "not authenticated"
}

// RootAID is the card level application.
var RootAID = [3]byte{}

// MaxDFNameLen is the longest ISO DF name.
const MaxDFNameLen = 16

// Session is the state kept between operations on one card.
type Session struct {
	auth    AuthState
	keyNo   byte
	backend Backend
	counter uint16

	aid       [3]byte
	fid       [2]byte
	hasFID    bool
	dfName    [MaxDFNameLen]byte
	dfNameLen int

	extended bool
	wrapped  bool
	lastCmd  byte
	info     uint16

	cmd  Buffer
	proc Buffer
}

func newSession(cmdCapacity, procCapacity int) Session {
	return Session{
		cmd:  newBuffer(cmdCapacity),
		proc: newBuffer(procCapacity),
	}
}

func (s Session) Auth() AuthState { return s.auth }
func (s Session) KeyNo() byte     { return s.keyNo }
func (s Session) Counter() uint16 { return s.counter }
func (s Session) AID() [3]byte    { return s.aid }
func (s Session) LastCommand() byte {
	return s.lastCmd
}

// AdditionalInfo returns the diagnostic value left by the last failure.
func (s Session) AdditionalInfo() uint16 { return s.info }

// FileID returns the ISO file identifier of the last ISO selection.
func (s Session) FileID() ([2]byte, bool) { return s.fid, s.hasFID }

// DFName returns the DF name of the last ISO selection by name.
func (s Session) DFName() []byte { return s.dfName[:s.dfNameLen] }

// CommandLen and ProcessingLen expose the buffer lengths for diagnostics.
func (s Session) CommandLen() int    { return s.cmd.Len() }
func (s Session) ProcessingLen() int { return s.proc.Len() }

// advance steps the command counter. It saturates at its maximum, which an
// authenticated session never reaches.
func (s *Session) advance() {
	if s.counter < math.MaxUint16 {
		s.counter++
	}
}

// ResetAuth drops the authentication and its counter. The selected
// application is kept.
func (s *Session) ResetAuth() {
	s.auth = NotAuthenticated
	s.keyNo = 0
	s.counter = 0
	s.backend = nil
}

func (s *Session) selectApplication(aid [3]byte) {
	s.aid = aid
	s.hasFID = false
	s.dfNameLen = 0
}

func (s *Session) setDFName(name []byte) {
	s.dfNameLen = copy(s.dfName[:], name)
}

func (s *Session) resetBuffers() {
	s.cmd.reset()
	s.proc.reset()
}
