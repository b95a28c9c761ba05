// Package desfire is the command/response engine of DESFire-style PICCs.
//
// The engine sits between card command builders and an ISO/IEC 14443-4
// link. One call on Engine is one logical operation: the engine frames it
// into as many link exchanges as the frame size requires, follows the card's
// additional frame (0xAF) and RX chaining conventions, applies and removes
// the secure messaging envelope and maps card statuses to errors.
//
// Commands are sent natively ([cmd][header][data]) or wrapped in ISO 7816
// APDUs (90 cmd 00 00 Lc ... Le) depending on ConfigWrapped.
package desfire

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gregLibert/desfire/pkg/link"
)

// maxHeaderLen bounds the clear header of a command.
const maxHeaderLen = 32

// Engine drives one card session. Operations are serialised; the engine
// holds no goroutine of its own.
type Engine struct {
	mu   sync.Mutex
	link link.Link
	cfg  Config
	log  *zap.Logger

	sess  Session
	env   envelope
	tx    txState
	stage []byte
}

// New creates an engine on l.
func New(l link.Link, cfg Config) (e *Engine, err error) {
	defer deferWrap(&err)

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e = &Engine{
		link:  l,
		cfg:   cfg,
		log:   log.Named("desfire"),
		sess:  newSession(cfg.CommandBufferSize, cfg.ProcessingBufferSize),
		stage: make([]byte, 0, NativeChainingCap),
	}
	e.env = newEnvelope(&e.sess, frameSizes[len(frameSizes)-1]+maxHeaderLen+2*BlockSize+MACSize)
	e.sess.wrapped = cfg.Wrapped
	e.sess.extended = !cfg.ShortLength

	return e, nil
}

// Session returns a snapshot of the session state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// SetAuthenticated installs a session established by an authentication
// command. The backend is built for the configured Layer; with LayerNone the
// session is authenticated for plain communication only.
func (e *Engine) SetAuthenticated(keyNo byte, keys SessionKeys) (err error) {
	defer deferWrap(&err)

	b, err := NewBackend(e.cfg.Layer, keys, e.cfg.Backend)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.ResetAuth()
	e.sess.auth = Authenticated
	e.sess.keyNo = keyNo
	e.sess.backend = b

	e.log.Info("authenticated", zap.Uint8("key", keyNo), zap.Stringer("layer", e.cfg.Layer))
	return nil
}

// ResetAuth drops the current authentication.
func (e *Engine) ResetAuth() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetAuth("explicit")
}

func (e *Engine) resetAuth(reason string) {
	if e.sess.auth == NotAuthenticated {
		return
	}
	e.log.Info("authentication reset", zap.Uint8("key", e.sess.keyNo), zap.String("reason", reason))
	e.sess.ResetAuth()
}

// run executes one logical operation under the session lock and applies
// the failure policy.
func (e *Engine) run(op string, keepAuth bool, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.resetBuffers()
	e.sess.info = 0
	e.tx = txState{}

	err := fn()
	if err == nil {
		return nil
	}

	e.env.abort()
	e.sess.resetBuffers()
	e.tx = txState{}

	e.log.Debug("operation failed", zap.String("op", op), zap.Error(err))
	if !keepAuth && resetsAuth(err) {
		e.resetAuth(op + " failed")
	}
	return err
}

// take returns the Processing Buffer content and rewinds the buffers. The
// slice stays valid until the next operation.
func (e *Engine) take() []byte {
	out := e.sess.proc.Bytes()
	e.sess.resetBuffers()
	return out
}
