package desfire

import (
	"time"

	"github.com/ansel1/merry/v2"
	"go.uber.org/zap"
)

// Config parameterises an Engine.
type Config struct {
	// FrameSizeIndex is the FSCI reported by the card.
	FrameSizeIndex int
	// NativeChaining sends long commands as 0xAF frames of at most 64
	// bytes instead of ISO 14443-4 chaining.
	NativeChaining bool
	// Wrapped encapsulates native commands in ISO 7816 APDUs.
	Wrapped bool
	// ShortLength prefers short Lc/Le fields.
	ShortLength bool
	// ExchangeTimeout bounds every link exchange.
	ExchangeTimeout time.Duration
	// MaxAdditionalFrames bounds consecutive 0xAF answers that bring no
	// progress.
	MaxAdditionalFrames int

	CommandBufferSize    int
	ProcessingBufferSize int

	Layer   Layer
	Backend Backend

	Logger *zap.Logger
}

// DefaultConfig returns the settings for a 256 byte frame card over a
// native link.
func DefaultConfig() Config {
	return Config{
		FrameSizeIndex:       8,
		ShortLength:          true,
		ExchangeTimeout:      time.Second,
		MaxAdditionalFrames:  10,
		CommandBufferSize:    frameSizes[len(frameSizes)-1],
		ProcessingBufferSize: 8192,
		Layer:                LayerSoftware,
	}
}

func (c Config) validate() error {
	switch {
	case c.ExchangeTimeout <= 0:
		return merry.Errorf("%w: exchange timeout must be positive", ErrState)
	case c.MaxAdditionalFrames <= 0:
		return merry.Errorf("%w: max additional frames must be positive", ErrState)
	case c.CommandBufferSize < NativeChainingCap:
		return merry.Errorf("%w: command buffer smaller than %d bytes", ErrState, NativeChainingCap)
	case c.ProcessingBufferSize <= 0:
		return merry.Errorf("%w: processing buffer size must be positive", ErrState)
	case c.Layer == LayerCustom && c.Backend == nil:
		return merry.Errorf("%w: custom layer without backend", ErrNoBackend)
	}
	return nil
}

// ConfigKey names a runtime setting.
type ConfigKey int

const (
	// ConfigAdditionalInfo is the diagnostic detail of the last failure.
	// Read only.
	ConfigAdditionalInfo ConfigKey = iota
	ConfigWrapped
	ConfigShortLength
	// ConfigAuthState is 1 when authenticated. Read only.
	ConfigAuthState
	ConfigFrameSizeIndex
	ConfigNativeChaining
	ConfigMaxAdditionalFrames
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetConfig reads a runtime setting.
func (e *Engine) GetConfig(key ConfigKey) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch key {
	case ConfigAdditionalInfo:
		return int(e.sess.info), nil
	case ConfigWrapped:
		return boolInt(e.sess.wrapped), nil
	case ConfigShortLength:
		return boolInt(!e.sess.extended), nil
	case ConfigAuthState:
		return boolInt(e.sess.auth == Authenticated), nil
	case ConfigFrameSizeIndex:
		return e.cfg.FrameSizeIndex, nil
	case ConfigNativeChaining:
		return boolInt(e.cfg.NativeChaining), nil
	case ConfigMaxAdditionalFrames:
		return e.cfg.MaxAdditionalFrames, nil
	default:
		return 0, merry.Errorf("%w: unknown config key %d", ErrState, int(key))
	}
}

// SetConfig changes a runtime setting.
func (e *Engine) SetConfig(key ConfigKey, value int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch key {
	case ConfigWrapped:
		e.sess.wrapped = value != 0
	case ConfigShortLength:
		e.sess.extended = value == 0
	case ConfigFrameSizeIndex:
		e.cfg.FrameSizeIndex = value
	case ConfigNativeChaining:
		e.cfg.NativeChaining = value != 0
	case ConfigMaxAdditionalFrames:
		if value <= 0 {
			return merry.Errorf("%w: max additional frames must be positive", ErrState)
		}
		e.cfg.MaxAdditionalFrames = value
	case ConfigAdditionalInfo, ConfigAuthState:
		return merry.Errorf("%w: config key %d is read only", ErrState, int(key))
	default:
		return merry.Errorf("%w: unknown config key %d", ErrState, int(key))
	}
	return nil
}
