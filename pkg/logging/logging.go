// Package logging builds the zap loggers used by the command line tools.
//
// Library packages never log through a global: they take a *zap.Logger and
// default to zap.NewNop().
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gregLibert/desfire/pkg/tlv"
)

// EnvLevel names the environment variable holding the log level.
const EnvLevel = "DESFIRE_LOG_LEVEL"

// New returns a development logger whose level comes from DESFIRE_LOG_LEVEL
// (debug, info, warn, error; info when unset or unknown).
func New() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(Level(os.Getenv(EnvLevel)))

	return config.Build()
}

// Level parses a level name, falling back to info.
func Level(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Hex is a zap field rendering b as upper-case hex.
func Hex(key string, b []byte) zap.Field {
	return zap.String(key, tlv.UpperHex(b))
}
