package link

import (
	"context"

	"go.uber.org/zap"

	"github.com/gregLibert/desfire/pkg/logging"
	"github.com/gregLibert/desfire/pkg/tlv"
)

const logChunk = 32

type loggingLink struct {
	base Link
	log  *zap.Logger
}

// NewLogging wraps base and logs each frame at debug level.
func NewLogging(base Link, log *zap.Logger) Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &loggingLink{base: base, log: log.Named("link")}
}

func chunks(buf []byte, sz int) (bufs [][]byte) {
	for len(buf) > sz {
		bufs = append(bufs, buf[0:sz])
		buf = buf[sz:]
	}
	return append(bufs, buf)
}

// hexField keeps short frames on one value and splits long ones in rows.
func hexField(b []byte) zap.Field {
	if len(b) <= logChunk {
		return logging.Hex("data", b)
	}
	rows := chunks(b, logChunk)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = tlv.UpperHex(r)
	}
	return zap.Strings("data", out)
}

func (l *loggingLink) Transceive(ctx context.Context, f Frame) ([]byte, error) {
	if ce := l.log.Check(zap.DebugLevel, "->"); ce != nil {
		ce.Write(zap.Stringer("role", f.Role), zap.Bool("chained", f.Chained), hexField(f.Data))
	}

	resp, err := l.base.Transceive(ctx, f)
	if err != nil {
		l.log.Debug("<- error", zap.Error(err))
		return resp, err
	}

	if ce := l.log.Check(zap.DebugLevel, "<-"); ce != nil {
		ce.Write(zap.Bool("pending", l.base.RxPending()), hexField(resp))
	}
	return resp, nil
}

func (l *loggingLink) RxPending() bool {
	return l.base.RxPending()
}
