package desfire

import (
	"context"
	"encoding/binary"

	"github.com/ansel1/merry/v2"

	"github.com/gregLibert/desfire/pkg/bits"
	"github.com/gregLibert/desfire/pkg/link"
)

// Native command codes.
const (
	cmdCredit            byte = 0x0C
	cmdLimitedCredit     byte = 0x1C
	cmdWriteData         byte = 0x3D
	cmdWriteRecord       byte = 0x3B
	cmdSelectApplication byte = 0x5A
	cmdGetVersion        byte = 0x60
	cmdGetValue          byte = 0x6C
	cmdAbortTransaction  byte = 0xA7
	cmdReadRecords       byte = 0xBB
	cmdReadData          byte = 0xBD
	cmdCommitTransaction byte = 0xC7
	cmdDeleteApplication byte = 0xDA
	cmdDebit             byte = 0xDC
	cmdClearRecordFile   byte = 0xEB
)

// fileHeader builds [file][offset][length].
func fileHeader(dst *[7]byte, fileNo byte, offset, length [3]byte) []byte {
	h := append(dst[:0], fileNo)
	h = bits.AppendUint24(h, offset)
	return bits.AppendUint24(h, length)
}

// dataLength encodes the length of a write.
func dataLength(data []byte) ([3]byte, error) {
	if len(data) > bits.MaxUint24 {
		return [3]byte{}, merry.Errorf("%w: %d bytes exceed a 3-byte length", ErrState, len(data))
	}
	return bits.PutUint24(uint32(len(data))), nil
}

// SelectApplication selects aid; RootAID selects the card level. Selecting
// always drops the authentication.
func (e *Engine) SelectApplication(ctx context.Context, aid [3]byte) (err error) {
	defer deferWrap(&err)

	return e.run("SelectApplication", false, func() error {
		if err := e.command(ctx, cmdSelectApplication, aid[:], nil, CommPlain); err != nil {
			return err
		}
		e.sess.selectApplication(aid)
		e.resetAuth("application selected")
		return nil
	})
}

// DeleteApplication deletes aid. Deleting the selected application moves
// the selection to the card level. A failure keeps the authentication.
func (e *Engine) DeleteApplication(ctx context.Context, mode CommMode, aid [3]byte) (err error) {
	defer deferWrap(&err)

	return e.run("DeleteApplication", true, func() error {
		if err := e.command(ctx, cmdDeleteApplication, aid[:], nil, mode); err != nil {
			return err
		}
		if e.sess.aid == aid {
			e.sess.selectApplication(RootAID)
		}
		return nil
	})
}

// GetVersion reads the three version frames.
func (e *Engine) GetVersion(ctx context.Context) (v *Version, err error) {
	defer deferWrap(&err)

	err = e.run("GetVersion", false, func() error {
		data, _, err := e.read(ctx, cmdGetVersion, nil, CommPlain, 0)
		if err != nil {
			return err
		}
		v, err = ParseVersion(data)
		return err
	})
	return v, err
}

// ReadData reads length bytes at offset of a standard or backup file. A
// zero length reads up to the end of the file. The returned slice is valid
// until the next operation.
func (e *Engine) ReadData(ctx context.Context, mode CommMode, fileNo byte, offset, length [3]byte) (data []byte, err error) {
	defer deferWrap(&err)

	err = e.run("ReadData", false, func() error {
		var hdr [7]byte
		data, _, err = e.read(ctx, cmdReadData, fileHeader(&hdr, fileNo, offset, length), mode, 0)
		if err != nil {
			return err
		}
		if want := bits.Uint24(length); want != 0 && uint32(len(data)) != want {
			return protocolErrorf("read %d bytes, asked %d", len(data), want)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteData writes data at offset of a standard or backup file.
func (e *Engine) WriteData(ctx context.Context, mode CommMode, fileNo byte, offset [3]byte, data []byte) (err error) {
	defer deferWrap(&err)

	length, err := dataLength(data)
	if err != nil {
		return err
	}
	return e.run("WriteData", false, func() error {
		var hdr [7]byte
		return e.command(ctx, cmdWriteData, fileHeader(&hdr, fileNo, offset, length), data, mode)
	})
}

// ReadRecords reads count records starting at offset (records back from the
// newest). A zero count reads every record; the count is then inferred from
// recordSize.
func (e *Engine) ReadRecords(ctx context.Context, mode CommMode, fileNo byte, offset, count [3]byte, recordSize int) (data []byte, n int, err error) {
	defer deferWrap(&err)

	if recordSize <= 0 {
		return nil, 0, merry.Errorf("%w: record size %d", ErrState, recordSize)
	}

	err = e.run("ReadRecords", false, func() error {
		var hdr [7]byte
		data, n, err = e.read(ctx, cmdReadRecords, fileHeader(&hdr, fileNo, offset, count), mode, recordSize)
		if err != nil {
			return err
		}
		if want := int(bits.Uint24(count)); want != 0 && n != want {
			return protocolErrorf("read %d records, asked %d", n, want)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return data, n, nil
}

// WriteRecord writes data at offset of the current record.
func (e *Engine) WriteRecord(ctx context.Context, mode CommMode, fileNo byte, offset [3]byte, data []byte) (err error) {
	defer deferWrap(&err)

	length, err := dataLength(data)
	if err != nil {
		return err
	}
	return e.run("WriteRecord", false, func() error {
		var hdr [7]byte
		return e.command(ctx, cmdWriteRecord, fileHeader(&hdr, fileNo, offset, length), data, mode)
	})
}

// ClearRecordFile empties a record file.
func (e *Engine) ClearRecordFile(ctx context.Context, mode CommMode, fileNo byte) (err error) {
	defer deferWrap(&err)

	return e.run("ClearRecordFile", false, func() error {
		return e.command(ctx, cmdClearRecordFile, []byte{fileNo}, nil, mode)
	})
}

// GetValue reads a value file.
func (e *Engine) GetValue(ctx context.Context, mode CommMode, fileNo byte) (v int32, err error) {
	defer deferWrap(&err)

	err = e.run("GetValue", false, func() error {
		data, _, err := e.read(ctx, cmdGetValue, []byte{fileNo}, mode, 0)
		if err != nil {
			return err
		}
		if len(data) != 4 {
			return protocolErrorf("value of %d bytes", len(data))
		}
		v = int32(binary.LittleEndian.Uint32(data))
		return nil
	})
	return v, err
}

func (e *Engine) valueOp(ctx context.Context, op string, cmd byte, mode CommMode, fileNo byte, amount int32) error {
	return e.run(op, false, func() error {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(amount))
		return e.command(ctx, cmd, []byte{fileNo}, buf[:], mode)
	})
}

// Credit increases a value file.
func (e *Engine) Credit(ctx context.Context, mode CommMode, fileNo byte, amount int32) (err error) {
	defer deferWrap(&err)
	return e.valueOp(ctx, "Credit", cmdCredit, mode, fileNo, amount)
}

// Debit decreases a value file.
func (e *Engine) Debit(ctx context.Context, mode CommMode, fileNo byte, amount int32) (err error) {
	defer deferWrap(&err)
	return e.valueOp(ctx, "Debit", cmdDebit, mode, fileNo, amount)
}

// LimitedCredit increases a value file by at most the debits of the
// previous transaction.
func (e *Engine) LimitedCredit(ctx context.Context, mode CommMode, fileNo byte, amount int32) (err error) {
	defer deferWrap(&err)
	return e.valueOp(ctx, "LimitedCredit", cmdLimitedCredit, mode, fileNo, amount)
}

// CommitTransaction validates the pending backup, value and record file
// changes.
func (e *Engine) CommitTransaction(ctx context.Context, mode CommMode) (err error) {
	defer deferWrap(&err)

	return e.run("CommitTransaction", false, func() error {
		return e.command(ctx, cmdCommitTransaction, nil, nil, mode)
	})
}

// AbortTransaction discards the pending changes.
func (e *Engine) AbortTransaction(ctx context.Context, mode CommMode) (err error) {
	defer deferWrap(&err)

	return e.run("AbortTransaction", false, func() error {
		return e.command(ctx, cmdAbortTransaction, nil, nil, mode)
	})
}

// Transceive sends frame as one exchange, frame[0] being the command code,
// and returns the answer shaped by opts. No envelope and no continuation
// is applied; a 0xAF status is returned as Continue.
func (e *Engine) Transceive(ctx context.Context, frame []byte, opts Options) (data []byte, out Outcome, err error) {
	defer deferWrap(&err)

	if len(frame) == 0 {
		return nil, Continue, merry.Errorf("%w: empty frame", ErrState)
	}

	err = e.run("Transceive", false, func() error {
		e.sess.lastCmd = frame[0]
		res, err := e.exchange(ctx, Frame{Role: link.RoleDefault, Options: opts, WantLe: true}, frame)
		if err != nil {
			return err
		}
		out = res.outcome
		if err = e.sess.proc.append(res.data...); err != nil {
			return err
		}
		data = e.take()
		return nil
	})
	if err != nil {
		return nil, Continue, err
	}
	return data, out, nil
}
