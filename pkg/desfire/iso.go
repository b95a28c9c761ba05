package desfire

import (
	"bytes"
	"context"

	"github.com/ansel1/merry/v2"

	"github.com/gregLibert/desfire/pkg/iso7816"
)

// ISO 7816-4 FILE COMMANDS:
// The card also answers standard interindustry APDUs (CLA 00). They travel
// through the same Command Buffer and frame ceiling as native commands, the
// status being the trailing SW1SW2. Lc and Le use the short form unless the
// session prefers the extended form or a length exceeds 255.

// isoLe returns Ne for a read of length bytes, zero meaning "as much as the
// card has", and whether the extended form is required.
func (e *Engine) isoLe(length int) (int, bool) {
	switch {
	case length == 0 && e.sess.extended:
		return iso7816.MaxExtendedLe, true
	case length == 0:
		return iso7816.MaxShortLe, false
	case length > iso7816.MaxShortLc:
		return length, true
	default:
		return length, e.sess.extended
	}
}

// apdu sends cmd and collects its response into the Processing Buffer.
func (e *Engine) apdu(ctx context.Context, cmd *iso7816.CommandAPDU) (err error) {
	defer deferWrap(&err)

	cmd.Extended = cmd.Extended || e.sess.extended || len(cmd.Data) > iso7816.MaxShortLc

	if _, err = e.env.Apply(true, true, CommPlain, byte(cmd.Instruction.Raw), nil, nil); err != nil {
		return err
	}
	if err = e.openAPDU(ctx, cmd); err != nil {
		return err
	}
	res, err := e.finish(ctx)
	if err != nil {
		return err
	}
	return e.collect(ctx, res, CommPlain, false)
}

// ISOSelectFile selects a file or application and returns its FCI, nil when
// ctrl asks for no data.
//
// Selecting an EF under the current DF keeps the authentication. Any other
// selection drops it; selecting the MF (3F00) also moves the native
// selection to the card level.
func (e *Engine) ISOSelectFile(ctx context.Context, method iso7816.SelectionMethod, ctrl iso7816.SelectionControl, data []byte) (fci *iso7816.FileControlInfo, err error) {
	defer deferWrap(&err)

	if method == iso7816.SelectByDFName && len(data) > MaxDFNameLen {
		return nil, merry.Errorf("%w: DF name of %d bytes", ErrState, len(data))
	}

	err = e.run("ISOSelectFile", false, func() error {
		cmd := iso7816.NewSelectCommand(iso7816.InterindustryClass(), method, iso7816.FirstOrOnlyOccurrence, ctrl, data)
		if e.sess.extended && cmd.Ne == iso7816.MaxShortLe {
			cmd.Ne = iso7816.MaxExtendedLe
		}
		if err := e.apdu(ctx, cmd); err != nil {
			return err
		}

		resp := bytes.Clone(e.take())
		fci, err = iso7816.ParseSelectData(resp, cmd.P2)
		if err != nil {
			return protocolErrorf("FCI: %v", err)
		}

		e.selected(method, data, fci)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fci, nil
}

// selected records a successful ISO selection in the session. A DF selected
// by name takes its file identifier from the FCI when the card returns one.
func (e *Engine) selected(method iso7816.SelectionMethod, data []byte, fci *iso7816.FileControlInfo) {
	s := &e.sess

	switch {
	case method == iso7816.SelectEFUnderCurrentDF:
		if len(data) == 2 {
			s.fid, s.hasFID = [2]byte{data[0], data[1]}, true
		}
		return

	case method == iso7816.SelectByDFName:
		s.fid, s.hasFID = fci.FileID()
		s.setDFName(data)

	case method == iso7816.SelectByFileID && iso7816.IsMasterFile(data):
		s.selectApplication(RootAID)
		s.fid, s.hasFID = [2]byte{0x3F, 0x00}, true

	default:
		s.hasFID = len(data) >= 2
		if s.hasFID {
			s.fid = [2]byte{data[len(data)-2], data[len(data)-1]}
		}
	}
	e.resetAuth("ISO selection")
}

// ISOReadBinary reads length bytes at offset of a transparent EF. sfi 0
// reads the current EF; length 0 reads as much as possible.
func (e *Engine) ISOReadBinary(ctx context.Context, sfi byte, offset, length int) (data []byte, err error) {
	defer deferWrap(&err)

	err = e.run("ISOReadBinary", false, func() error {
		ne, ext := e.isoLe(length)
		cmd, err := iso7816.ReadBinary(iso7816.InterindustryClass(), sfi, offset, ne)
		if err != nil {
			return merry.Errorf("%w: %w", ErrState, err)
		}
		cmd.Extended = ext
		if err = e.apdu(ctx, cmd); err != nil {
			return err
		}
		data = e.take()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ISOUpdateBinary writes data at offset of a transparent EF.
func (e *Engine) ISOUpdateBinary(ctx context.Context, sfi byte, offset int, data []byte) (err error) {
	defer deferWrap(&err)

	return e.run("ISOUpdateBinary", false, func() error {
		cmd, err := iso7816.UpdateBinary(iso7816.InterindustryClass(), sfi, offset, data)
		if err != nil {
			return merry.Errorf("%w: %w", ErrState, err)
		}
		return e.apdu(ctx, cmd)
	})
}

// ISOReadRecords reads record (1 = newest) of a record EF, or every record
// from it when all is set. length 0 reads as much as possible.
func (e *Engine) ISOReadRecords(ctx context.Context, sfi, record byte, all bool, length int) (data []byte, err error) {
	defer deferWrap(&err)

	if sfi > iso7816.MaxSFI {
		return nil, merry.Errorf("%w: SFI %d out of range", ErrState, sfi)
	}

	err = e.run("ISOReadRecords", false, func() error {
		mode := iso7816.RefByNum_ReadP1
		if all {
			mode = iso7816.RefByNum_ReadAllFromP1
		}
		ne, ext := e.isoLe(length)
		cmd := iso7816.NewReadRecordCommand(iso7816.InterindustryClass(), sfi, record, mode, ne)
		cmd.Extended = ext
		if err := e.apdu(ctx, cmd); err != nil {
			return err
		}
		data = e.take()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ISOAppendRecord adds a record to a record EF.
func (e *Engine) ISOAppendRecord(ctx context.Context, sfi byte, record []byte) (err error) {
	defer deferWrap(&err)

	return e.run("ISOAppendRecord", false, func() error {
		cmd, err := iso7816.AppendRecord(iso7816.InterindustryClass(), sfi, record)
		if err != nil {
			return merry.Errorf("%w: %w", ErrState, err)
		}
		return e.apdu(ctx, cmd)
	})
}

// ISOGetChallenge returns n random bytes from the card.
func (e *Engine) ISOGetChallenge(ctx context.Context, n int) (data []byte, err error) {
	defer deferWrap(&err)

	if n <= 0 {
		return nil, merry.Errorf("%w: challenge of %d bytes", ErrState, n)
	}

	err = e.run("ISOGetChallenge", false, func() error {
		cmd := iso7816.GetChallenge(iso7816.InterindustryClass(), n)
		if err := e.apdu(ctx, cmd); err != nil {
			return err
		}
		data = e.take()
		if len(data) != n {
			return protocolErrorf("challenge of %d bytes, asked %d", len(data), n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
