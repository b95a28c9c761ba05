package iso7816

import "fmt"

// READ RECORD ('B2'), ISO 7816-4 §11.3.3:
//
//	P1 = record number (00 = current record) or record identifier
//	P2 = SFI << 3 | b3 b2 b1
//
// b3 = 1 addresses records by number: 100 reads record P1, 101 reads P1 up
// to the last, 110 reads the last down to P1. b3 = 0 addresses them by
// identifier and b2 b1 picks the occurrence. A cyclic or linear record file
// of the PICC numbers its records from 1 = newest.

// ReadRecordMode is the low three bits of P2.
type ReadRecordMode byte

const (
	RefByID_FirstOccurrence    ReadRecordMode = 0b000
	RefByID_LastOccurrence     ReadRecordMode = 0b001
	RefByID_NextOccurrence     ReadRecordMode = 0b010
	RefByID_PreviousOccurrence ReadRecordMode = 0b011

	RefByNum_ReadP1              ReadRecordMode = 0b100
	RefByNum_ReadAllFromP1       ReadRecordMode = 0b101
	RefByNum_ReadAllFromLastToP1 ReadRecordMode = 0b110
)

var readRecordModeNames = map[ReadRecordMode]string{
	RefByID_FirstOccurrence:      "first occurrence of ID P1",
	RefByID_LastOccurrence:       "last occurrence of ID P1",
	RefByID_NextOccurrence:       "next occurrence of ID P1",
	RefByID_PreviousOccurrence:   "previous occurrence of ID P1",
	RefByNum_ReadP1:              "record P1",
	RefByNum_ReadAllFromP1:       "records P1 to last",
	RefByNum_ReadAllFromLastToP1: "records last to P1",
}

func (m ReadRecordMode) String() string {
	if name, ok := readRecordModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ReadRecordMode(0b%03b)", byte(m))
}

// NewReadRecordCommand builds READ RECORD (Case 2). Only the low five bits
// of sfi are used; ne = MaxShortLe asks for everything in short form.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode ReadRecordMode, ne int) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_RECORD)
	p2 := (sfi&MaxSFI)<<3 | byte(mode)&0x07

	return NewCommandAPDU(cla, ins, p1, p2, nil, ne)
}

// ReadRecord reads one record by number.
func ReadRecord(cla Class, sfi, record byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, record, RefByNum_ReadP1, MaxShortLe)
}

// ReadAllRecords reads from record start to the last one.
func ReadAllRecords(cla Class, sfi, start byte, ne int) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, start, RefByNum_ReadAllFromP1, ne)
}
