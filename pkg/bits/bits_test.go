package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0x01}, {5, 0x10}, {8, 0x80}, {0, 0x00},
		{9, 0x00}, // out of range is ignored
	}

	for _, tt := range tests {
		if res := Bit(tt.n); res != tt.expected {
			t.Errorf("Bit(%d) = 0x%02X; want 0x%02X", tt.n, res, tt.expected)
		}
	}
}

func TestSetClear(t *testing.T) {
	b := Set(0, 5)
	if b != 0x10 {
		t.Errorf("Set(5) = 0b%08b; want 0b%08b", b, 0x10)
	}
	if !IsSet(b, 5) {
		t.Error("bit 5 should be set")
	}
	if b = Clear(b, 5); b != 0 {
		t.Errorf("Clear(5) = 0b%08b; want 0", b)
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		expected byte
	}{
		{"Bits 4-3 of 0x0C", 0b0000_1100, 4, 3, 3},
		{"Bits 2-1 of 0x03", 0b0000_0011, 2, 1, 3},
		{"Bits 8-7 of 0x40", 0b0100_0000, 8, 7, 1},
		{"Full Byte", 0xAA, 8, 1, 0xAA},
		{"Inverted range", 0xFF, 1, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := GetRange(tt.input, tt.high, tt.low); res != tt.expected {
				t.Errorf("GetRange(0x%02X, %d, %d) = %d; want %d", tt.input, tt.high, tt.low, res, tt.expected)
			}
		})
	}
}

func TestUint24(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		wire  [3]byte
	}{
		{"zero", 0, [3]byte{0, 0, 0}},
		{"256", 256, [3]byte{0x00, 0x01, 0x00}},
		{"max", MaxUint24, [3]byte{0xFF, 0xFF, 0xFF}},
		{"mixed", 0x123456, [3]byte{0x56, 0x34, 0x12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PutUint24(tt.value); got != tt.wire {
				t.Errorf("PutUint24(%d) = % X; want % X", tt.value, got, tt.wire)
			}
			if got := Uint24(tt.wire); got != tt.value {
				t.Errorf("Uint24(% X) = %d; want %d", tt.wire, got, tt.value)
			}
		})
	}

	got := AppendUint24([]byte{0xBD}, [3]byte{1, 2, 3})
	if len(got) != 4 || got[1] != 1 || got[3] != 3 {
		t.Errorf("AppendUint24 = % X", got)
	}
}
