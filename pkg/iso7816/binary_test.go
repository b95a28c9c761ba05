package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/desfire/pkg/tlv"
)

func TestBinaryCommands(t *testing.T) {
	cls := InterindustryClass()

	mustBytes := func(c *CommandAPDU, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		b, err := c.Bytes()
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		return b
	}

	tests := []struct {
		name string
		got  func() []byte
		want []byte
	}{
		{
			name: "Read binary current EF, offset 0x0102",
			got:  func() []byte { return mustBytes(ReadBinary(cls, 0, 0x0102, 16)) },
			want: tlv.Hex("00 B0 01 02", "10"),
		},
		{
			name: "Read binary SFI 2, all",
			got:  func() []byte { return mustBytes(ReadBinary(cls, 2, 4, 0)) },
			want: tlv.Hex("00 B0 82 04", "00"),
		},
		{
			name: "Update binary SFI 3",
			got:  func() []byte { return mustBytes(UpdateBinary(cls, 3, 0, []byte{0xCA, 0xFE})) },
			want: tlv.Hex("00 D6 83 00", "02 CAFE"),
		},
		{
			name: "Append record SFI 1",
			got:  func() []byte { return mustBytes(AppendRecord(cls, 1, []byte{0x01})) },
			want: tlv.Hex("00 E2 00 08", "01 01"),
		},
		{
			name: "Get challenge 8 bytes",
			got:  func() []byte { return mustBytes(GetChallenge(cls, 8), nil) },
			want: tlv.Hex("00 84 00 00", "08"),
		},
		{
			name: "Get response 256",
			got:  func() []byte { return mustBytes(GetResponse(cls, 0x00), nil) },
			want: tlv.Hex("00 C0 00 00", "00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got()); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinaryAddressingErrors(t *testing.T) {
	cls := InterindustryClass()

	if _, err := ReadBinary(cls, 0x20, 0, 1); err == nil {
		t.Error("SFI 0x20 should be rejected")
	}
	if _, err := ReadBinary(cls, 1, 0x100, 1); err == nil {
		t.Error("offset above 255 with SFI should be rejected")
	}
	if _, err := ReadBinary(cls, 1, -1, 1); err == nil {
		t.Error("negative offset with SFI should be rejected")
	}
	if _, err := UpdateBinary(cls, 0, -1, []byte{0x00}); err == nil {
		t.Error("negative offset should be rejected")
	}
	if _, err := UpdateBinary(cls, 0, 0x8000, nil); err == nil {
		t.Error("offset above 0x7FFF should be rejected")
	}
	if _, err := AppendRecord(cls, 0x20, nil); err == nil {
		t.Error("SFI 0x20 should be rejected")
	}
}
