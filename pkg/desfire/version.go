package desfire

import (
	"fmt"
	"strings"

	"github.com/gregLibert/desfire/pkg/tlv"
)

// VersionLen is the size of the three GetVersion frames.
const VersionLen = 28

// ProductInfo is one of the hardware or software parts of GetVersion.
type ProductInfo struct {
	VendorID    byte
	Type        byte
	SubType     byte
	Major       byte
	Minor       byte
	StorageSize byte
	Protocol    byte
}

// StorageBytes decodes the storage size: 2^(n>>1), marked approximate when
// the low bit is set.
func (p ProductInfo) StorageBytes() (size int, approx bool) {
	return 1 << (p.StorageSize >> 1), p.StorageSize&0x01 != 0
}

// Version is the answer to GetVersion.
type Version struct {
	Hardware ProductInfo
	Software ProductInfo
	UID      [7]byte
	BatchNo  [5]byte
	// ProdWeek and ProdYear are BCD.
	ProdWeek byte
	ProdYear byte
}

func parseProductInfo(b []byte) ProductInfo {
	return ProductInfo{
		VendorID:    b[0],
		Type:        b[1],
		SubType:     b[2],
		Major:       b[3],
		Minor:       b[4],
		StorageSize: b[5],
		Protocol:    b[6],
	}
}

// ParseVersion decodes the concatenated GetVersion frames.
func ParseVersion(data []byte) (*Version, error) {
	if len(data) < VersionLen {
		return nil, protocolErrorf("version of %d bytes, want %d", len(data), VersionLen)
	}

	v := &Version{
		Hardware: parseProductInfo(data[0:7]),
		Software: parseProductInfo(data[7:14]),
		ProdWeek: data[26],
		ProdYear: data[27],
	}
	copy(v.UID[:], data[14:21])
	copy(v.BatchNo[:], data[21:26])
	return v, nil
}

// Describe renders the version as an indented report.
func (v *Version) Describe() string {
	var sb strings.Builder

	part := func(name string, p ProductInfo) {
		size, approx := p.StorageBytes()
		sign := ""
		if approx {
			sign = ">"
		}
		fmt.Fprintf(&sb, "    - %s: vendor %02X type %02X/%02X v%d.%d storage %s%d bytes protocol %02X\n",
			name, p.VendorID, p.Type, p.SubType, p.Major, p.Minor, sign, size, p.Protocol)
	}
	part("Hardware", v.Hardware)
	part("Software", v.Software)
	fmt.Fprintf(&sb, "    - UID: %s\n", tlv.UpperHex(v.UID[:]))
	fmt.Fprintf(&sb, "    - Batch: %s\n", tlv.UpperHex(v.BatchNo[:]))
	fmt.Fprintf(&sb, "    - Production: week %02X of 20%02X", v.ProdWeek, v.ProdYear)

	return sb.String()
}
