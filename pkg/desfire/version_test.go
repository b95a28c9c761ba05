package desfire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/tlv"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion(tlv.Hex(
		"04 01 01 01 00 1A 05",
		"04 01 01 01 04 1B 05",
		"04 12 34 56 78 9A BC", "BA 54 00 00 00", "21 19",
	))
	require.NoError(t, err)

	size, approx := v.Hardware.StorageBytes()
	assert.Equal(t, 8192, size)
	assert.False(t, approx)
	_, approx = v.Software.StorageBytes()
	assert.True(t, approx)

	want := "    - Hardware: vendor 04 type 01/01 v1.0 storage 8192 bytes protocol 05\n" +
		"    - Software: vendor 04 type 01/01 v1.4 storage >8192 bytes protocol 05\n" +
		"    - UID: 04123456789ABC\n" +
		"    - Batch: BA54000000\n" +
		"    - Production: week 21 of 2019"
	assert.Equal(t, want, v.Describe())

	_, err = ParseVersion(tlv.Hex("04 01 01"))
	assert.ErrorIs(t, err, ErrProtocol)
}
