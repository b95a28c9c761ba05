package desfire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint16
		iso      bool
		wantOut  Outcome
		wantInfo uint16
		wantCode Code
		wantErr  error
	}{
		{name: "native OK", raw: 0x00, wantOut: Success},
		{name: "native additional frame", raw: 0xAF, wantOut: Continue},
		{name: "wrapped OK", raw: 0x9100, iso: true, wantOut: Success},
		{name: "wrapped additional frame", raw: 0x91AF, iso: true, wantOut: Continue},
		{name: "ISO success", raw: 0x9000, iso: true, wantOut: Success},

		{name: "native parameter error", raw: 0x9E, wantCode: CodeParameter},
		{name: "wrapped authentication error", raw: 0x91AE, iso: true, wantCode: CodeAuthentication},
		{name: "no changes", raw: 0x0C, wantCode: CodeNoChanges},
		{name: "EEPROM error", raw: 0xEE, wantCode: CodeGeneric, wantInfo: 0xEE},
		{name: "wrapped PICC disabled", raw: 0x91CD, iso: true, wantCode: CodeGeneric, wantInfo: 0x91CD},
		{name: "ISO file not found", raw: 0x6A82, iso: true, wantCode: CodeISO7816, wantInfo: 0x6A82},
		{name: "ISO warning", raw: 0x6282, iso: true, wantCode: CodeISO7816, wantInfo: 0x6282},

		{name: "unknown native", raw: 0x42, wantErr: ErrProtocol},
		{name: "local code is not a card status", raw: 0xFE, wantErr: ErrProtocol},
		{name: "ISO word on a native link", raw: 0x6A82, wantErr: ErrProtocol},
		{name: "garbage word", raw: 0x1234, iso: true, wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, info, err := Translate(tt.raw, tt.iso)
			assert.Equal(t, tt.wantInfo, info)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)

			case tt.wantCode != CodeOK:
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantCode, se.Code)
				assert.Equal(t, tt.raw, se.Raw)
				assert.ErrorIs(t, err, tt.wantCode)

			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantOut, out)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := error(&StatusError{Code: CodePermissionDenied, Raw: 0x919D})
	assert.Equal(t, "card status 919D: permission denied", err.Error())
	assert.True(t, errors.Is(err, CodePermissionDenied))
	assert.Equal(t, "Code(42)", Code(0x42).String())
}

func TestResetsAuth(t *testing.T) {
	assert.True(t, resetsAuth(&StatusError{Code: CodePermissionDenied}))
	assert.False(t, resetsAuth(&StatusError{Code: CodeNoChanges}))
	assert.False(t, resetsAuth(&StatusError{Code: CodeDuplicate}))
	assert.True(t, resetsAuth(ErrTransport))
	assert.True(t, resetsAuth(CodeIntegrity))
	assert.False(t, resetsAuth(ErrBufferOverflow))
	assert.False(t, resetsAuth(ErrState))
}
