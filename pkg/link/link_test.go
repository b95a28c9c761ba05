package link

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gregLibert/desfire/pkg/tlv"
)

// fakeCard answers scripted responses and records every transmitted APDU.
type fakeCard struct {
	answers [][]byte
	sent    [][]byte
	err     error
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.sent = append(c.sent, append([]byte(nil), cmd...))
	if c.err != nil {
		return nil, c.err
	}
	if len(c.answers) == 0 {
		return nil, errors.New("no scripted answer")
	}
	a := c.answers[0]
	c.answers = c.answers[1:]
	return a, nil
}

// echoLink returns the frame data reversed, with a pending flag.
type echoLink struct {
	pending bool
}

func (e *echoLink) Transceive(_ context.Context, f Frame) ([]byte, error) {
	if f.Role == RoleRxChaining {
		return nil, errors.New("nothing pending")
	}
	out := make([]byte, len(f.Data))
	for i, b := range f.Data {
		out[len(out)-1-i] = b
	}
	return out, nil
}

func (e *echoLink) RxPending() bool { return e.pending }

func TestPCSC_ChainedFramesAreJoined(t *testing.T) {
	card := &fakeCard{answers: [][]byte{tlv.Hex("91 00")}}
	l := NewPCSC(card, 64)
	ctx := context.Background()

	resp, err := l.Transceive(ctx, Frame{Role: RoleFirst, Chained: true, Data: tlv.Hex("90 3D 00 00 05")})
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = l.Transceive(ctx, Frame{Role: RoleLast, Data: tlv.Hex("01 02 03 04 05 00")})
	require.NoError(t, err)

	if diff := cmp.Diff(tlv.Hex("91 00"), resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]byte{tlv.Hex("90 3D 00 00 05", "01 02 03 04 05 00")}, card.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, l.RxPending())
}

func TestPCSC_GetResponse(t *testing.T) {
	card := &fakeCard{answers: [][]byte{
		tlv.Hex("61 04"),
		tlv.Hex("6F 02 84 00", "90 00"),
	}}
	l := NewPCSC(card, 64)

	resp, err := l.Transceive(context.Background(), Frame{Data: tlv.Hex("00 A4 04 00 02 3F00 00")})
	require.NoError(t, err)

	if diff := cmp.Diff(tlv.Hex("6F 02 84 00", "90 00"), resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	want := [][]byte{
		tlv.Hex("00 A4 04 00 02 3F00 00"),
		tlv.Hex("00 C0 00 00 04"),
	}
	if diff := cmp.Diff(want, card.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestPCSC_WrongLength(t *testing.T) {
	card := &fakeCard{answers: [][]byte{
		tlv.Hex("6C 08"),
		tlv.Hex("0102030405060708 9000"),
	}}
	l := NewPCSC(card, 64)

	_, err := l.Transceive(context.Background(), Frame{Data: tlv.Hex("00 84 00 00 10")})
	require.NoError(t, err)

	assert.Equal(t, tlv.Hex("00 84 00 00 08"), card.sent[1])
}

func TestPCSC_Errors(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		card := &fakeCard{}
		l := NewPCSC(card, 64)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := l.Transceive(ctx, Frame{Data: tlv.Hex("90 60 00 00 00")})
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, card.sent)
	})

	t.Run("chain overflow", func(t *testing.T) {
		l := NewPCSC(&fakeCard{}, 4)
		_, err := l.Transceive(context.Background(), Frame{Chained: true, Data: make([]byte, 5)})
		require.ErrorIs(t, err, ErrChainTooLong)
	})

	t.Run("reader failure", func(t *testing.T) {
		boom := errors.New("reader unplugged")
		l := NewPCSC(&fakeCard{err: boom}, 64)
		_, err := l.Transceive(context.Background(), Frame{Data: tlv.Hex("90 60 00 00 00")})
		require.ErrorIs(t, err, boom)
	})
}

func TestWithLe(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		want []byte
	}{
		{"case 1", tlv.Hex("00 84 00 00"), tlv.Hex("00 84 00 00 08")},
		{"case 2", tlv.Hex("00 84 00 00 10"), tlv.Hex("00 84 00 00 08")},
		{"case 3", tlv.Hex("00 A4 04 00 01 AA"), tlv.Hex("00 A4 04 00 01 AA 08")},
		{"case 4", tlv.Hex("00 A4 04 00 01 AA 00"), tlv.Hex("00 A4 04 00 01 AA 08")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, withLe(tt.cmd, 0x08)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	base := &echoLink{pending: true}
	rec := NewRecorder(base)

	data := []byte{0x01, 0x02, 0x03}
	resp, err := rec.Transceive(context.Background(), Frame{Data: data})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x02, 0x01}, resp)

	data[0] = 0xFF
	_, err = rec.Transceive(context.Background(), Frame{Role: RoleRxChaining, Data: []byte{0x00}})
	require.Error(t, err)

	require.Len(t, rec.Trace, 2)
	assert.Equal(t, [][]byte{{0x01, 0x02, 0x03}, {0x00}}, rec.Trace.Commands())
	assert.Equal(t, []byte{0x03, 0x02, 0x01}, rec.Trace.Responses()[0])
	assert.Error(t, rec.Trace.Last().Err)
	assert.True(t, rec.RxPending())

	rec.Reset()
	assert.Nil(t, rec.Trace.Last())
}

func TestLoggingLink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogging(&echoLink{}, zap.New(core))

	_, err := l.Transceive(context.Background(), Frame{Role: RoleFirst, Data: make([]byte, 40)})
	require.NoError(t, err)
	_, err = l.Transceive(context.Background(), Frame{Role: RoleRxChaining, Data: []byte{0x00}})
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "->", entries[0].Message)
	assert.Equal(t, "first", entries[0].ContextMap()["role"])
	assert.Len(t, entries[0].ContextMap()["data"], 2)
	assert.Equal(t, "<-", entries[1].Message)
	assert.Equal(t, "rx-chaining", entries[2].ContextMap()["role"])
	assert.Equal(t, "00", entries[2].ContextMap()["data"])
	assert.Equal(t, "<- error", entries[3].Message)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "rx-chaining", RoleRxChaining.String())
	assert.Equal(t, "Role(9)", Role(9).String())
}
