package desfire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/tlv"
)

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		tweak   func(*Config)
		wantErr error
	}{
		{"timeout", func(c *Config) { c.ExchangeTimeout = 0 }, ErrState},
		{"additional frames", func(c *Config) { c.MaxAdditionalFrames = 0 }, ErrState},
		{"command buffer", func(c *Config) { c.CommandBufferSize = 16 }, ErrState},
		{"processing buffer", func(c *Config) { c.ProcessingBufferSize = 0 }, ErrState},
		{"custom layer", func(c *Config) { c.Layer = LayerCustom }, ErrNoBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.tweak(&cfg)
			_, err := New(&scriptCard{}, cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEngine_Config(t *testing.T) {
	e, _ := newTestEngine(t, &scriptCard{}, nil)

	get := func(k ConfigKey) int {
		v, err := e.GetConfig(k)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, 0, get(ConfigWrapped))
	assert.Equal(t, 1, get(ConfigShortLength))
	assert.Equal(t, 0, get(ConfigAuthState))
	assert.Equal(t, 8, get(ConfigFrameSizeIndex))
	assert.Equal(t, 10, get(ConfigMaxAdditionalFrames))

	require.NoError(t, e.SetConfig(ConfigWrapped, 1))
	require.NoError(t, e.SetConfig(ConfigShortLength, 0))
	require.NoError(t, e.SetConfig(ConfigFrameSizeIndex, 5))
	require.NoError(t, e.SetConfig(ConfigNativeChaining, 1))
	require.NoError(t, e.SetConfig(ConfigMaxAdditionalFrames, 3))

	assert.Equal(t, 1, get(ConfigWrapped))
	assert.Equal(t, 0, get(ConfigShortLength))
	assert.Equal(t, 5, get(ConfigFrameSizeIndex))
	assert.Equal(t, 1, get(ConfigNativeChaining))
	assert.Equal(t, 3, get(ConfigMaxAdditionalFrames))

	assert.ErrorIs(t, e.SetConfig(ConfigAdditionalInfo, 1), ErrState)
	assert.ErrorIs(t, e.SetConfig(ConfigAuthState, 1), ErrState)
	assert.ErrorIs(t, e.SetConfig(ConfigMaxAdditionalFrames, 0), ErrState)
	assert.ErrorIs(t, e.SetConfig(ConfigKey(99), 1), ErrState)
	_, err := e.GetConfig(ConfigKey(99))
	assert.ErrorIs(t, err, ErrState)

	require.NoError(t, e.SetAuthenticated(0x00, testKeys))
	assert.Equal(t, 1, get(ConfigAuthState))
}

func TestEngine_WrappedSwitchAtRuntime(t *testing.T) {
	card := &scriptCard{steps: steps(tlv.Hex("00"), tlv.Hex("91 00"))}
	e, rec := newTestEngine(t, card, nil)
	ctx := context.Background()

	require.NoError(t, e.SelectApplication(ctx, RootAID))
	require.NoError(t, e.SetConfig(ConfigWrapped, 1))
	require.NoError(t, e.SelectApplication(ctx, RootAID))

	assertCommands(t, rec,
		tlv.Hex("5A 000000"),
		tlv.Hex("90 5A 00 00 03 000000 00"),
	)
}
