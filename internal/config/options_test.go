package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	assert.True(t, o.Color())
	assert.False(t, o.PrintSNR())
	assert.False(t, o.JSONMessages())
	assert.False(t, o.MachineOutput())
	assert.Equal(t, DefaultAckTimeout, o.AckTimeout())
}

func TestOptionsSetByName(t *testing.T) {
	tests := []struct {
		name    string
		option  string
		value   string
		wantErr bool
		check   func(t *testing.T, o *Options)
	}{
		{
			name:   "color off",
			option: OptColor,
			value:  "off",
			check: func(t *testing.T, o *Options) {
				assert.False(t, o.Color())
			},
		},
		{
			name:   "print_snr on",
			option: OptPrintSNR,
			value:  "on",
			check: func(t *testing.T, o *Options) {
				assert.True(t, o.PrintSNR())
			},
		},
		{
			name:   "json_msgs true",
			option: OptJSONMsgs,
			value:  "true",
			check: func(t *testing.T, o *Options) {
				assert.True(t, o.JSONMessages())
			},
		},
		{
			name:   "ack_timeout fractional seconds",
			option: OptAckTimeout,
			value:  "2.5",
			check: func(t *testing.T, o *Options) {
				assert.Equal(t, 2500*time.Millisecond, o.AckTimeout())
			},
		},
		{
			name:   "ack_timeout zero restores default",
			option: OptAckTimeout,
			value:  "0",
			check: func(t *testing.T, o *Options) {
				assert.Equal(t, DefaultAckTimeout, o.AckTimeout())
			},
		},
		{
			name:    "bad boolean rejected",
			option:  OptColor,
			value:   "maybe",
			wantErr: true,
		},
		{
			name:    "negative timeout rejected",
			option:  OptAckTimeout,
			value:   "-3",
			wantErr: true,
		},
		{
			name:    "unknown option rejected",
			option:  "verbosity",
			value:   "11",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			err := o.SetByName(tt.option, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestOptionsGetByName(t *testing.T) {
	o := NewOptions()

	v, ok := o.GetByName(OptColor)
	require.True(t, ok)
	assert.Equal(t, "on", v)

	require.NoError(t, o.SetByName(OptAckTimeout, "7"))
	v, ok = o.GetByName(OptAckTimeout)
	require.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = o.GetByName("nope")
	assert.False(t, ok)
}

func TestOptionsRoundTripAllNames(t *testing.T) {
	o := NewOptions()
	for _, name := range ConsoleOptionNames() {
		v, ok := o.GetByName(name)
		require.True(t, ok, "option %s not readable", name)
		require.NoError(t, o.SetByName(name, v), "option %s does not accept its own value", name)
	}
}
