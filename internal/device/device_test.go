package device

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/errors"
)

func testDevices() []Info {
	return []Info{
		{Index: 0, Name: "Speakers (Realtek High Definition Audio)", ID: "{0.0.0.00000000}.{aaaa}"},
		{Index: 1, Name: "Headphones (WH-1000XM4 Stereo)", ID: "{0.0.0.00000000}.{bbbb}", IsDefault: true},
		{Index: 2, Name: "Headphones", ID: "hw:2,0"},
	}
}

func TestSelectDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		wantIndex int
	}{
		{"empty selects default", "", 1},
		{"default alias", "default", 1},
		{"sysdefault alias", "SysDefault", 1},
		{"exact name beats substring", "Headphones", 2},
		{"exact id", "hw:2,0", 2},
		{"case insensitive substring", "wh-1000xm4", 1},
		{"substring", "Realtek", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectDevice(testDevices(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, got.Index)
		})
	}
}

func TestSelectDeviceDefaultFallsBackToFirst(t *testing.T) {
	t.Parallel()

	devices := testDevices()
	for i := range devices {
		devices[i].IsDefault = false
	}
	got, err := SelectDevice(devices, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Index)
}

func TestSelectDeviceNotFound(t *testing.T) {
	t.Parallel()

	_, err := SelectDevice(testDevices(), "USB Audio CODEC")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = SelectDevice(nil, "default")
	require.Error(t, err)
}

func TestBackendsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		backend  string
		goos     string
		want     []malgo.Backend
		loopback bool
		wantErr  bool
	}{
		{"auto windows", "auto", "windows", []malgo.Backend{malgo.BackendWasapi}, true, false},
		{"auto darwin", "auto", "darwin", []malgo.Backend{malgo.BackendCoreaudio}, false, false},
		{"auto linux", "", "linux", []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}, false, false},
		{"explicit alsa", "ALSA", "linux", []malgo.Backend{malgo.BackendAlsa}, false, false},
		{"explicit wasapi", "wasapi", "windows", []malgo.Backend{malgo.BackendWasapi}, true, false},
		{"null", "null", "plan9", []malgo.Backend{malgo.BackendNull}, false, false},
		{"auto unsupported os", "auto", "plan9", nil, false, true},
		{"unknown backend", "oss", "linux", nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := backendsFor(tt.backend, tt.goos)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.loopback, supportsLoopback(got))
		})
	}
}

func TestBytesToFloat32(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 12)
	for i, v := range []float32{0.5, -1, 0.25} {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	got := bytesToFloat32(raw)
	require.Len(t, got, 3)
	assert.Equal(t, []float32{0.5, -1, 0.25}, got)

	// views share memory with the device buffer
	got[0] = 1
	assert.Equal(t, math.Float32bits(1), binary.LittleEndian.Uint32(raw[0:4]))

	assert.Nil(t, bytesToFloat32(nil))
	assert.Nil(t, bytesToFloat32([]byte{1, 2}))
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "capture", KindCapture.String())
	assert.Equal(t, "playback", KindPlayback.String())
	assert.Equal(t, malgo.Playback, KindPlayback.malgoType())
}
