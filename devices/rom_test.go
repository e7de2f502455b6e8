package devices_test

import (
	"testing"

	"github.com/edujime23/warden/devices"
	"github.com/edujime23/warden/werr"
	"github.com/stretchr/testify/require"
)

func TestROMReadsImage(t *testing.T) {
	rom := devices.NewROM(devices.ROMConfig{Base: 0x100, Image: []byte{1, 2, 3, 4}})
	got, err := rom.Read(0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestROMStrictWriteFails(t *testing.T) {
	rom := devices.NewROM(devices.ROMConfig{Base: 0x100, Image: make([]byte, 4), Strict: true})
	err := rom.Write(0, []byte{0xFF})
	require.Error(t, err)
	kind, _ := werr.Of(err)
	require.Equal(t, werr.ReadOnly, kind)
}

func TestROMNonStrictWriteSilentlyDrops(t *testing.T) {
	rom := devices.NewROM(devices.ROMConfig{Base: 0x100, Image: []byte{9}, Strict: false})
	require.NoError(t, rom.Write(0, []byte{0xFF}))
	got, _ := rom.Read(0, 1)
	require.Equal(t, []byte{9}, got, "non-strict write must not mutate the image")
}

func TestROMOutOfBoundsReadFails(t *testing.T) {
	rom := devices.NewROM(devices.ROMConfig{Base: 0x100, Image: make([]byte, 4)})
	_, err := rom.Read(2, 4)
	require.Error(t, err)
}
