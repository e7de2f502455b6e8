package dram_test

import (
	"testing"

	"github.com/edujime23/warden/dram"
	"github.com/edujime23/warden/werr"
	"github.com/stretchr/testify/require"
)

func TestReadWriteSingleUnit(t *testing.T) {
	d := dram.New(4096)
	require.NoError(t, d.WriteBytes(0, []byte{1, 2, 3, 4}))

	res, err := d.ReadBytes(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, res)

	res, err = d.ReadBytes(1, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3}, res)
}

func TestReadWriteAcrossUnits(t *testing.T) {
	d := dram.New(8192)
	require.NoError(t, d.WriteBytes(4094, []byte{1, 2, 3, 4}))

	res, err := d.ReadBytes(4094, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, res)
}

func TestUnwrittenReadsAsFill(t *testing.T) {
	d := dram.New(4096, dram.WithFill(0xAA))
	res, err := d.ReadBytes(10, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xAA, 0xAA}, res)
}

func TestOutOfBoundsFails(t *testing.T) {
	d := dram.New(4096)

	_, err := d.ReadBytes(4097, 1)
	require.Error(t, err)
	kind, ok := werr.Of(err)
	require.True(t, ok)
	require.Equal(t, werr.AccessViolation, kind)
	require.Equal(t, uint64(1), d.FaultCount())

	err = d.WriteBytes(4096, []byte{1})
	require.Error(t, err)
	require.Equal(t, uint64(2), d.FaultCount())
}

func TestCopyOverlapAscending(t *testing.T) {
	d := dram.New(4096)
	require.NoError(t, d.WriteBytes(0, []byte{1, 2, 3, 4, 5}))

	// dest < src: shift left, ascending copy.
	require.NoError(t, d.Copy(0, 2, 3))
	res, err := d.ReadBytes(0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 5, 4, 5}, res)
}

func TestCopyOverlapDescending(t *testing.T) {
	d := dram.New(4096)
	require.NoError(t, d.WriteBytes(0, []byte{1, 2, 3, 4, 5}))

	// dest > src: shift right, descending copy.
	require.NoError(t, d.Copy(2, 0, 3))
	res, err := d.ReadBytes(0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 1, 2, 3}, res)
}

func TestFill(t *testing.T) {
	d := dram.New(16)
	require.NoError(t, d.Fill(4, 4, 0x7F))
	res, err := d.ReadBytes(0, 16)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 0x7F, 0x7F, 0x7F, 0x7F, 0, 0, 0, 0, 0, 0, 0, 0}, res)
}

func TestLoadImage(t *testing.T) {
	d := dram.New(16)
	require.NoError(t, d.LoadImage(0, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	res, err := d.ReadBytes(0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, res)
}
