package firmware_test

import (
	"testing"

	"github.com/edujime23/warden/dram"
	"github.com/edujime23/warden/firmware"
	"github.com/edujime23/warden/werr"
	"github.com/stretchr/testify/require"
)

const testPageSize = 4096

func newTestAllocator(t *testing.T, maxFrames uint64) *firmware.PageAllocator {
	t.Helper()
	ram := dram.New(maxFrames * testPageSize)
	return firmware.NewPageAllocator(ram, 0, testPageSize, maxFrames)
}

func TestAllocPagesBumpsThenFails(t *testing.T) {
	a := newTestAllocator(t, 4)

	base, err := a.AllocPages(3)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)

	_, err = a.AllocPages(2)
	require.ErrorIs(t, err, werr.IsOutOfFrames)
}

func TestFreePagesCoalescesAdjacentRuns(t *testing.T) {
	a := newTestAllocator(t, 8)

	base, err := a.AllocPages(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)

	a.FreePages(0, 4)
	a.FreePages(4, 4)

	got, err := a.AllocPages(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got, "coalesced free-list should satisfy the full-size request")
}

func TestAllocationsNeverOverlapUntilReset(t *testing.T) {
	a := newTestAllocator(t, 16)
	seen := make(map[uint64]bool)

	for i := 0; i < 4; i++ {
		base, err := a.AllocPages(2)
		require.NoError(t, err)
		for f := base; f < base+2; f++ {
			require.False(t, seen[f], "frame %d handed out twice before reset", f)
			seen[f] = true
		}
	}

	a.Reset()
	base, err := a.AllocPages(16)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)
}

func TestFreePagesReusesExactFit(t *testing.T) {
	a := newTestAllocator(t, 4)

	_, err := a.AllocPages(4)
	require.NoError(t, err)
	a.FreePages(1, 2)

	base, err := a.AllocPages(2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), base)
}

func TestAllocPagesZeroIsBadConfig(t *testing.T) {
	a := newTestAllocator(t, 4)
	_, err := a.AllocPages(0)
	require.ErrorIs(t, err, werr.IsBadConfig)
}

func TestAllocPagesZeroFillsReturnedFrames(t *testing.T) {
	ram := dram.New(4 * testPageSize)
	require.NoError(t, ram.WriteBytes(testPageSize, []byte{0xFF, 0xFF, 0xFF, 0xFF}))

	a := firmware.NewPageAllocator(ram, 0, testPageSize, 4)
	_, err := a.AllocPages(4)
	require.NoError(t, err)

	got, err := ram.ReadBytes(testPageSize, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, got, "AllocPages must zero-fill the handed-out range")
}
