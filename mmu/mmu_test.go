package mmu_test

import (
	"testing"

	"github.com/edujime23/warden/mmu"
	"github.com/edujime23/warden/werr"
	"github.com/stretchr/testify/require"
)

func TestHighAddressTranslation(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	vpn := uint64(0x543210)
	frame := uint64(0x200010)
	require.NoError(t, m.MapPage(vpn, frame, mmu.Perm{Writable: true}))

	pa, _, err := m.Translate(vpn << 12)
	require.NoError(t, err)
	require.Equal(t, frame<<12, pa)
}

func TestTranslateMissingPageFaults(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	_, _, err = m.Translate(0x1000)
	require.Error(t, err)
	kind, _ := werr.Of(err)
	require.Equal(t, werr.PageFault, kind)
}

func TestDeviceMemTypeDefaultsUncached(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, m.MapPage(1, 1, mmu.Perm{MemType: mmu.Device}))
	_, pte, err := m.Translate(1 << 12)
	require.NoError(t, err)
	require.False(t, pte.Cached)
}

func TestExplicitCachedOverride(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	cached := true
	require.NoError(t, m.MapPage(1, 1, mmu.Perm{MemType: mmu.WC, Cached: &cached}))
	_, pte, err := m.Translate(1 << 12)
	require.NoError(t, err)
	require.True(t, pte.Cached)
}

func TestSetPageAttributesInvalidatesTLBEntry(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, m.MapPage(5, 5, mmu.Perm{Writable: true}))
	_, _, err = m.Translate(5 << 12) // primes the TLB
	require.NoError(t, err)
	missesBefore := m.TLBMisses()

	require.NoError(t, m.SetPageAttributes(5, mmu.Perm{Writable: false}))
	_, pte, err := m.Translate(5 << 12)
	require.NoError(t, err)
	require.False(t, pte.Writable)
	require.Greater(t, m.TLBMisses(), missesBefore)
}

func TestFlushTLBByASIDOnlyAffectsThatASID(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	m.SetASID(1)
	require.NoError(t, m.MapPage(2, 2, mmu.Perm{Writable: true}))
	_, _, err = m.Translate(2 << 12)
	require.NoError(t, err)

	m.SetASID(2)
	require.NoError(t, m.MapPage(2, 3, mmu.Perm{Writable: true}))
	_, _, err = m.Translate(2 << 12)
	require.NoError(t, err)

	m.SetASID(1)
	before := m.TLBMisses()
	m.FlushTLB(mmu.ASID(1))
	_, _, err = m.Translate(2 << 12)
	require.NoError(t, err)
	require.Greater(t, m.TLBMisses(), before)

	m.SetASID(2)
	before = m.TLBMisses()
	_, pte, err := m.Translate(2 << 12)
	require.NoError(t, err)
	require.Equal(t, uint64(3), pte.Frame)
	require.Equal(t, before, m.TLBMisses()) // ASID 2 was not flushed, still a hit.
}

func TestCheckAccessPermissionDenied(t *testing.T) {
	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, m.MapPage(9, 9, mmu.Perm{Writable: false, Executable: false}))
	_, _, err = m.CheckAccess(9<<12, mmu.Write)
	require.Error(t, err)
	kind, _ := werr.Of(err)
	require.Equal(t, werr.PermissionDenied, kind)
}

func TestBadConfigNonPowerOfTwoPageSize(t *testing.T) {
	_, err := mmu.New(mmu.Config{PageSize: 3000})
	require.Error(t, err)
	kind, _ := werr.Of(err)
	require.Equal(t, werr.BadConfig, kind)
}

func TestTLBEvictsMinimumTickWhenFull(t *testing.T) {
	m, err := mmu.New(mmu.Config{PageSize: 4096, TLBEntries: 2, MaxFrames: 100})
	require.NoError(t, err)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, m.MapPage(i, i, mmu.Perm{Writable: true}))
	}

	_, _, err = m.Translate(0 << 12)
	require.NoError(t, err)
	_, _, err = m.Translate(1 << 12)
	require.NoError(t, err)
	// vpn 0 was touched more recently than nothing; now fill a 3rd unique
	// entry, which must evict whichever of {0,1} has the smaller tick (1,
	// since 0 was touched first then 1 touched second... actually order:
	// 0 installed tick=1, 1 installed tick=2, 0 looked up again tick=3).
	_, _, err = m.Translate(0 << 12)
	require.NoError(t, err)

	before := m.TLBMisses()
	_, _, err = m.Translate(2 << 12)
	require.NoError(t, err)
	require.Greater(t, m.TLBMisses(), before) // vpn 2 is a fresh miss

	// vpn 1 had the smallest tick and should now be evicted; vpn 0 survives.
	before = m.TLBMisses()
	_, _, err = m.Translate(0 << 12)
	require.NoError(t, err)
	require.Equal(t, before, m.TLBMisses())
}
