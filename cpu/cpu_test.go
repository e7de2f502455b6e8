package cpu_test

import (
	"testing"

	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/cache"
	"github.com/edujime23/warden/cpu"
	"github.com/edujime23/warden/dram"
	"github.com/edujime23/warden/mmu"
	"github.com/stretchr/testify/require"
)

func newTestCPU(t *testing.T) (*cpu.CPU, *bus.Bus, *dram.DRAM, *cache.Controller) {
	d := dram.New(1 << 20)
	b := bus.New()
	require.NoError(t, b.MapRAM("ram", 0, 1<<20, d, 0))

	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	cc, err := cache.New(b, cache.DefaultConfig())
	require.NoError(t, err)

	c := cpu.New(cpu.Config{
		Target: cpu.DefaultTarget(),
		Bus:    b,
		MMU:    m,
		Cache:  cc,
	})
	return c, b, d, cc
}

func mapIdentity(t *testing.T, c *cpu.CPU, va uint64, perm mmu.Perm) {
	t.Helper()
	require.NoError(t, c.MapPage(va>>12, va>>12, perm))
}

func TestInverseStoreLoad(t *testing.T) {
	c, _, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x1000, mmu.Perm{Writable: true, MemType: mmu.Normal})

	for _, size := range []uint64{1, 2, 4, 8} {
		require.NoError(t, c.Store(0x1000, size, 0xABCDEF0123456789, false))
		v, err := c.Load(0x1000, size, false)
		require.NoError(t, err)
		require.Equal(t, cpu.Truncate(0xABCDEF0123456789, int(size), false), v)
	}
}

func TestSignedLoadSignExtends(t *testing.T) {
	c, _, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x2000, mmu.Perm{Writable: true, MemType: mmu.Normal})

	require.NoError(t, c.Store(0x2000, 1, 0xFF, false))
	v, err := c.Load(0x2000, 1, true)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), v)
}

func TestDeviceMemtypeBypassesCache(t *testing.T) {
	c, _, _, cc := newTestCPU(t)
	mapIdentity(t, c, 0x3000, mmu.Perm{Writable: true, MemType: mmu.Device})

	_, err := c.Load(0x3000, 4, false)
	require.NoError(t, err)
	_, err = c.Load(0x3000, 4, false)
	require.NoError(t, err)

	stats := cc.Stats(cache.L1D)
	require.Equal(t, uint64(0), stats.Hits)
	require.Equal(t, uint64(0), stats.Misses)
}

func TestDeviceAndWCStoresDoNotMarkDirty(t *testing.T) {
	d := dram.New(1 << 20)
	b := bus.New()
	require.NoError(t, b.MapRAM("ram", 0, 1<<20, d, 0))

	m, err := mmu.New(mmu.DefaultConfig())
	require.NoError(t, err)

	cc, err := cache.New(b, cache.DefaultConfig())
	require.NoError(t, err)

	c := cpu.New(cpu.Config{Target: cpu.DefaultTarget(), Bus: b, MMU: m, Cache: cc})

	require.NoError(t, m.MapPage(0x3000>>12, 0x3000>>12, mmu.Perm{Writable: true, MemType: mmu.Device}))
	require.NoError(t, m.MapPage(0x4000>>12, 0x4000>>12, mmu.Perm{Writable: true, MemType: mmu.WC}))

	require.NoError(t, c.Store(0x3000, 4, 1, false))
	require.NoError(t, c.Store(0x4000, 4, 1, false))
	require.NoError(t, c.MemoryBarrier())

	_, pte, err := m.Translate(0x3000)
	require.NoError(t, err)
	require.False(t, pte.Dirty, "device stores must not set the dirty bit")

	_, pte, err = m.Translate(0x4000)
	require.NoError(t, err)
	require.False(t, pte.Dirty, "write-combining stores must not set the dirty bit")
}

func TestWriteCombiningCoalescesThenFlushesOnBreak(t *testing.T) {
	c, b, d, _ := newTestCPU(t)
	mapIdentity(t, c, 0x4000, mmu.Perm{Writable: true, MemType: mmu.WC})

	base := uint64(0x4000)
	for i := uint64(0); i < 4; i++ {
		require.NoError(t, c.Store(base+i, 1, uint64(0x10+i), false))
	}
	_, length, ok := c.WCPending()
	require.True(t, ok)
	require.Equal(t, 4, length)

	writesBefore := b.Stats().Writes
	require.NoError(t, c.Store(base+100, 1, 0x99, false))
	writesAfter := b.Stats().Writes
	require.Equal(t, writesBefore+1, writesAfter, "breaking the run must flush exactly once")

	pbase, plen, ok := c.WCPending()
	require.True(t, ok)
	require.Equal(t, base+100, pbase)
	require.Equal(t, 1, plen)

	got, err := d.ReadBytes(base, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x10, 0x11, 0x12, 0x13}, got)
}

func TestMemoryBarrierFlushesPendingWC(t *testing.T) {
	c, b, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x5000, mmu.Perm{Writable: true, MemType: mmu.WC})

	require.NoError(t, c.Store(0x5000, 1, 0x7, false))
	writesBefore := b.Stats().Writes
	require.NoError(t, c.MemoryBarrier())
	require.Equal(t, writesBefore+1, b.Stats().Writes)

	_, _, ok := c.WCPending()
	require.False(t, ok)
}

func TestDeviceStoreImplicitlyBarriers(t *testing.T) {
	c, b, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x6000, mmu.Perm{Writable: true, MemType: mmu.WC})
	mapIdentity(t, c, 0x7000, mmu.Perm{Writable: true, MemType: mmu.Device})

	require.NoError(t, c.Store(0x6000, 1, 0x1, false))
	writesBefore := b.Stats().Writes
	require.NoError(t, c.Store(0x7000, 4, 0x2, false))
	require.Equal(t, writesBefore+2, b.Stats().Writes, "wc flush then the device write itself")

	_, _, ok := c.WCPending()
	require.False(t, ok)
}

func TestFetchRequiresExecutable(t *testing.T) {
	c, _, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x8000, mmu.Perm{Writable: true, Executable: false, MemType: mmu.Normal})

	_, err := c.Fetch(0x8000, 4)
	require.Error(t, err)
}

func TestCachedNormalStoreThenLoadReturnsValue(t *testing.T) {
	c, _, _, _ := newTestCPU(t)
	mapIdentity(t, c, 0x9000, mmu.Perm{Writable: true, MemType: mmu.Normal})

	require.NoError(t, c.Store(0x9000, 4, 0xDEAD, false))
	v, err := c.Load(0x9000, 4, false)
	require.NoError(t, err)
	require.Equal(t, uint64(0xDEAD), v)
}
