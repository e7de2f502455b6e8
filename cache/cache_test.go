package cache_test

import (
	"github.com/edujime23/warden/cache"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func smallConfig() cache.Config {
	lvl := cache.LevelConfig{Size: 64, LineSize: 16, Associativity: 2}
	return cache.Config{
		L1D: lvl,
		L1I: lvl,
		L2:  cache.LevelConfig{Size: 128, LineSize: 16, Associativity: 2},
		L3:  cache.LevelConfig{Size: 256, LineSize: 16, Associativity: 2},
	}
}

var _ = Describe("Controller", func() {
	var (
		bus *fakeBus
		c   *cache.Controller
	)

	BeforeEach(func() {
		bus = newFakeBus(0x10000)
		var err error
		c, err = cache.New(bus, smallConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("fills L3, L2, and L1D on a cold read and preserves inclusion", func() {
		data, err := c.Read(0x100, cache.L1D)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveLen(16))

		Expect(c.Stats(cache.L1D).Misses).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L2).Misses).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L3).Misses).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L3).Fills).To(Equal(uint64(1)))

		// a second read of the same block is now an L1D hit.
		_, err = c.Read(0x100, cache.L1D)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Stats(cache.L1D).Hits).To(Equal(uint64(1)))
	})

	It("writes back to memory only after flushing every level", func() {
		Expect(c.WriteBytes(0x80000000&0xFFFF, []byte{0xEF, 0xBE, 0xAD, 0xDE}, cache.L1D)).To(Succeed())

		addr := uint64(0x80000000 & 0xFFFF)
		before, err := bus.ReadBytes(addr, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(before).NotTo(Equal([]byte{0xEF, 0xBE, 0xAD, 0xDE}))

		Expect(c.FlushAll(cache.L1D)).To(Succeed())
		Expect(c.FlushAll(cache.L2)).To(Succeed())
		Expect(c.FlushAll(cache.L3)).To(Succeed())

		after, err := bus.ReadBytes(addr, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal([]byte{0xEF, 0xBE, 0xAD, 0xDE}))
	})

	It("evicts and writes back a dirty L1D line when a set overflows", func() {
		// L1D has 2 sets of 2 ways, line size 16 -> capacity 64 bytes.
		// Addresses that collide on the same set but differ in tag force
		// an eviction on the third distinct block mapped to that set.
		numSets := uint64(2)
		lineSize := uint64(16)

		addrForSet := func(tag uint64) uint64 {
			return (tag*numSets + 0) * lineSize // always set 0
		}

		Expect(c.WriteBytes(addrForSet(0), []byte{1, 1, 1, 1}, cache.L1D)).To(Succeed())
		Expect(c.WriteBytes(addrForSet(1), []byte{2, 2, 2, 2}, cache.L1D)).To(Succeed())
		// third distinct tag on the same set evicts one of the first two.
		Expect(c.WriteBytes(addrForSet(2), []byte{3, 3, 3, 3}, cache.L1D)).To(Succeed())

		Expect(c.Stats(cache.L1D).Evictions).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L1D).Writebacks).To(Equal(uint64(1)))
	})

	It("prefetch is a no-op when the line is already resident", func() {
		_, err := c.Read(0x200, cache.L1D)
		Expect(err).NotTo(HaveOccurred())
		fillsBefore := c.Stats(cache.L2).Fills

		Expect(c.PrefetchLine(cache.L2, 0x200)).To(Succeed())
		Expect(c.Stats(cache.L2).Fills).To(Equal(fillsBefore))
	})

	It("prefetch into L1D still installs the L2 parent to preserve inclusion", func() {
		Expect(c.PrefetchLine(cache.L1D, 0x300)).To(Succeed())
		Expect(c.Stats(cache.L1D).Fills).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L2).Fills).To(Equal(uint64(1)))
		Expect(c.Stats(cache.L3).Fills).To(Equal(uint64(1)))
	})

	It("surfaces a wrapped bus failure from an L3 miss fetch", func() {
		_, err := c.Read(0x20000, cache.L1D) // beyond fakeBus size
		Expect(err).To(HaveOccurred())
	})
})
