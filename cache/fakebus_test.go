package cache_test

import "github.com/edujime23/warden/werr"

// fakeBus is a minimal in-memory stand-in for the bus, used so cache tests
// don't need a real DRAM+bus wiring.
type fakeBus struct {
	mem       map[uint64]byte
	size      uint64
	writeLog  [][]byte
	writeAddr []uint64
	failAt    map[uint64]bool
}

func newFakeBus(size uint64) *fakeBus {
	return &fakeBus{mem: make(map[uint64]byte), size: size, failAt: make(map[uint64]bool)}
}

func (b *fakeBus) ReadBytes(pa, n uint64) ([]byte, error) {
	if pa+n > b.size {
		return nil, werr.New(werr.Unmapped, "fakebus.read", pa)
	}
	out := make([]byte, n)
	for i := uint64(0); i < n; i++ {
		out[i] = b.mem[pa+i]
	}
	return out, nil
}

func (b *fakeBus) WriteBytes(pa uint64, data []byte) error {
	if b.failAt[pa] {
		return werr.New(werr.Unmapped, "fakebus.write", pa)
	}
	if pa+uint64(len(data)) > b.size {
		return werr.New(werr.Unmapped, "fakebus.write", pa)
	}
	for i, v := range data {
		b.mem[pa+uint64(i)] = v
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.writeLog = append(b.writeLog, cp)
	b.writeAddr = append(b.writeAddr, pa)
	return nil
}
