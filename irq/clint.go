package irq

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

// CLINTConfig configures a new CLINT.
type CLINTConfig struct {
	Harts int
	Tick  uint64 // mtime units per Advance step; 0 defaults to 1.
	Base  uint64 // MMIO base address, for Region().
}

// CLINT is the per-hart software/timer interrupt controller: MSIP bits are
// level-triggered by the hart's own msip word, MTIP is the level
// (mtimecmp <= mtime), both sampled by the CPU front-end through
// IRQLevels.
type CLINT struct {
	cfg CLINTConfig

	msip     []bool
	mtimecmp []uint64
	mtime    uint64
}

// NewCLINT constructs a CLINT, validating cfg's bounds.
func NewCLINT(cfg CLINTConfig) (*CLINT, error) {
	if cfg.Harts < 1 {
		return nil, werr.New(werr.BadConfig, "clint.new", uint64(cfg.Harts))
	}
	if cfg.Tick == 0 {
		cfg.Tick = 1
	}
	return &CLINT{
		cfg:      cfg,
		msip:     make([]bool, cfg.Harts),
		mtimecmp: make([]uint64, cfg.Harts), // 0 means disabled, per IRQLevels.
	}, nil
}

// SetMSIP sets hart's software-interrupt line.
func (c *CLINT) SetMSIP(hart int, level bool) { c.msip[hart] = level }

// MSIP returns hart's current software-interrupt line.
func (c *CLINT) MSIP(hart int) bool { return c.msip[hart] }

// SetMTimeCmp sets hart's timer compare register.
func (c *CLINT) SetMTimeCmp(hart int, cmp uint64) { c.mtimecmp[hart] = cmp }

// MTimeCmp returns hart's timer compare register.
func (c *CLINT) MTimeCmp(hart int) uint64 { return c.mtimecmp[hart] }

// MTime returns the global time counter.
func (c *CLINT) MTime() uint64 { return c.mtime }

// Advance moves mtime forward by n steps of cfg.Tick units. mtip rises the
// tick mtime first reaches or exceeds mtimecmp; it is a level, not an edge
// — it stays high until software raises mtimecmp above mtime again.
func (c *CLINT) Advance(n uint64) { c.mtime += n * c.cfg.Tick }

// IRQLevels reports hart's current msip/mtip levels, satisfying
// cpu.CLINTSource. mtip is disabled while mtimecmp is zero.
func (c *CLINT) IRQLevels(hart int) (msip, mtip bool) {
	cmp := c.mtimecmp[hart]
	return c.msip[hart], cmp != 0 && c.mtime >= cmp
}

// CLINT MMIO register map:
//
//	0x0000 + 4*hart   msip     (bit 0 significant, rest reserved)
//	0x4000 + 8*hart   mtimecmp (64-bit)
//	0xBFF8            mtime    (64-bit, shared)
const (
	clintMSIPBase     = 0x0000
	clintMTimeCmpBase = 0x4000
	clintMTimeOffset  = 0xBFF8
	clintRegionSize   = 0xC000
)

// RegionSize is the fixed size of the CLINT's MMIO window.
func (c *CLINT) RegionSize() uint64 { return clintRegionSize }

// Region implements bus.Device.
func (c *CLINT) Region() (base, size uint64) { return c.cfg.Base, clintRegionSize }

// Caps implements bus.Device: CLINT registers are natively 4 or 8 bytes,
// naturally aligned.
func (c *CLINT) Caps() bus.Caps {
	return bus.Caps{Align: 4, Widths: []uint64{4, 8}}
}

// Read implements the CLINT's MMIO read path for attachment to a bus.
func (c *CLINT) Read(offset uint64, width uint64) ([]byte, error) {
	switch {
	case offset >= clintMSIPBase && offset < clintMSIPBase+4*uint64(c.cfg.Harts):
		hart := int((offset - clintMSIPBase) / 4)
		var v uint32
		if c.msip[hart] {
			v = 1
		}
		return le32(v), nil
	case offset >= clintMTimeCmpBase && offset < clintMTimeCmpBase+8*uint64(c.cfg.Harts):
		hart := int((offset - clintMTimeCmpBase) / 8)
		return le64(c.mtimecmp[hart]), nil
	case offset == clintMTimeOffset:
		return le64(c.mtime), nil
	default:
		return nil, werr.New(werr.MMIOConstraint, "clint.read", offset)
	}
}

// Write implements the CLINT's MMIO write path for attachment to a bus.
func (c *CLINT) Write(offset uint64, data []byte) error {
	switch {
	case offset >= clintMSIPBase && offset < clintMSIPBase+4*uint64(c.cfg.Harts):
		hart := int((offset - clintMSIPBase) / 4)
		c.msip[hart] = data[0]&1 != 0
		return nil
	case offset >= clintMTimeCmpBase && offset < clintMTimeCmpBase+8*uint64(c.cfg.Harts):
		hart := int((offset - clintMTimeCmpBase) / 8)
		c.mtimecmp[hart] = decodeLE64(data)
		return nil
	case offset == clintMTimeOffset:
		c.mtime = decodeLE64(data)
		return nil
	default:
		return werr.New(werr.MMIOConstraint, "clint.write", offset)
	}
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (uint(i) * 8))
	}
	return out
}

func decodeLE64(data []byte) uint64 {
	var v uint64
	for i := 0; i < len(data) && i < 8; i++ {
		v |= uint64(data[i]) << (uint(i) * 8)
	}
	return v
}
