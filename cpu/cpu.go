package cpu

import (
	"github.com/edujime23/warden/cache"
	"github.com/edujime23/warden/irq"
	"github.com/edujime23/warden/mmu"
	"github.com/edujime23/warden/werr"
)

// Memory is the bus-shaped backend the CPU bypasses to for device/
// uncached accesses and PLIC register polling. *bus.Bus satisfies it.
type Memory interface {
	ReadBytes(pa, n uint64) ([]byte, error)
	WriteBytes(pa uint64, data []byte) error
}

// PrefetchTo names the cache level prefetch-on-hit installs into.
type PrefetchTo int

const (
	PrefetchToL1D PrefetchTo = iota
	PrefetchToL2
	PrefetchToL3
)

// PrefetchPolicy controls the prefetch-on-hit behavior of cached normal
// accesses.
type PrefetchPolicy struct {
	Enable bool
	To     PrefetchTo
}

// PLICAttachment names how a CPU is wired to a PLIC context.
type PLICAttachment struct {
	Base   uint64
	Layout irq.Layout
	CtxID  int
}

// CLINTAttachment names how a CPU is wired to a CLINT hart.
type CLINTAttachment struct {
	Hart int
}

// CPU is the typed load/store/fetch front-end: it translates virtual
// addresses through an MMU, routes accesses through a shared cache
// controller or bypasses to the bus per page memory type, coalesces
// wc-memtype stores, and hosts a CSR block with PLIC/CLINT interrupt
// aggregation.
type CPU struct {
	Target Target

	bus   Memory
	mmu   *mmu.MMU
	cache *cache.Controller

	prefetch PrefetchPolicy
	wc       *wcBuffer

	CSR CSR

	plic     PLICSource
	plicAttn *PLICAttachment
	clint    CLINTSource
	clintAttn *CLINTAttachment
}

// Config constructs a CPU over the given bus, MMU, and shared cache
// controller (used as both icache and dcache).
type Config struct {
	Target   Target
	Bus      Memory
	MMU      *mmu.MMU
	Cache    *cache.Controller
	Prefetch PrefetchPolicy
}

// New constructs a CPU. The write-combining buffer's line size is taken
// from L1D at creation time.
func New(cfg Config) *CPU {
	c := &CPU{
		Target:   cfg.Target,
		bus:      cfg.Bus,
		mmu:      cfg.MMU,
		cache:    cfg.Cache,
		prefetch: cfg.Prefetch,
	}
	lineSize := cfg.Cache.LineSize(cache.L1D)
	c.wc = newWCBuffer(lineSize, c.bus.WriteBytes)
	return c
}

// Fetch translates va, requires executable, and reads size bytes through
// the instruction cache when the page is normal+cached, otherwise
// bypassing to the bus.
func (c *CPU) Fetch(va uint64, size uint64) ([]byte, error) {
	pa, pte, err := c.mmu.CheckAccess(va, mmu.Execute)
	if err != nil {
		return nil, err
	}
	return c.readThrough(pa, size, pte, cache.L1I)
}

// Load translates va (data side), reads size bytes the same way Fetch
// does, and unpacks them per Target's endianness/signedness.
func (c *CPU) Load(va uint64, size uint64, signed bool) (uint64, error) {
	pa, pte, err := c.mmu.Translate(va)
	if err != nil {
		return 0, err
	}
	bytes, err := c.readThrough(pa, size, pte, cache.L1D)
	if err != nil {
		return 0, err
	}
	return c.Target.Unpack(bytes, signed), nil
}

func (c *CPU) readThrough(pa, size uint64, pte mmu.PTE, which cache.LevelID) ([]byte, error) {
	if pte.MemType == mmu.Normal && pte.Cached {
		line, err := c.cache.Read(pa, which)
		if err != nil {
			return nil, err
		}
		c.prefetchOnHit(pa, which)
		offset := pa % c.cache.LineSize(which)
		return line[offset : offset+size], nil
	}
	return c.bus.ReadBytes(pa, size)
}

func (c *CPU) prefetchOnHit(pa uint64, which cache.LevelID) {
	if !c.prefetch.Enable {
		return
	}
	lineSize := c.cache.LineSize(which)
	block := pa - pa%lineSize
	nextPA := block + lineSize

	pageSize := c.mmu.PageSize()
	if (pa/pageSize) != (nextPA/pageSize) {
		return // page-boundary crossing suppresses prefetch.
	}

	_ = c.cache.PrefetchLine(c.prefetchLevel(), nextPA)
}

func (c *CPU) prefetchLevel() cache.LevelID {
	switch c.prefetch.To {
	case PrefetchToL2:
		return cache.L2
	case PrefetchToL3:
		return cache.L3
	default:
		return cache.L1D
	}
}

// Store translates va, requires writable, packs value per Target's
// endianness, and routes the write by the page's memtype.
func (c *CPU) Store(va uint64, size uint64, value uint64, signed bool) error {
	pa, pte, err := c.mmu.CheckAccess(va, mmu.Write)
	if err != nil {
		return err
	}
	data := c.Target.Pack(value, int(size))

	switch pte.MemType {
	case mmu.Device:
		if err := c.MemoryBarrier(); err != nil {
			return err
		}
		if err := c.bus.WriteBytes(pa, data); err != nil {
			return err
		}
	case mmu.WC:
		if err := c.wc.Store(pa, data); err != nil {
			return err
		}
	default: // Normal
		if pte.Cached {
			if err := c.cache.WriteBytes(pa, data, cache.L1D); err != nil {
				return err
			}
		} else {
			if err := c.bus.WriteBytes(pa, data); err != nil {
				return err
			}
		}
		c.mmu.MarkDirty(va)
	}

	return nil
}

// MemoryBarrier flushes the write-combining buffer to the bus, the only
// ordering primitive the CPU offers guest code.
func (c *CPU) MemoryBarrier() error { return c.wc.Flush() }

// WCPending reports the write-combining buffer's current base and length,
// for introspection and tests.
func (c *CPU) WCPending() (base uint64, length int, ok bool) { return c.wc.Pending() }

// FlushIcache, FlushDcache, FlushL2, FlushL3 each evict and writeback every
// valid line at the named level.
func (c *CPU) FlushIcache() error { return c.cache.FlushAll(cache.L1I) }
func (c *CPU) FlushDcache() error { return c.cache.FlushAll(cache.L1D) }
func (c *CPU) FlushL2() error     { return c.cache.FlushAll(cache.L2) }
func (c *CPU) FlushL3() error     { return c.cache.FlushAll(cache.L3) }

// FlushTLB flushes the MMU's whole TLB, or only the given ASID's entries.
func (c *CPU) FlushTLB(asid ...mmu.ASID) { c.mmu.FlushTLB(asid...) }

// PrefetchData and PrefetchInst forward to the cache controller's
// prefetch_line at the configured policy target, for data-side and
// instruction-side block addresses respectively.
func (c *CPU) PrefetchData(pa uint64) error { return c.cache.PrefetchLine(c.prefetchLevel(), pa) }
func (c *CPU) PrefetchInst(pa uint64) error { return c.cache.PrefetchLine(c.prefetchLevel(), pa) }

// SetASID forwards to the MMU, creating the ASID's table on first use.
func (c *CPU) SetASID(asid mmu.ASID) { c.mmu.SetASID(asid) }

// MapPage, UnmapPage, SetPageAttributes forward to the MMU.
func (c *CPU) MapPage(vpn, frame uint64, perm mmu.Perm, asid ...mmu.ASID) error {
	return c.mmu.MapPage(vpn, frame, perm, asid...)
}
func (c *CPU) UnmapPage(vpn uint64, asid ...mmu.ASID) { c.mmu.UnmapPage(vpn, asid...) }
func (c *CPU) SetPageAttributes(vpn uint64, perm mmu.Perm, asid ...mmu.ASID) error {
	return c.mmu.SetPageAttributes(vpn, perm, asid...)
}

// AttachPLIC wires ctx of dev as this CPU's external interrupt source.
func (c *CPU) AttachPLIC(dev PLICSource, attn PLICAttachment) {
	c.plic = dev
	c.plicAttn = &attn
}

// AttachCLINT wires hart of dev as this CPU's software/timer interrupt
// source.
func (c *CPU) AttachCLINT(dev CLINTSource, attn CLINTAttachment) {
	c.clint = dev
	c.clintAttn = &attn
}

// SampleIRQs polls the attached CLINT/PLIC into the CSR's MIP bits.
func (c *CPU) SampleIRQs() {
	ctx := 0
	if c.plicAttn != nil {
		ctx = c.plicAttn.CtxID
	}
	hart := 0
	if c.clintAttn != nil {
		hart = c.clintAttn.Hart
	}
	c.CSR.SampleIRQs(c.clint, hart, c.plic, ctx)
}

// MaybeTakeInterrupt samples, checks should_take_interrupt, and if a cause
// is pending and enabled, enters the trap. Returns the cause and whether a
// trap was taken.
func (c *CPU) MaybeTakeInterrupt() (cause uint, taken bool) {
	c.SampleIRQs()
	cause, ok := c.CSR.ShouldTakeInterrupt()
	if !ok {
		return 0, false
	}
	c.CSR.TrapEnter(cause, true)
	return cause, true
}

// CompleteTrap is mret: restores mstatus.MIE from MPIE and clears mcause.
func (c *CPU) CompleteTrap() { c.CSR.MRet() }

// PollInterrupts loads the attached PLIC context's CLAIM register through
// a normal bus read; if non-zero it calls handler (swallowing any error,
// since a faulty ISR must not crash the simulator), then writes the id to
// COMPLETE and returns it.
func (c *CPU) PollInterrupts(handler func(id int) error) (int, error) {
	if c.plicAttn == nil {
		return 0, werr.New(werr.BadConfig, "cpu.poll_interrupts", 0)
	}
	claimPA := c.plicAttn.Base + c.plicAttn.Layout.CtxClaimOffset(c.plicAttn.CtxID)

	raw, err := c.bus.ReadBytes(claimPA, 4)
	if err != nil {
		return 0, err
	}
	id := int(c.Target.Unpack(raw, false))

	if id != 0 && handler != nil {
		_ = handler(id) // handler errors are swallowed, per design.
	}

	completePA := claimPA
	if err := c.bus.WriteBytes(completePA, c.Target.Pack(uint64(id), 4)); err != nil {
		return id, err
	}
	return id, nil
}
