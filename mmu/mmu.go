package mmu

import (
	"math/bits"

	"github.com/edujime23/warden/werr"
)

// Config configures an MMU instance.
type Config struct {
	PageSize   uint64 // power of two, default 4096.
	TLBEntries int    // default 64.
	MaxFrames  uint64 // default 16384.
}

// DefaultConfig returns a 4KiB page, 64-entry TLB, 16384-frame MMU.
func DefaultConfig() Config {
	return Config{PageSize: 4096, TLBEntries: 64, MaxFrames: 16384}
}

// MMU holds per-ASID page tables, an LRU TLB, and the current ASID.
type MMU struct {
	pageSize  uint64
	pageShift uint64
	maxFrames uint64

	current ASID
	tables  map[ASID]map[uint64]PTE

	tlb *tlb
}

// New constructs an MMU from cfg, applying defaults for zero fields and
// rejecting a non-power-of-two page size with BadConfig.
func New(cfg Config) (*MMU, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 4096
	}
	if cfg.TLBEntries == 0 {
		cfg.TLBEntries = 64
	}
	if cfg.MaxFrames == 0 {
		cfg.MaxFrames = 16384
	}
	if bits.OnesCount64(cfg.PageSize) != 1 {
		return nil, werr.New(werr.BadConfig, "mmu.new", cfg.PageSize)
	}

	return &MMU{
		pageSize:  cfg.PageSize,
		pageShift: uint64(bits.TrailingZeros64(cfg.PageSize)),
		maxFrames: cfg.MaxFrames,
		tables:    map[ASID]map[uint64]PTE{0: {}},
		tlb:       newTLB(cfg.TLBEntries),
	}, nil
}

// PageSize returns the configured page size.
func (m *MMU) PageSize() uint64 { return m.pageSize }

// TLBMisses returns the cumulative TLB miss count.
func (m *MMU) TLBMisses() uint64 { return m.tlb.misses }

// SetASID sets the current ASID, creating its page table on first use.
func (m *MMU) SetASID(asid ASID) {
	m.current = asid
	if _, ok := m.tables[asid]; !ok {
		m.tables[asid] = map[uint64]PTE{}
	}
}

// CurrentASID returns the ASID translations operate against.
func (m *MMU) CurrentASID() ASID { return m.current }

func (m *MMU) vpnOffset(va uint64) (vpn, offset uint64) {
	return va >> m.pageShift, va & (m.pageSize - 1)
}

func (m *MMU) table(asid ASID) map[uint64]PTE {
	t, ok := m.tables[asid]
	if !ok {
		t = map[uint64]PTE{}
		m.tables[asid] = t
	}
	return t
}

func resolveASID(cur ASID, override []ASID) ASID {
	if len(override) > 0 {
		return override[0]
	}
	return cur
}

// MapPage installs a translation for vpn in the given (or current) ASID.
func (m *MMU) MapPage(vpn, frame uint64, perm Perm, asid ...ASID) error {
	a := resolveASID(m.current, asid)
	if frame >= m.maxFrames {
		return werr.New(werr.OutOfFrames, "mmu.map_page", vpn<<m.pageShift)
	}

	pte := PTE{
		Frame:      frame,
		Present:    true,
		Writable:   perm.Writable,
		Executable: perm.Executable,
		User:       perm.User,
		MemType:    perm.MemType,
		Cached:     perm.resolvedCached(),
	}

	m.table(a)[vpn] = pte
	m.tlb.invalidate(a, vpn)
	return nil
}

// UnmapPage removes the translation for vpn.
func (m *MMU) UnmapPage(vpn uint64, asid ...ASID) {
	a := resolveASID(m.current, asid)
	delete(m.table(a), vpn)
	m.tlb.invalidate(a, vpn)
}

// SetPageAttributes reshapes an existing page's permissions/memtype and
// invalidates the corresponding TLB entry. An absent page fails with
// PageFault and leaves the TLB untouched.
func (m *MMU) SetPageAttributes(vpn uint64, perm Perm, asid ...ASID) error {
	a := resolveASID(m.current, asid)
	table := m.table(a)
	pte, ok := table[vpn]
	if !ok {
		return werr.New(werr.PageFault, "mmu.set_page_attributes", vpn<<m.pageShift)
	}

	pte.Writable = perm.Writable
	pte.Executable = perm.Executable
	pte.User = perm.User
	pte.MemType = perm.MemType
	pte.Cached = perm.resolvedCached()
	table[vpn] = pte

	m.tlb.invalidate(a, vpn)
	return nil
}

// Translate resolves va to a physical address and the PTE that produced it,
// consulting the TLB first and falling back to the page table on a miss.
func (m *MMU) Translate(va uint64) (uint64, PTE, error) {
	vpn, offset := m.vpnOffset(va)

	if e, ok := m.tlb.lookup(m.current, vpn); ok {
		return (e.frame << m.pageShift) | offset, e.pte, nil
	}

	pte, ok := m.table(m.current)[vpn]
	if !ok || !pte.Present {
		return 0, PTE{}, werr.New(werr.PageFault, "mmu.translate", va)
	}

	pte.Accessed = true
	m.table(m.current)[vpn] = pte

	m.tlb.install(m.current, vpn, pte.Frame, pte)

	return (pte.Frame << m.pageShift) | offset, pte, nil
}

// CheckAccess translates va through Translate (so a TLB miss installs an
// entry, as a plain translation does) and then validates that an access of
// the given kind is legal for the resulting PTE.
func (m *MMU) CheckAccess(va uint64, kind AccessKind) (uint64, PTE, error) {
	pa, pte, err := m.Translate(va)
	if err != nil {
		return 0, PTE{}, err
	}

	switch kind {
	case Write:
		if !pte.Writable {
			return 0, PTE{}, werr.New(werr.PermissionDenied, "mmu.check_access.write", va)
		}
	case Execute:
		if !pte.Executable {
			return 0, PTE{}, werr.New(werr.PermissionDenied, "mmu.check_access.execute", va)
		}
	}

	return pa, pte, nil
}

// MarkDirty sets the dirty bit on the PTE mapping vpn, used by the CPU
// after a successful store.
func (m *MMU) MarkDirty(va uint64, asid ...ASID) {
	a := resolveASID(m.current, asid)
	vpn, _ := m.vpnOffset(va)
	table := m.table(a)
	pte, ok := table[vpn]
	if !ok {
		return
	}
	pte.Dirty = true
	table[vpn] = pte
}

// FlushTLB flushes the whole TLB, or only the given ASID's entries.
func (m *MMU) FlushTLB(asid ...ASID) {
	if len(asid) == 0 {
		m.tlb.flushAll()
		return
	}
	m.tlb.flushASID(asid[0])
}

// FlushTLBEntry flushes exactly the entry for (asid or current, vpn).
func (m *MMU) FlushTLBEntry(vpn uint64, asid ...ASID) {
	a := resolveASID(m.current, asid)
	m.tlb.invalidate(a, vpn)
}
