package irq

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

// Mode selects level-triggered or latched pending semantics.
type Mode int

const (
	LevelMode Mode = iota
	LatchedMode
)

// PLICConfig configures a new PLIC.
type PLICConfig struct {
	Sources  int // 1..64
	Contexts int // 1..8
	Layout   Layout
	Mode     Mode
	Base     uint64 // MMIO base address, for Region().
}

// IRQRecorder receives a best-effort notification of PLIC claim/complete
// events for telemetry; a nil recorder disables recording entirely.
type IRQRecorder interface {
	RecordClaim(ctx, id int)
	RecordComplete(ctx, id int)
}

// PLIC is the priority-based external interrupt controller.
type PLIC struct {
	cfg PLICConfig
	rec IRQRecorder

	priority []uint32 // index 0 == source 1
	lineHigh []bool
	pending  uint64 // bit (id-1)

	ctxEnable    []uint64
	ctxThreshold []uint32
}

// SetRecorder attaches (or clears, with nil) a telemetry recorder.
func (p *PLIC) SetRecorder(r IRQRecorder) { p.rec = r }

// NewPLIC constructs a PLIC, validating cfg's bounds.
func NewPLIC(cfg PLICConfig) (*PLIC, error) {
	if cfg.Sources < 1 || cfg.Sources > 64 {
		return nil, werr.New(werr.BadConfig, "plic.new", uint64(cfg.Sources))
	}
	if cfg.Contexts < 1 || cfg.Contexts > 8 {
		return nil, werr.New(werr.BadConfig, "plic.new", uint64(cfg.Contexts))
	}

	return &PLIC{
		cfg:          cfg,
		priority:     make([]uint32, cfg.Sources),
		lineHigh:     make([]bool, cfg.Sources),
		ctxEnable:    make([]uint64, cfg.Contexts),
		ctxThreshold: make([]uint32, cfg.Contexts),
	}, nil
}

func (p *PLIC) bit(id int) uint64 { return uint64(1) << uint(id-1) }

func (p *PLIC) setPending(id int)   { p.pending |= p.bit(id) }
func (p *PLIC) clearPending(id int) { p.pending &^= p.bit(id) }
func (p *PLIC) isPending(id int) bool {
	return p.pending&p.bit(id) != 0
}

func (p *PLIC) isEnabled(ctx, id int) bool {
	return p.ctxEnable[ctx]&p.bit(id) != 0
}

// SetPriority sets source id's priority directly (used by wiring code and
// tests; the MMIO path also reaches this through Write).
func (p *PLIC) SetPriority(id int, priority uint32) { p.priority[id-1] = priority }

// SetEnable sets whether ctx has source id enabled.
func (p *PLIC) SetEnable(ctx, id int, enabled bool) {
	if enabled {
		p.ctxEnable[ctx] |= p.bit(id)
	} else {
		p.ctxEnable[ctx] &^= p.bit(id)
	}
}

// SetThreshold sets ctx's claim threshold.
func (p *PLIC) SetThreshold(ctx int, threshold uint32) { p.ctxThreshold[ctx] = threshold }

// Raise asserts source id's line. In level mode the pending bit mirrors
// the line; in latched mode it latches only on a low->high transition.
func (p *PLIC) Raise(id int) {
	wasHigh := p.lineHigh[id-1]
	p.lineHigh[id-1] = true
	if p.cfg.Mode == LevelMode {
		p.setPending(id)
		return
	}
	if !wasHigh {
		p.setPending(id)
	}
}

// Lower deasserts source id's line. In level mode this clears pending; in
// latched mode pending is left untouched until Complete observes the line
// is low.
func (p *PLIC) Lower(id int) {
	p.lineHigh[id-1] = false
	if p.cfg.Mode == LevelMode {
		p.clearPending(id)
	}
}

// claimSearch is the pure priority search shared by Claim and
// GetContextIRQ: highest priority among enabled+pending+above-threshold
// sources, tie-broken by lowest id. Returns 0 when none qualify.
func (p *PLIC) claimSearch(ctx int) int {
	best := 0
	var bestPriority uint32
	for id := 1; id <= p.cfg.Sources; id++ {
		pr := p.priority[id-1]
		if pr == 0 || pr <= p.ctxThreshold[ctx] {
			continue
		}
		if !p.isEnabled(ctx, id) || !p.isPending(id) {
			continue
		}
		if best == 0 || pr > bestPriority {
			best = id
			bestPriority = pr
		}
	}
	return best
}

// Claim returns the highest-priority pending source for ctx and, in
// latched mode, clears that source's pending bit.
func (p *PLIC) Claim(ctx int) int {
	id := p.claimSearch(ctx)
	if id != 0 && p.cfg.Mode == LatchedMode {
		p.clearPending(id)
	}
	if id != 0 && p.rec != nil {
		p.rec.RecordClaim(ctx, id)
	}
	return id
}

// Complete acknowledges id for ctx. In latched mode it re-latches pending
// if the line is still high; in level mode it is a no-op since pending
// always mirrors the line.
func (p *PLIC) Complete(ctx, id int) {
	if p.rec != nil {
		p.rec.RecordComplete(ctx, id)
	}
	if p.cfg.Mode != LatchedMode {
		return
	}
	if id >= 1 && id <= p.cfg.Sources && p.lineHigh[id-1] {
		p.setPending(id)
	}
}

// ContextIRQ reports whether ctx currently has a claimable source, without
// the side effects Claim has in latched mode. The CPU front-end polls this
// to aggregate MEIP.
func (p *PLIC) ContextIRQ(ctx int) bool {
	if ctx < 0 || ctx >= p.cfg.Contexts {
		return false
	}
	return p.claimSearch(ctx) != 0
}

// Region implements bus.Device.
func (p *PLIC) Region() (base, size uint64) {
	return p.cfg.Base, p.cfg.Layout.regionSize(p.cfg.Contexts)
}

// Caps implements bus.Device: PLIC registers are 32-bit, naturally
// aligned.
func (p *PLIC) Caps() bus.Caps {
	return bus.Caps{Align: 4, Widths: []uint64{4}}
}

// Read implements the PLIC's MMIO read path per the register map selected
// by cfg.Layout.
func (p *PLIC) Read(offset uint64, width uint64) ([]byte, error) {
	l := p.cfg.Layout

	if offset < priorityOffset(p.cfg.Sources+1) && offset%4 == 0 {
		id := int(offset/4) + 1
		if id >= 1 && id <= p.cfg.Sources {
			return le32(p.priority[id-1]), nil
		}
	}
	switch offset {
	case l.pendingLoOffset():
		return le32(uint32(p.pending)), nil
	case l.pendingHiOffset():
		return le32(uint32(p.pending >> 32)), nil
	}
	for ctx := 0; ctx < p.cfg.Contexts; ctx++ {
		switch offset {
		case l.ctxEnableLoOffset(ctx):
			return le32(uint32(p.ctxEnable[ctx])), nil
		case l.ctxEnableHiOffset(ctx):
			return le32(uint32(p.ctxEnable[ctx] >> 32)), nil
		case l.ctxThresholdOffset(ctx):
			return le32(p.ctxThreshold[ctx]), nil
		case l.CtxClaimOffset(ctx):
			return le32(uint32(p.Claim(ctx))), nil
		}
	}
	return nil, werr.New(werr.MMIOConstraint, "plic.read", offset)
}

// Write implements the PLIC's MMIO write path per the register map
// selected by cfg.Layout. A write to the claim/complete register
// completes the given source for ctx.
func (p *PLIC) Write(offset uint64, data []byte) error {
	l := p.cfg.Layout
	v := decodeLE32(data)

	if offset < priorityOffset(p.cfg.Sources+1) && offset%4 == 0 {
		id := int(offset/4) + 1
		if id >= 1 && id <= p.cfg.Sources {
			p.SetPriority(id, v)
			return nil
		}
	}
	switch offset {
	case l.pendingLoOffset(), l.pendingHiOffset():
		// Pending bits are not software-writable.
		return nil
	}
	for ctx := 0; ctx < p.cfg.Contexts; ctx++ {
		switch offset {
		case l.ctxEnableLoOffset(ctx):
			p.ctxEnable[ctx] = (p.ctxEnable[ctx] &^ 0xFFFFFFFF) | uint64(v)
			return nil
		case l.ctxEnableHiOffset(ctx):
			p.ctxEnable[ctx] = (p.ctxEnable[ctx] & 0xFFFFFFFF) | (uint64(v) << 32)
			return nil
		case l.ctxThresholdOffset(ctx):
			p.SetThreshold(ctx, v)
			return nil
		case l.CtxClaimOffset(ctx):
			p.Complete(ctx, int(v))
			return nil
		}
	}
	return werr.New(werr.MMIOConstraint, "plic.write", offset)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeLE32(data []byte) uint32 {
	var v uint32
	for i := 0; i < len(data) && i < 4; i++ {
		v |= uint32(data[i]) << (uint(i) * 8)
	}
	return v
}
