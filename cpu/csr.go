package cpu

// Cause codes for the three machine-mode interrupt sources. Priority when
// more than one is pending and enabled is MEIE > MTIE > MSIE.
const (
	CauseMSIE = 3
	CauseMTIE = 7
	CauseMEIE = 11
)

// PLICSource is the minimal surface the CPU polls to aggregate MEIP.
type PLICSource interface {
	ContextIRQ(ctx int) bool
}

// CLINTSource is the minimal surface the CPU polls to aggregate MSIP/MTIP.
type CLINTSource interface {
	IRQLevels(hart int) (msip, mtip bool)
}

// CSR is the minimal machine-mode CSR block: mstatus, mie, mip, and mcause,
// enough to aggregate a PLIC and a CLINT into a single interrupt decision.
type CSR struct {
	MIE  bool // mstatus.MIE
	MPIE bool // mstatus.MPIE

	MIESIE bool // mie.MSIE
	MIETIE bool // mie.MTIE
	MIEEIE bool // mie.MEIE

	MIPSIP bool // mip.MSIP
	MIPTIP bool // mip.MTIP
	MIPEIP bool // mip.MEIP

	MCause            uint
	MCauseIsInterrupt bool
}

// SampleIRQs polls the attached CLINT (for hart) and PLIC (for ctx) and
// latches their lines into MIP.
func (c *CSR) SampleIRQs(clint CLINTSource, hart int, plic PLICSource, ctx int) {
	if clint != nil {
		msip, mtip := clint.IRQLevels(hart)
		c.MIPSIP = msip
		c.MIPTIP = mtip
	}
	if plic != nil {
		c.MIPEIP = plic.ContextIRQ(ctx)
	}
}

// ShouldTakeInterrupt returns the highest-priority pending+enabled cause,
// if mstatus.MIE is set.
func (c *CSR) ShouldTakeInterrupt() (cause uint, ok bool) {
	if !c.MIE {
		return 0, false
	}
	if c.MIEEIE && c.MIPEIP {
		return CauseMEIE, true
	}
	if c.MIETIE && c.MIPTIP {
		return CauseMTIE, true
	}
	if c.MIESIE && c.MIPSIP {
		return CauseMSIE, true
	}
	return 0, false
}

// TrapEnter records cause and disables further interrupts until mret,
// preserving the prior MIE in MPIE.
func (c *CSR) TrapEnter(cause uint, isInterrupt bool) {
	c.MPIE = c.MIE
	c.MIE = false
	c.MCause = cause
	c.MCauseIsInterrupt = isInterrupt
}

// MRet restores MIE from MPIE and clears mcause.
func (c *CSR) MRet() {
	c.MIE = c.MPIE
	c.MPIE = true
	c.MCause = 0
	c.MCauseIsInterrupt = false
}
