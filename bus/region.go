package bus

import "github.com/edujime23/warden/dram"

// Kind distinguishes a RAM region backed by DRAM from an MMIO region
// backed by a Device.
type Kind int

const (
	RAM Kind = iota
	MMIO
)

// Region is a single entry in the bus's address map. Regions never overlap
// and the bus keeps them sorted by Base.
type Region struct {
	Kind Kind
	Base uint64
	Size uint64
	Name string

	// RAM fields.
	DRAM   *dram.DRAM
	Offset uint64

	// MMIO fields.
	Device Device
	Caps   Caps
}

// End returns the last byte address covered by the region (inclusive).
func (r Region) End() uint64 { return r.Base + r.Size - 1 }

func (r Region) contains(addr uint64) bool {
	return addr >= r.Base && addr <= r.End()
}

func (r Region) overlaps(other Region) bool {
	return r.Base <= other.End() && other.Base <= r.End()
}
