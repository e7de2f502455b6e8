package bus

import (
	"sort"
	"sync"

	"github.com/edujime23/warden/dram"
	"github.com/edujime23/warden/werr"
)

// Stats tracks monotonic bus-level counters.
type Stats struct {
	Reads      uint64
	Writes     uint64
	Faults     uint64
	ReadBytes  uint64
	WriteBytes uint64
}

// FaultRecorder receives a best-effort notification of bus faults for
// telemetry; a nil recorder disables recording entirely.
type FaultRecorder interface {
	RecordFault(op string, addr uint64, err error)
}

// Bus routes physical addresses to RAM or MMIO regions. It never caches:
// every transfer reaches DRAM or a Device directly.
type Bus struct {
	mu sync.Mutex

	regions    []Region
	strictMMIO bool
	stats      Stats
	rec        FaultRecorder
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithStrictMMIO toggles enforcement of device alignment/width caps.
// Strict MMIO is enabled by default; pass WithStrictMMIO(false) to disable.
func WithStrictMMIO(strict bool) Option {
	return func(b *Bus) { b.strictMMIO = strict }
}

// WithRecorder attaches a telemetry recorder at construction time.
func WithRecorder(r FaultRecorder) Option {
	return func(b *Bus) { b.rec = r }
}

// SetRecorder attaches (or clears, with nil) a telemetry recorder.
func (b *Bus) SetRecorder(r FaultRecorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec = r
}

// fault bumps the fault counter, mirrors op/addr/err to the attached
// recorder if any, and returns err unchanged for a one-line call-site use.
func (b *Bus) fault(op string, addr uint64, err error) error {
	b.stats.Faults++
	if b.rec != nil {
		b.rec.RecordFault(op, addr, err)
	}
	return err
}

// New creates an empty Bus with strict MMIO checking enabled.
func New(opts ...Option) *Bus {
	b := &Bus{strictMMIO: true}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Stats returns a snapshot of the bus's monotonic counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Regions returns a copy of the sorted region table, for introspection.
func (b *Bus) Regions() []Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Region, len(b.regions))
	copy(out, b.regions)
	return out
}

func (b *Bus) insert(r Region) error {
	for _, existing := range b.regions {
		if r.overlaps(existing) {
			return b.fault("bus.register", r.Base, werr.New(werr.Overlap, "bus.register", r.Base))
		}
	}
	b.regions = append(b.regions, r)
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].Base < b.regions[j].Base })
	return nil
}

// MapRAM registers a RAM region backed by d starting at dramOffset.
func (b *Bus) MapRAM(name string, base, size uint64, d *dram.DRAM, dramOffset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.insert(Region{
		Kind: RAM, Base: base, Size: size, Name: name,
		DRAM: d, Offset: dramOffset,
	})
}

// RegisterMMIO registers a device, querying its declared region and caps.
func (b *Bus) RegisterMMIO(name string, dev Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	base, size := dev.Region()
	return b.insert(Region{
		Kind: MMIO, Base: base, Size: size, Name: name,
		Device: dev, Caps: dev.Caps(),
	})
}

// findRegion returns the region covering addr, if any.
func (b *Bus) findRegion(addr uint64) (*Region, int) {
	for i := range b.regions {
		if b.regions[i].contains(addr) {
			return &b.regions[i], i
		}
	}
	return nil, -1
}

// ReadBytes reads n bytes starting at pa, splitting the transfer across
// however many regions it spans and concatenating the results in address
// order.
func (b *Bus) ReadBytes(pa, n uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, n)
	cur := pa
	remaining := n
	for remaining > 0 {
		region, _ := b.findRegion(cur)
		if region == nil {
			return nil, b.fault("bus.read_bytes", cur, werr.New(werr.Unmapped, "bus.read_bytes", cur))
		}

		chunk := region.End() - cur + 1
		if chunk > remaining {
			chunk = remaining
		}

		if region.Kind == MMIO {
			if err := b.checkMMIO(*region, cur, chunk); err != nil {
				return nil, b.fault("bus.read_bytes", cur, err)
			}
		}

		data, err := b.readRegion(*region, cur, chunk)
		if err != nil {
			return nil, b.fault("bus.read_bytes", cur, err)
		}

		out = append(out, data...)
		b.stats.Reads++
		b.stats.ReadBytes += chunk
		cur += chunk
		remaining -= chunk
	}
	return out, nil
}

// WriteBytes writes data starting at pa, splitting across regions. Bytes
// already committed to earlier regions remain committed if a later chunk
// in the same call fails.
func (b *Bus) WriteBytes(pa uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := pa
	off := uint64(0)
	remaining := uint64(len(data))
	for remaining > 0 {
		region, _ := b.findRegion(cur)
		if region == nil {
			return b.fault("bus.write_bytes", cur, werr.New(werr.Unmapped, "bus.write_bytes", cur))
		}

		chunk := region.End() - cur + 1
		if chunk > remaining {
			chunk = remaining
		}

		if region.Kind == MMIO {
			if err := b.checkMMIO(*region, cur, chunk); err != nil {
				return b.fault("bus.write_bytes", cur, err)
			}
		}

		if err := b.writeRegion(*region, cur, data[off:off+chunk]); err != nil {
			return b.fault("bus.write_bytes", cur, err)
		}

		b.stats.Writes++
		b.stats.WriteBytes += chunk
		cur += chunk
		off += chunk
		remaining -= chunk
	}
	return nil
}

func (b *Bus) checkMMIO(r Region, addr, n uint64) error {
	if !b.strictMMIO {
		return nil
	}
	offset := addr - r.Base
	if offset%r.Caps.alignment() != 0 {
		return werr.New(werr.MMIOConstraint, "bus.mmio_align", addr)
	}
	if !r.Caps.AllowsWidth(n) {
		return werr.New(werr.MMIOConstraint, "bus.mmio_width", addr)
	}
	return nil
}

func (b *Bus) readRegion(r Region, addr, n uint64) ([]byte, error) {
	switch r.Kind {
	case RAM:
		return r.DRAM.ReadBytes(r.Offset+(addr-r.Base), n)
	default:
		return r.Device.Read(addr-r.Base, n)
	}
}

func (b *Bus) writeRegion(r Region, addr uint64, data []byte) error {
	switch r.Kind {
	case RAM:
		return r.DRAM.WriteBytes(r.Offset+(addr-r.Base), data)
	default:
		return r.Device.Write(addr-r.Base, data)
	}
}
