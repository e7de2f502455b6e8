// Package dram provides the sparse byte-addressable backing store that
// sits under RAM-mapped bus regions: a configurable fill byte, overlap-safe
// copy, and a monotonic fault counter.
package dram

import (
	"sync"

	"github.com/edujime23/warden/werr"
)

const unitSize = 4096

// DRAM is deterministic byte storage: unwritten offsets read as Fill until
// written. Units are allocated lazily so a large, mostly-empty DRAM does
// not pay for its full size up front.
type DRAM struct {
	mu sync.Mutex

	size uint64
	fill byte
	name string

	units map[uint64][]byte

	faultCount uint64
}

// Option configures a DRAM at construction time.
type Option func(*DRAM)

// WithFill sets the byte value returned for never-written offsets.
func WithFill(v byte) Option {
	return func(d *DRAM) { d.fill = v }
}

// WithName attaches a label to the DRAM. The label is only stored; error
// values and telemetry records do not include it.
func WithName(name string) Option {
	return func(d *DRAM) { d.name = name }
}

// New creates a DRAM of the given size in bytes.
func New(size uint64, opts ...Option) *DRAM {
	d := &DRAM{
		size:  size,
		units: make(map[uint64][]byte),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Size returns the DRAM's configured capacity.
func (d *DRAM) Size() uint64 { return d.size }

// FaultCount returns the number of accesses that have violated bounds.
func (d *DRAM) FaultCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faultCount
}

func (d *DRAM) checkBounds(op string, addr, n uint64) error {
	if n == 0 {
		return nil
	}
	if addr+n < addr || addr+n > d.size {
		d.faultCount++
		return werr.New(werr.AccessViolation, op, addr)
	}
	return nil
}

func (d *DRAM) unit(base uint64) []byte {
	u, ok := d.units[base]
	if !ok {
		u = make([]byte, unitSize)
		for i := range u {
			u[i] = d.fill
		}
		d.units[base] = u
	}
	return u
}

func splitAddr(addr uint64) (base, off uint64) {
	off = addr % unitSize
	base = addr - off
	return
}

// ReadBytes returns n bytes starting at addr.
func (d *DRAM) ReadBytes(addr, n uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkBounds("dram.read_bytes", addr, n); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	cur := addr
	var done uint64
	for done < n {
		base, off := splitAddr(cur)
		u := d.unit(base)
		chunk := unitSize - off
		remaining := n - done
		if chunk > remaining {
			chunk = remaining
		}
		copy(out[done:done+chunk], u[off:off+chunk])
		done += chunk
		cur += chunk
	}
	return out, nil
}

// WriteBytes writes data starting at addr.
func (d *DRAM) WriteBytes(addr uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := uint64(len(data))
	if err := d.checkBounds("dram.write_bytes", addr, n); err != nil {
		return err
	}

	cur := addr
	var done uint64
	for done < n {
		base, off := splitAddr(cur)
		u := d.unit(base)
		chunk := unitSize - off
		remaining := n - done
		if chunk > remaining {
			chunk = remaining
		}
		copy(u[off:off+chunk], data[done:done+chunk])
		done += chunk
		cur += chunk
	}
	return nil
}

// Fill sets n bytes starting at addr to v.
func (d *DRAM) Fill(addr, n uint64, v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkBounds("dram.fill", addr, n); err != nil {
		return err
	}

	cur := addr
	var done uint64
	for done < n {
		base, off := splitAddr(cur)
		u := d.unit(base)
		chunk := unitSize - off
		remaining := n - done
		if chunk > remaining {
			chunk = remaining
		}
		for i := uint64(0); i < chunk; i++ {
			u[off+i] = v
		}
		done += chunk
		cur += chunk
	}
	return nil
}

// Copy copies n bytes from src to dest within this DRAM. It is overlap-safe:
// ascending copy when dest < src, descending otherwise, matching memmove
// semantics.
func (d *DRAM) Copy(dest, src, n uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkBounds("dram.copy", dest, n); err != nil {
		return err
	}
	if err := d.checkBounds("dram.copy", src, n); err != nil {
		return err
	}
	if n == 0 || dest == src {
		return nil
	}

	if dest < src {
		for i := uint64(0); i < n; i++ {
			d.copyByte(dest+i, src+i)
		}
	} else {
		for i := n; i > 0; i-- {
			d.copyByte(dest+i-1, src+i-1)
		}
	}
	return nil
}

func (d *DRAM) copyByte(dst, src uint64) {
	sBase, sOff := splitAddr(src)
	dBase, dOff := splitAddr(dst)
	su := d.unit(sBase)
	du := d.unit(dBase)
	du[dOff] = su[sOff]
}

// Peek is a read that never mutates fault counters or allocates units for
// never-touched ranges; it reports whether every touched offset is within
// bounds, useful for diagnostics that must not perturb the fault count.
func (d *DRAM) Peek(addr, n uint64) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n == 0 {
		return nil, true
	}
	if addr+n < addr || addr+n > d.size {
		return nil, false
	}

	out := make([]byte, n)
	cur := addr
	var done uint64
	for done < n {
		base, off := splitAddr(cur)
		u, ok := d.units[base]
		chunk := unitSize - off
		remaining := n - done
		if chunk > remaining {
			chunk = remaining
		}
		if ok {
			copy(out[done:done+chunk], u[off:off+chunk])
		} else {
			for i := uint64(0); i < chunk; i++ {
				out[done+i] = d.fill
			}
		}
		done += chunk
		cur += chunk
	}
	return out, true
}

// LoadImage writes a flat binary image starting at addr, as used to seed
// DRAM with a boot image before wiring the CPU.
func (d *DRAM) LoadImage(addr uint64, image []byte) error {
	return d.WriteBytes(addr, image)
}
