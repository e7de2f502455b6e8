package devices

import (
	"github.com/edujime23/warden/bus"
	"github.com/edujime23/warden/werr"
)

// ROM is a read-only memory-backed device: writes either fault (strict) or
// are silently dropped (non-strict).
type ROM struct {
	base   uint64
	data   []byte
	strict bool
}

// ROMConfig configures a new ROM.
type ROMConfig struct {
	Base   uint64
	Image  []byte
	Strict bool
}

// NewROM constructs a ROM backed by a copy of cfg.Image.
func NewROM(cfg ROMConfig) *ROM {
	data := make([]byte, len(cfg.Image))
	copy(data, cfg.Image)
	return &ROM{base: cfg.Base, data: data, strict: cfg.Strict}
}

// Region implements bus.Device.
func (r *ROM) Region() (base, size uint64) { return r.base, uint64(len(r.data)) }

// Caps implements bus.Device: any width, byte-aligned.
func (r *ROM) Caps() bus.Caps { return bus.Caps{Align: 1} }

// Read implements bus.Device.
func (r *ROM) Read(offset, count uint64) ([]byte, error) {
	if offset+count > uint64(len(r.data)) {
		return nil, werr.New(werr.AccessViolation, "rom.read", offset)
	}
	out := make([]byte, count)
	copy(out, r.data[offset:offset+count])
	return out, nil
}

// Write implements bus.Device: strict mode raises ReadOnly, non-strict
// silently drops the write.
func (r *ROM) Write(offset uint64, data []byte) error {
	if r.strict {
		return werr.New(werr.ReadOnly, "rom.write", offset)
	}
	return nil
}
