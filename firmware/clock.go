package firmware

import "time"

// TickSource is the minimal CLINT surface a Clock needs: the running mtime
// counter. The wall-clock length of one mtime unit is given to NewClock.
type TickSource interface {
	MTime() uint64
}

// Clock is a wall-clock facade over a CLINT's mtime, letting firmware code
// ask "how long since boot" without depending on irq.CLINT directly.
type Clock struct {
	src      TickSource
	tickNS   uint64 // nanoseconds per mtime unit.
	bootTick uint64
	bootWall time.Time
}

// NewClock snapshots the current wall time and tick count as the epoch.
// tickNS is the wall-clock duration, in nanoseconds, of one mtime unit.
func NewClock(src TickSource, tickNS uint64, wallNow time.Time) *Clock {
	if tickNS == 0 {
		tickNS = 1
	}
	return &Clock{src: src, tickNS: tickNS, bootTick: src.MTime(), bootWall: wallNow}
}

// NowTicks returns the CLINT's current mtime value.
func (c *Clock) NowTicks() uint64 { return c.src.MTime() }

// SinceBoot returns the wall-clock duration elapsed since the Clock was
// constructed, derived from the elapsed tick count.
func (c *Clock) SinceBoot() time.Duration {
	elapsed := c.src.MTime() - c.bootTick
	return time.Duration(elapsed * c.tickNS)
}

// NowWall returns the boot wall-clock time plus SinceBoot.
func (c *Clock) NowWall() time.Time {
	return c.bootWall.Add(c.SinceBoot())
}
