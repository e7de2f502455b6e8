package cache

import "github.com/edujime23/warden/werr"

// Controller owns the four cache levels on top of a Memory (the bus).
type Controller struct {
	levels  [numLevels]*level
	bus     Memory
	counter uint64
	rec     EvictionRecorder
}

// New constructs a Controller from cfg, validating that each level's size
// divides evenly into line_size*associativity.
func New(bus Memory, cfg Config) (*Controller, error) {
	c := &Controller{bus: bus}

	specs := []struct {
		id  LevelID
		cfg LevelConfig
	}{
		{L1D, cfg.L1D}, {L1I, cfg.L1I}, {L2, cfg.L2}, {L3, cfg.L3},
	}
	for _, s := range specs {
		if err := validateLevelConfig(s.cfg); err != nil {
			return nil, err
		}
		c.levels[s.id] = newLevel(s.id, s.cfg)
	}
	return c, nil
}

func validateLevelConfig(cfg LevelConfig) error {
	if cfg.LineSize == 0 || cfg.Associativity == 0 {
		return werr.New(werr.BadConfig, "cache.new", 0)
	}
	denom := cfg.LineSize * uint64(cfg.Associativity)
	if denom == 0 || cfg.Size%denom != 0 || cfg.Size/denom == 0 {
		return werr.New(werr.BadConfig, "cache.new", cfg.Size)
	}
	return nil
}

// SetRecorder attaches (or clears, with nil) a telemetry recorder.
func (c *Controller) SetRecorder(r EvictionRecorder) { c.rec = r }

func (c *Controller) tick() uint64 {
	c.counter++
	return c.counter
}

// Stats returns a snapshot of lvl's counters.
func (c *Controller) Stats(lvl LevelID) Stats {
	return c.levels[lvl].stats
}

// LineSize returns lvl's configured line size, used by the CPU front-end
// to size its write-combining buffer and prefetch-on-hit block math.
func (c *Controller) LineSize(lvl LevelID) uint64 {
	return c.levels[lvl].cfg.LineSize
}

func (c *Controller) recordFault(op string, addr uint64, err error) {
	if c.rec != nil && err != nil {
		c.rec.RecordFault(op, addr, err)
	}
}

// locate finds the (setIndex, way) of the valid line covering addr at
// lvl, if any.
func (c *Controller) locate(lvl LevelID, addr uint64) (setIndex, way int, ok bool) {
	lv := c.levels[lvl]
	si, tag := lv.setIndexTag(addr)
	s := &lv.sets[si]
	for w := range s.lines {
		if s.lines[w].Valid && s.lines[w].Tag == tag {
			return int(si), w, true
		}
	}
	return int(si), 0, false
}

// access is a pure probe: on hit it updates LRU and (if isWrite) the dirty
// bit, returning a copy of the line's bytes; on miss it installs nothing.
func (c *Controller) access(lvl LevelID, addr uint64, isWrite bool) ([]byte, bool) {
	si, way, ok := c.locate(lvl, addr)
	lv := c.levels[lvl]
	if !ok {
		lv.stats.Misses++
		return nil, false
	}

	line := &lv.sets[si].lines[way]
	line.LRU = c.tick()
	if isWrite {
		line.Dirty = true
	}
	lv.stats.Hits++

	out := make([]byte, len(line.Data))
	copy(out, line.Data)
	return out, true
}
