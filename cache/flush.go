package cache

// FlushLine locates addr's line at lvl (if resident) and routes it through
// the normal eviction path before invalidating the slot.
func (c *Controller) FlushLine(addr uint64, lvl LevelID) error {
	si, way, ok := c.locate(lvl, addr)
	if !ok {
		return nil
	}

	if err := c.handleEviction(lvl, si, way); err != nil {
		return err
	}

	line := &c.levels[lvl].sets[si].lines[way]
	line.Valid = false
	line.Dirty = false
	return nil
}

// FlushAll evicts every valid line at lvl and reinitializes the level.
func (c *Controller) FlushAll(lvl LevelID) error {
	lv := c.levels[lvl]
	for si := range lv.sets {
		for way := range lv.sets[si].lines {
			if !lv.sets[si].lines[way].Valid {
				continue
			}
			if err := c.handleEviction(lvl, si, way); err != nil {
				return err
			}
			lv.sets[si].lines[way] = Line{Data: make([]byte, lv.cfg.LineSize)}
		}
	}
	return nil
}
