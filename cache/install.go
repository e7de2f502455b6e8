package cache

// chooseVictim picks a way within setIndex to replace: prefer any invalid
// line; else (for L2) a line with no resident children, or (for L3) a line
// with no resident L2 child; else the line with the smallest LRU counter.
func (c *Controller) chooseVictim(lvl LevelID, setIndex int) int {
	lv := c.levels[lvl]
	s := &lv.sets[setIndex]

	for w := range s.lines {
		if !s.lines[w].Valid {
			return w
		}
	}

	if lvl == L2 {
		for w := range s.lines {
			if !s.lines[w].PresentL1D && !s.lines[w].PresentL1I {
				return w
			}
		}
	}
	if lvl == L3 {
		for w := range s.lines {
			if !s.lines[w].PresentL2 {
				return w
			}
		}
	}

	victim := 0
	for w := 1; w < len(s.lines); w++ {
		if s.lines[w].LRU < s.lines[victim].LRU {
			victim = w
		}
	}
	return victim
}

// installLine installs data at the block address into lvl, evicting a
// victim first if necessary, and maintaining parent presence bits.
func (c *Controller) installLine(blockAddr uint64, lvl LevelID, data []byte, isWrite bool) error {
	lv := c.levels[lvl]
	si, tag := lv.setIndexTag(blockAddr)
	setIndex := int(si)
	way := c.chooseVictim(lvl, setIndex)

	line := &lv.sets[setIndex].lines[way]
	if line.Valid {
		if err := c.handleEviction(lvl, setIndex, way); err != nil {
			return err
		}
	}

	line.Valid = true
	line.Dirty = isWrite
	line.Tag = tag
	copy(line.Data, data)
	line.LRU = c.tick()
	lv.stats.Fills++

	c.markPresence(lvl, blockAddr)
	return nil
}

// markPresence sets the presence bit on the covering parent line after
// installing into lvl: installing into L1D/L1I sets present_l1d/present_l1i
// on the covering L2 line; installing into L2 sets present_l2 on the
// covering L3 line. L3 has no parent.
func (c *Controller) markPresence(lvl LevelID, blockAddr uint64) {
	parent, ok := nextLevel(lvl)
	if !ok {
		return
	}
	psi, ptag := c.levels[parent].setIndexTag(blockAddr)
	pset := &c.levels[parent].sets[psi]
	for w := range pset.lines {
		if pset.lines[w].Valid && pset.lines[w].Tag == ptag {
			switch lvl {
			case L1D:
				pset.lines[w].PresentL1D = true
			case L1I:
				pset.lines[w].PresentL1I = true
			case L2:
				pset.lines[w].PresentL2 = true
			}
			return
		}
	}
}
