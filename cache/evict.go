package cache

import "github.com/edujime23/warden/werr"

func childPresent(parent *Line, child LevelID) bool {
	switch child {
	case L1D:
		return parent.PresentL1D
	case L1I:
		return parent.PresentL1I
	case L2:
		return parent.PresentL2
	default:
		return false
	}
}

func setChildPresent(parent *Line, child LevelID, v bool) {
	switch child {
	case L1D:
		parent.PresentL1D = v
	case L1I:
		parent.PresentL1I = v
	case L2:
		parent.PresentL2 = v
	}
}

// clearChildPresence clears lvl's presence bit on the line covering
// blockAddr at lvl's parent level, used when a child is evicted/written
// back without going through installLine's markPresence path.
func (c *Controller) clearChildPresence(lvl LevelID, blockAddr uint64) {
	parent, ok := nextLevel(lvl)
	if !ok {
		return
	}
	psi, ptag := c.levels[parent].setIndexTag(blockAddr)
	pset := &c.levels[parent].sets[psi]
	for w := range pset.lines {
		if pset.lines[w].Valid && pset.lines[w].Tag == ptag {
			setChildPresent(&pset.lines[w], lvl, false)
			return
		}
	}
}

// handleEviction runs the appropriate drain/writeback procedure for a
// valid victim line before installLine overwrites it.
func (c *Controller) handleEviction(lvl LevelID, setIndex, way int) error {
	lv := c.levels[lvl]
	line := &lv.sets[setIndex].lines[way]
	blockAddr := lv.addressOf(setIndex, line.Tag)

	switch lvl {
	case L1D, L1I:
		return c.evictL1(lvl, setIndex, way, blockAddr)
	case L2:
		return c.evictL2(setIndex, way, blockAddr)
	default:
		return c.evictL3(setIndex, way, blockAddr)
	}
}

func (c *Controller) evictL1(lvl LevelID, setIndex, way int, blockAddr uint64) error {
	lv := c.levels[lvl]
	line := &lv.sets[setIndex].lines[way]
	lv.stats.Evictions++

	if line.Dirty {
		if err := c.writebackToNext(lvl, blockAddr, line.Data); err != nil {
			return err
		}
	} else {
		c.clearChildPresence(lvl, blockAddr)
	}

	c.notifyEviction(lvl, blockAddr, line.Dirty)
	return nil
}

func (c *Controller) evictL2(setIndex, way int, blockAddr uint64) error {
	lv2 := c.levels[L2]
	line := &lv2.sets[setIndex].lines[way]
	lv2.stats.Evictions++

	for _, child := range []LevelID{L1D, L1I} {
		if !childPresent(line, child) {
			continue
		}
		c.drainChildInto(child, blockAddr, line)
		setChildPresent(line, child, false)
	}

	wasDirty := line.Dirty
	if line.Dirty {
		if err := c.writebackToNext(L2, blockAddr, line.Data); err != nil {
			return err
		}
	}

	c.clearChildPresence(L2, blockAddr) // clear present_l2 on the covering L3 line
	c.notifyEviction(L2, blockAddr, wasDirty)
	return nil
}

// drainChildInto merges a dirty child line's bytes into parent (if the
// child is dirty) and invalidates the child line.
func (c *Controller) drainChildInto(child LevelID, blockAddr uint64, parent *Line) {
	csi, ctag := c.levels[child].setIndexTag(blockAddr)
	cset := &c.levels[child].sets[csi]
	for w := range cset.lines {
		if cset.lines[w].Valid && cset.lines[w].Tag == ctag {
			if cset.lines[w].Dirty {
				copy(parent.Data, cset.lines[w].Data)
				parent.Dirty = true
			}
			cset.lines[w].Valid = false
			cset.lines[w].Dirty = false
			return
		}
	}
}

// evictL3 drains the L2 child first (which transitively drains its own
// L1 children), writing the merged bytes directly to memory since the L3
// line that would otherwise have received the writeback is itself being
// evicted. It then clears the victim's dirty bit so the fallback
// direct-to-bus writeback below does not double-write stale bytes.
func (c *Controller) evictL3(setIndex, way int, blockAddr uint64) error {
	lv3 := c.levels[L3]
	line := &lv3.sets[setIndex].lines[way]
	lv3.stats.Evictions++

	if line.PresentL2 {
		if err := c.drainL2ForL3Eviction(blockAddr); err != nil {
			return err
		}
		line.PresentL2 = false
		line.Dirty = false
		c.notifyEviction(L3, blockAddr, true)
		return nil
	}

	if line.Dirty {
		if err := c.bus.WriteBytes(blockAddr, line.Data); err != nil {
			wrapped := werr.Wrap(werr.Unmapped, "cache.writeback", blockAddr, err)
			c.recordFault("cache.writeback", blockAddr, wrapped)
			return wrapped
		}
		lv3.stats.Writebacks++
	}

	c.notifyEviction(L3, blockAddr, line.Dirty)
	return nil
}

func (c *Controller) drainL2ForL3Eviction(blockAddr uint64) error {
	csi, ctag := c.levels[L2].setIndexTag(blockAddr)
	cset := &c.levels[L2].sets[csi]

	for w := range cset.lines {
		if !cset.lines[w].Valid || cset.lines[w].Tag != ctag {
			continue
		}
		l2line := &cset.lines[w]

		for _, gc := range []LevelID{L1D, L1I} {
			if !childPresent(l2line, gc) {
				continue
			}
			c.drainChildInto(gc, blockAddr, l2line)
			setChildPresent(l2line, gc, false)
		}

		if l2line.Dirty {
			if err := c.bus.WriteBytes(blockAddr, l2line.Data); err != nil {
				wrapped := werr.Wrap(werr.Unmapped, "cache.writeback", blockAddr, err)
				c.recordFault("cache.writeback", blockAddr, wrapped)
				return wrapped
			}
			c.levels[L2].stats.Writebacks++
		}

		l2line.Valid = false
		l2line.Dirty = false
		return nil
	}
	return nil
}

// writebackToNext pushes data for blockAddr from lvl to its next level: a
// parent cache line if one exists, or the bus if lvl is the last level.
func (c *Controller) writebackToNext(lvl LevelID, blockAddr uint64, data []byte) error {
	parent, ok := nextLevel(lvl)
	if !ok {
		if err := c.bus.WriteBytes(blockAddr, data); err != nil {
			wrapped := werr.Wrap(werr.Unmapped, "cache.writeback", blockAddr, err)
			c.recordFault("cache.writeback", blockAddr, wrapped)
			return wrapped
		}
		c.levels[lvl].stats.Writebacks++
		return nil
	}

	psi, ptag := c.levels[parent].setIndexTag(blockAddr)
	pset := &c.levels[parent].sets[psi]
	for w := range pset.lines {
		if pset.lines[w].Valid && pset.lines[w].Tag == ptag {
			copy(pset.lines[w].Data, data)
			pset.lines[w].Dirty = true
			pset.lines[w].LRU = c.tick()
			c.levels[lvl].stats.Writebacks++
			if lvl == L1D || lvl == L1I {
				c.clearChildPresence(lvl, blockAddr)
			}
			return nil
		}
	}

	// No resident parent line: install one.
	if err := c.installLine(blockAddr, parent, data, true); err != nil {
		return err
	}
	c.levels[lvl].stats.Writebacks++
	if lvl == L1D || lvl == L1I {
		c.clearChildPresence(lvl, blockAddr)
	}
	return nil
}

func (c *Controller) notifyEviction(lvl LevelID, blockAddr uint64, dirty bool) {
	if c.rec != nil {
		c.rec.RecordEviction(lvl.String(), blockAddr, dirty)
	}
}
