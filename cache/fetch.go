package cache

import "github.com/edujime23/warden/werr"

// fetchFromBus reads one L3-sized line from the bus at blockAddr.
func (c *Controller) fetchFromBus(blockAddr uint64) ([]byte, error) {
	n := c.levels[L3].cfg.LineSize
	data, err := c.bus.ReadBytes(blockAddr, n)
	if err != nil {
		werr := werr.Wrap(werr.Unmapped, "cache.fetch", blockAddr, err)
		c.recordFault("cache.fetch", blockAddr, werr)
		return nil, werr
	}
	return data, nil
}

// ensureL3 returns L3's bytes for addr, fetching from the bus and
// installing into L3 on a miss.
func (c *Controller) ensureL3(addr uint64) ([]byte, error) {
	if data, hit := c.access(L3, addr, false); hit {
		return data, nil
	}

	data, err := c.fetchFromBus(c.levels[L3].blockAddress(addr))
	if err != nil {
		return nil, err
	}
	if err := c.installLine(c.levels[L3].blockAddress(addr), L3, data, false); err != nil {
		return nil, err
	}
	return data, nil
}

// ensureL2 returns L2's bytes for addr, cascading to ensureL3 on a miss
// and installing into L2.
func (c *Controller) ensureL2(addr uint64) ([]byte, error) {
	if data, hit := c.access(L2, addr, false); hit {
		return data, nil
	}

	data, err := c.ensureL3(addr)
	if err != nil {
		return nil, err
	}
	if err := c.installLine(c.levels[L2].blockAddress(addr), L2, data, false); err != nil {
		return nil, err
	}
	return data, nil
}

// Read implements the demand read path: probe `which` (l1d or l1i), then
// L2, then L3, then the bus, filling back down through every intervening
// level.
func (c *Controller) Read(addr uint64, which LevelID) ([]byte, error) {
	if data, hit := c.access(which, addr, false); hit {
		return data, nil
	}

	data, err := c.ensureL2(addr)
	if err != nil {
		return nil, err
	}
	if err := c.installLine(c.levels[which].blockAddress(addr), which, data, false); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteBytes implements the write-allocate write path: ensure residency via
// Read, then patch the chunk into the line's own backing array (not a
// copy) and mark it dirty.
func (c *Controller) WriteBytes(addr uint64, data []byte, which LevelID) error {
	remaining := data
	cur := addr
	lineSize := c.levels[which].cfg.LineSize

	for len(remaining) > 0 {
		blockAddr := cur - cur%lineSize
		offset := cur - blockAddr
		chunk := lineSize - offset
		if chunk > uint64(len(remaining)) {
			chunk = uint64(len(remaining))
		}

		if _, err := c.Read(cur, which); err != nil {
			return err
		}

		si, way, ok := c.locate(which, cur)
		if !ok {
			return werr.New(werr.DeviceError, "cache.write_bytes", cur)
		}
		line := &c.levels[which].sets[si].lines[way]
		copy(line.Data[offset:offset+chunk], remaining[:chunk])
		line.Dirty = true
		line.LRU = c.tick()

		remaining = remaining[chunk:]
		cur += chunk
	}
	return nil
}

// PrefetchLine fetches a line's worth of bytes for blockAddr into lvl if
// it is not already resident. To keep the inclusion invariant intact even
// when prefetching directly into L1, this walks the same parent chain Read
// does rather than installing at lvl in isolation.
func (c *Controller) PrefetchLine(lvl LevelID, blockAddr uint64) error {
	if _, hit := c.access(lvl, blockAddr, false); hit {
		return nil
	}

	var data []byte
	var err error

	switch lvl {
	case L1D, L1I:
		data, err = c.ensureL2(blockAddr)
	case L2:
		data, err = c.ensureL3(blockAddr)
	case L3:
		data, err = c.fetchFromBus(c.levels[L3].blockAddress(blockAddr))
	}
	if err != nil {
		return err
	}

	if err := c.installLine(c.levels[lvl].blockAddress(blockAddr), lvl, data, false); err != nil {
		return err
	}
	c.levels[lvl].stats.Prefetches++
	return nil
}
