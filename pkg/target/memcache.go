package target

import "sync"

// memRange is one cached, contiguous span of inferior memory.
type memRange struct {
	addr uint64
	data []byte
}

func (r memRange) end() uint64 { return r.addr + uint64(len(r.data)) }

// MemCache is the L1 memory cache: populated opportunistically from
// stop-reply `memory:` fills and explicit reads, invalidated wholesale on
// every resume since the inferior can write anywhere while running.
type MemCache struct {
	mu     sync.Mutex
	ranges []memRange
}

// NewMemCache returns an empty cache.
func NewMemCache() *MemCache {
	return &MemCache{}
}

// Fill records addr..addr+len(data) as known-good memory contents.
func (c *MemCache) Fill(addr uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.ranges = append(c.ranges, memRange{addr: addr, data: cp})
}

// Lookup returns size bytes starting at addr if a single cached range
// covers the whole span.
func (c *MemCache) Lookup(addr uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return nil, false
	}
	end := addr + uint64(size)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.ranges {
		if r.addr <= addr && end <= r.end() {
			off := addr - r.addr
			out := make([]byte, size)
			copy(out, r.data[off:off+uint64(size)])
			return out, true
		}
	}
	return nil, false
}

// Invalidate drops every cached range (resume, exec).
func (c *MemCache) Invalidate() {
	c.mu.Lock()
	c.ranges = nil
	c.mu.Unlock()
}

// InvalidateRange drops cached ranges overlapping addr..addr+size, used
// after a local write_memory so a stale read can't be served from cache.
func (c *MemCache) InvalidateRange(addr uint64, size int) {
	if size <= 0 {
		return
	}
	end := addr + uint64(size)
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.ranges[:0]
	for _, r := range c.ranges {
		if r.end() <= addr || r.addr >= end {
			kept = append(kept, r)
		}
	}
	c.ranges = kept
}
