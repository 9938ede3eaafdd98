package bytespool

import (
	"sync"
)

// Buffers are handed out from size classes; a request is rounded up to
// the next class boundary. Requests above the largest class are
// allocated directly and never pooled.
var classes = [4]*class{
	{min: 1, max: 4096, step: 512},
	{min: 4097, max: 40960, step: 4096},
	{min: 40961, max: 417792, step: 16384},
	{min: 417793, max: 1925120, step: 65536},
}

func init() {
	for _, c := range classes {
		c.init()
	}
}

type class struct {
	min, max, step int
	pools          []sync.Pool
}

func (c *class) init() {
	n := (c.max - c.min + 1) / c.step
	c.pools = make([]sync.Pool, n)
	for i := 0; i < n; i++ {
		size := c.sizeOf(i)
		c.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
}

func (c *class) sizeOf(idx int) int {
	return (c.min - 1) + (idx+1)*c.step
}

// index returns the pool slot serving size, rounding up.
func (c *class) index(size int) int {
	return (size - c.min) / c.step
}

func (c *class) get(size int) []byte {
	b := c.pools[c.index(size)].Get().(*[]byte)
	return (*b)[:size]
}

// put only accepts buffers whose capacity is exactly a class size so a
// foreign slice can never be handed out short.
func (c *class) put(b []byte) {
	idx := c.index(cap(b))
	if idx < 0 || idx >= len(c.pools) || c.sizeOf(idx) != cap(b) {
		return
	}
	b = b[:cap(b)]
	c.pools[idx].Put(&b)
}

// Get returns a buffer of len size. Its contents are unspecified.
func Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	for _, c := range classes {
		if size <= c.max {
			return c.get(size)
		}
	}
	return make([]byte, size)
}

// Put returns b to its class. Buffers not obtained from Get are dropped.
func Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	for _, c := range classes {
		if cap(b) <= c.max {
			c.put(b)
			return
		}
	}
}
