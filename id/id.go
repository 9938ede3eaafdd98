package id

import (
	"sync/atomic"
)

// Generator hands out process-unique, monotonically increasing IDs
// starting at 1. Zero is never returned so it can mean "no id".
type Generator struct {
	id atomic.Uint64
}

func (g *Generator) Next() uint64 {
	nid := g.id.Add(1)
	if nid == 0 {
		panic("id: generator overflow")
	}
	return nid
}

// Last returns the most recently issued id, or 0.
func (g *Generator) Last() uint64 {
	return g.id.Load()
}
