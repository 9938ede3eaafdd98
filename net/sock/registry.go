package sock

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
)

// registry is the insertion-ordered set of live records. Every insert
// and remove pulses the changed signal, which stays raised until the
// reactor consumes it.
type registry struct {
	mu      sync.Mutex
	order   *list.List
	index   map[Handle]*list.Element
	changed chan struct{}
}

func newRegistry() *registry {
	return &registry{
		order:   list.New(),
		index:   make(map[Handle]*list.Element),
		changed: make(chan struct{}, 1),
	}
}

func (r *registry) pulse() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Changed is consumed by receiving from it.
func (r *registry) Changed() <-chan struct{} {
	return r.changed
}

// Insert appends rec; a record already present is left in place.
func (r *registry) Insert(rec *record) bool {
	r.mu.Lock()
	if _, ok := r.index[rec.handle]; ok {
		r.mu.Unlock()
		return false
	}
	r.index[rec.handle] = r.order.PushBack(rec)
	r.mu.Unlock()
	r.pulse()
	return true
}

// Remove reports whether rec was present. The caller that gets true owns
// the record's release.
func (r *registry) Remove(rec *record) bool {
	return r.RemoveHandle(rec.handle) != nil
}

func (r *registry) RemoveHandle(h Handle) *record {
	r.mu.Lock()
	e, ok := r.index[h]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.index, h)
	rec := r.order.Remove(e).(*record)
	r.mu.Unlock()
	r.pulse()
	return rec
}

func (r *registry) RemoveHead() *record {
	r.mu.Lock()
	e := r.order.Front()
	if e == nil {
		r.mu.Unlock()
		return nil
	}
	rec := r.order.Remove(e).(*record)
	delete(r.index, rec.handle)
	r.mu.Unlock()
	r.pulse()
	return rec
}

func (r *registry) Get(h Handle) *record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.index[h]; ok {
		return e.Value.(*record)
	}
	return nil
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Range visits records in insertion order until f returns false. f runs
// under the registry lock and must not call back into the registry.
func (r *registry) Range(f func(rec *record) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e := r.order.Front(); e != nil; e = e.Next() {
		if !f(e.Value.(*record)) {
			return
		}
	}
}

// Reset detaches whatever is left without releasing it and returns how
// many records were dropped.
func (r *registry) Reset(name string) int {
	r.mu.Lock()
	n := r.order.Len()
	if n > 0 {
		slog.Warn(fmt.Sprintf("sock: server [%s] registry reset with live records", name),
			slog.Int("count", n))
	}
	r.order.Init()
	clear(r.index)
	r.mu.Unlock()
	if n > 0 {
		r.pulse()
	}
	return n
}
