package threads

import (
	"sync"

	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
)

// Registry tracks every thread the target process has reported, keyed by
// thread id, and applies parsed stop-replies to materialize or refresh
// per-thread state.
type Registry struct {
	mu      sync.RWMutex
	threads map[uint64]*Thread
	order   []uint64
	stopID  uint64
}

// NewRegistry returns an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{threads: make(map[uint64]*Thread)}
}

// Get returns the thread with the given id, if known.
func (r *Registry) Get(id uint64) (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	return t, ok
}

// All returns every known thread in first-seen order.
func (r *Registry) All() []*Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Thread, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.threads[id])
	}
	return out
}

// Count returns the number of known threads.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// StopID returns the current stop generation counter.
func (r *Registry) StopID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopID
}

func (r *Registry) getOrCreateLocked(id uint64) *Thread {
	t, ok := r.threads[id]
	if !ok {
		t = newThread(id)
		r.threads[id] = t
		r.order = append(r.order, id)
	}
	return t
}

// ApplyStop materializes or refreshes every thread named in a parsed
// StopEvent: the stopped thread(s) get their full per-thread fields
// applied, every other id named in the "threads:" list is created (if
// unseen) and marked running so the registry's thread count stays in sync
// with the target without requiring a separate qThreadInfo round trip.
//
// It returns the new stop generation id.
func (r *Registry) ApplyStop(ev *stopreply.StopEvent) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopID++
	gen := r.stopID

	for _, id := range ev.AllTIDs {
		r.getOrCreateLocked(id).markRunning()
	}

	for _, ts := range ev.Threads {
		if ts.TID == 0 {
			continue
		}
		t := r.getOrCreateLocked(ts.TID)
		t.applyStop(ts, gen)
		if pc, ok := ev.ThreadPCs[ts.TID]; ok && !t.hasPC {
			t.mu.Lock()
			t.pc, t.hasPC = pc, true
			t.mu.Unlock()
		}
	}

	for tid, pc := range ev.ThreadPCs {
		t := r.getOrCreateLocked(tid)
		t.mu.Lock()
		if !t.hasPC {
			t.pc, t.hasPC = pc, true
		}
		t.mu.Unlock()
	}

	return gen
}

// SetLastResumeState records whether tid's most recently issued resume
// directive was a single-step, creating the thread if it hasn't been seen
// yet (the first resume of a process happens before any stop reply has
// materialized it).
func (r *Registry) SetLastResumeState(tid uint64, stepping bool) {
	r.mu.Lock()
	t := r.getOrCreateLocked(tid)
	r.mu.Unlock()
	t.SetLastResumeStepping(stepping)
}

// WasStepping implements stopreply.ResumeLookup: an unknown thread is
// treated as not stepping.
func (r *Registry) WasStepping(tid uint64) bool {
	t, ok := r.Get(tid)
	if !ok {
		return false
	}
	return t.WasStepping()
}

// MarkAllExited transitions every known thread to StateExited, called when
// the target process exits or terminates.
func (r *Registry) MarkAllExited() {
	r.mu.RLock()
	threads := make([]*Thread, 0, len(r.order))
	for _, id := range r.order {
		threads = append(threads, r.threads[id])
	}
	r.mu.RUnlock()

	for _, t := range threads {
		t.markExited()
	}
}

// Reset clears the registry entirely, used when an exec replaces the
// process image and all prior thread ids become meaningless.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = make(map[uint64]*Thread)
	r.order = nil
	r.stopID = 0
}

// Prune drops threads not present in liveIDs, used after a qThreadInfo
// refresh reveals threads the stop-reply stream never mentioned as exited.
func (r *Registry) Prune(liveIDs map[uint64]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newOrder := r.order[:0:0]
	for _, id := range r.order {
		if _, ok := liveIDs[id]; ok {
			newOrder = append(newOrder, id)
			continue
		}
		delete(r.threads, id)
	}
	r.order = newOrder
}
