package target

import "sync"

// StopHook is an ordered list of commands attached to the Target with an
// optional symbol-context specifier and thread specifier, toggleable
// active/inactive, assigned a monotonically increasing user id.
type StopHook struct {
	ID            uint32
	Commands      []string
	SymbolContext string
	ThreadSpec    *uint64
	Active        bool

	// AutoContinue is the hook's auto-continue flag. The Target stores it
	// but does not run stop hooks, so nothing re-resumes the target on
	// its account.
	AutoContinue bool
}

// StopHookTable owns the Target's stop-hook list and id allocation.
type StopHookTable struct {
	mu     sync.Mutex
	nextID uint32
	hooks  map[uint32]*StopHook
	order  []uint32
}

// NewStopHookTable returns an empty table.
func NewStopHookTable() *StopHookTable {
	return &StopHookTable{hooks: make(map[uint32]*StopHook)}
}

// Add registers a new, active StopHook and returns it.
func (t *StopHookTable) Add(commands []string, symbolContext string, threadSpec *uint64, autoContinue bool) *StopHook {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	h := &StopHook{
		ID:            t.nextID,
		Commands:      commands,
		SymbolContext: symbolContext,
		ThreadSpec:    threadSpec,
		Active:        true,
		AutoContinue:  autoContinue,
	}
	t.hooks[h.ID] = h
	t.order = append(t.order, h.ID)
	return h
}

// Remove forgets a hook by id.
func (t *StopHookTable) Remove(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.hooks[id]; !ok {
		return false
	}
	delete(t.hooks, id)
	for i, hid := range t.order {
		if hid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// SetActive toggles a hook's active flag.
func (t *StopHookTable) SetActive(id uint32, active bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hooks[id]
	if !ok {
		return false
	}
	h.Active = active
	return true
}

// List returns every hook in registration order.
func (t *StopHookTable) List() []*StopHook {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*StopHook, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.hooks[id])
	}
	return out
}

// ActiveForThread returns every active hook whose ThreadSpec is nil (applies
// to all threads) or matches tid.
func (t *StopHookTable) ActiveForThread(tid uint64) []*StopHook {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*StopHook, 0, len(t.order))
	for _, id := range t.order {
		h := t.hooks[id]
		if !h.Active {
			continue
		}
		if h.ThreadSpec != nil && *h.ThreadSpec != tid {
			continue
		}
		out = append(out, h)
	}
	return out
}
