package engine

import "sync"

// SlotManager hands out one live cancellation flag per logical request lane
// (e.g. "chat" and "complete"). Beginning a request on a slot signals the
// previous flag first so an old child process is never orphaned.
type SlotManager struct {
	mu    sync.Mutex
	flags map[string]*CancelFlag
}

func NewSlotManager() *SlotManager {
	return &SlotManager{flags: make(map[string]*CancelFlag)}
}

// Begin cancels whatever ran on the slot before and returns a fresh flag for
// the new request.
func (m *SlotManager) Begin(slot string) *CancelFlag {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.flags[slot]; ok {
		prev.Cancel()
	}
	flag := NewCancelFlag()
	m.flags[slot] = flag
	return flag
}

// Cancel signals the slot's current request, if any. Idempotent.
func (m *SlotManager) Cancel(slot string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, ok := m.flags[slot]; ok {
		flag.Cancel()
	}
}

// End forgets the slot's flag, but only if it still belongs to the caller;
// a request that was superseded must not clear its successor.
func (m *SlotManager) End(slot string, flag *CancelFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flags[slot] == flag {
		delete(m.flags, slot)
	}
}
