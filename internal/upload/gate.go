package upload

// Gate is the bounded admission permit for concurrent uploads. Acquisition
// never blocks: callers either get a slot immediately or are rejected, so
// backpressure surfaces instead of queueing.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting at most capacity concurrent holders.
// Capacity below 1 is treated as 1.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// TryAcquire takes a slot if one is free.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
	}
}

// InUse reports the number of held slots.
func (g *Gate) InUse() int {
	return len(g.slots)
}
