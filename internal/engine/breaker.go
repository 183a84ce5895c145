package engine

import "sync"

// breaker tracks consecutive denials for the session. Once the threshold is
// reached it stays open until an explicit manual reset; time-based decay
// would let a probing loop resume unattended.
type breaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	open        bool
}

func newBreaker(threshold int) *breaker {
	return &breaker{threshold: threshold}
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// observe records a final decision. Approvals clear the streak; denials
// extend it and may trip the breaker.
func (b *breaker) observe(approved bool) (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if approved {
		b.consecutive = 0
		return false
	}
	b.consecutive++
	if !b.open && b.consecutive >= b.threshold {
		b.open = true
		return true
	}
	return false
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.open = false
}
