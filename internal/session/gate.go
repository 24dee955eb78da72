package session

import (
	"fmt"
	"sync"
)

// Gate admits one network-bound operation at a time.
// A second caller is refused with ErrBusy instead of waiting.
type Gate struct {
	mu sync.Mutex
	op string
}

// Acquire claims the gate for op. The returned release func must be called
// exactly once when the operation ends.
func (g *Gate) Acquire(op string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.op != "" {
		return nil, fmt.Errorf("%w: %s", ErrBusy, g.op)
	}
	g.op = op

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.op = ""
			g.mu.Unlock()
		})
	}, nil
}

// InFlight returns the name of the running operation, or "" when idle
func (g *Gate) InFlight() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.op
}
