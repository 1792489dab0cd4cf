package engine

import "sync"

// Canceller carries stop requests from the API into running executions. The
// engine checks it between nodes; a stop request never interrupts a node
// mid-flight.
type Canceller struct {
	mu        sync.Mutex
	requested map[string]bool
}

func NewCanceller() *Canceller {
	return &Canceller{requested: make(map[string]bool)}
}

// RequestStop marks an execution for cooperative stop.
func (c *Canceller) RequestStop(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requested[executionID] = true
}

// Stopped reports whether a stop was requested.
func (c *Canceller) Stopped(executionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.requested[executionID]
}

// Clear drops the flag once the execution has finished.
func (c *Canceller) Clear(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.requested, executionID)
}
