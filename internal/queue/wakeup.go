package queue

import "sync"

// Wakeup lets one goroutine release every goroutine currently waiting on C.
// Each Broadcast closes the current channel and installs a fresh one.
type Wakeup struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewWakeup returns a ready Wakeup.
func NewWakeup() *Wakeup {
	return &Wakeup{ch: make(chan struct{})}
}

// C returns the channel to wait on. Fetch it before checking the queue so a
// broadcast that races with the check is not lost.
func (w *Wakeup) C() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

// Broadcast wakes all current waiters.
func (w *Wakeup) Broadcast() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.ch)
	w.ch = make(chan struct{})
}
