package testutil

import "sync"

// ProgressRecorder is a thread-safe progress sink that records every
// increment it receives.
type ProgressRecorder struct {
	mu    sync.Mutex
	steps []int
	total int
}

// IncrementStep records n.
func (p *ProgressRecorder) IncrementStep(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, n)
	p.total += n
}

// Total returns the sum of all increments.
func (p *ProgressRecorder) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Steps returns the increments in the order they arrived.
func (p *ProgressRecorder) Steps() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.steps...)
}
