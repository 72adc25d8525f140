package exporter

import (
	"sync"
)

const MaxConsecutiveFailures = 5

type Stats struct {
	Successful          int
	Failed              int
	ConsecutiveFailures int
}

// FailureTracker counts shipment outcomes. The consecutive counter stays within [0, max].
type FailureTracker struct {
	mu          sync.RWMutex
	max         int
	consecutive int
	successful  int
	failed      int
}

func NewFailureTracker(max int) *FailureTracker {
	if max <= 0 {
		max = MaxConsecutiveFailures
	}
	return &FailureTracker{max: max}
}

func (f *FailureTracker) RecordSuccess(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutive = 0
	f.successful += n
}

// RecordFailure bumps the consecutive counter and reports whether it has reached the maximum.
func (f *FailureTracker) RecordFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consecutive < f.max {
		f.consecutive++
	}
	return f.consecutive >= f.max
}

func (f *FailureTracker) AddFailed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed += n
}

func (f *FailureTracker) Max() int {
	return f.max
}

func (f *FailureTracker) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutive = 0
	f.successful = 0
	f.failed = 0
}

func (f *FailureTracker) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		Successful:          f.successful,
		Failed:              f.failed,
		ConsecutiveFailures: f.consecutive,
	}
}
