package guard

import "sync"

// breaker tracks consecutive failures per source and opens once a source
// crosses its threshold, keeping it open for the remainder of the run.
type breaker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	open      map[string]struct{}
}

func newBreaker(threshold int) *breaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	return &breaker{
		threshold: threshold,
		counts:    make(map[string]int),
		open:      make(map[string]struct{}),
	}
}

func (b *breaker) IsOpen(sourceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.open[sourceID]
	return ok
}

// MarkFailure increments the consecutive-failure count and returns true once
// the source's circuit is open.
func (b *breaker) MarkFailure(sourceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, open := b.open[sourceID]; open {
		return true
	}
	b.counts[sourceID]++
	if b.counts[sourceID] >= b.threshold {
		b.open[sourceID] = struct{}{}
		return true
	}
	return false
}

// MarkSuccess resets the consecutive-failure count.
func (b *breaker) MarkSuccess(sourceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.counts, sourceID)
}
