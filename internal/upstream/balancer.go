package upstream

import "sync"

// weightedRoundRobin picks upstreams in proportion to their weight
type weightedRoundRobin struct {
	mu            sync.Mutex
	currentIndex  int
	currentWeight int
}

func newWeightedRoundRobin() *weightedRoundRobin {
	return &weightedRoundRobin{currentIndex: -1}
}

// next returns the next candidate, or nil when there are none
func (w *weightedRoundRobin) next(candidates []*Upstream) *Upstream {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	step := candidates[0].Weight()
	maxWeight := 0
	for _, u := range candidates {
		step = gcd(step, u.Weight())
		maxWeight = max(maxWeight, u.Weight())
	}

	for {
		w.currentIndex = (w.currentIndex + 1) % len(candidates)
		if w.currentIndex == 0 {
			w.currentWeight -= step
			if w.currentWeight <= 0 {
				w.currentWeight = maxWeight
			}
		}
		if u := candidates[w.currentIndex]; u.Weight() >= w.currentWeight {
			return u
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
