package codescope

import (
	"fmt"
	"sync"
)

// Aggregator collects the labeled results of concurrently running tasks.
//
// Each registered label owns exactly one slot. Append fills a slot at most
// once, so results may arrive in any completion order and Results always
// reports them in registration order.
type Aggregator struct {
	mu      sync.RWMutex
	labels  []string
	index   map[string]int
	entries []*LabeledResult
	count   int
}

// NewAggregator creates an aggregator expecting one result per label.
// Repeated labels are registered once.
func NewAggregator(labels ...string) *Aggregator {
	a := &Aggregator{
		index: make(map[string]int, len(labels)),
	}
	for _, label := range labels {
		if _, exists := a.index[label]; exists {
			continue
		}
		a.index[label] = len(a.labels)
		a.labels = append(a.labels, label)
	}
	a.entries = make([]*LabeledResult, len(a.labels))
	return a
}

// Append stores the result for its label. It fails for unregistered labels
// and for labels that already contributed.
func (a *Aggregator) Append(result LabeledResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index[result.Label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, result.Label)
	}
	if a.entries[i] != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateResult, result.Label)
	}

	entry := result
	a.entries[i] = &entry
	a.count++
	return nil
}

// Results returns a copy of the appended results in registration order.
func (a *Aggregator) Results() []LabeledResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make([]LabeledResult, 0, a.count)
	for _, entry := range a.entries {
		if entry != nil {
			results = append(results, *entry)
		}
	}
	return results
}

// Get returns the result for a label.
func (a *Aggregator) Get(label string) (LabeledResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i, ok := a.index[label]
	if !ok || a.entries[i] == nil {
		return LabeledResult{}, false
	}
	return *a.entries[i], true
}

// Len returns the number of appended results.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// Expected returns the number of registered labels.
func (a *Aggregator) Expected() int {
	return len(a.labels)
}

// Complete reports whether every registered label has contributed.
func (a *Aggregator) Complete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count == len(a.labels)
}

// Missing returns the labels without a result, in registration order.
func (a *Aggregator) Missing() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var missing []string
	for i, entry := range a.entries {
		if entry == nil {
			missing = append(missing, a.labels[i])
		}
	}
	return missing
}
