package scheduler

import (
	"sync"
	"time"
)

// Run tracks the progress of one task execution
type Run struct {
	ID      string
	Started time.Time

	mu        sync.Mutex
	items     []string
	itemsSet  bool
	processed int
	current   string
}

func newRun(id string) *Run {
	return &Run{ID: id, Started: time.Now()}
}

// SetItems fixes the run's work queue. Only the first call has an effect.
func (r *Run) SetItems(items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.itemsSet {
		return
	}
	r.items = append([]string(nil), items...)
	r.itemsSet = true
}

// Begin marks item as the one being processed
func (r *Run) Begin(item string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = item
}

// Done counts item as processed. The count never exceeds the total.
func (r *Run) Done(item string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processed < len(r.items) {
		r.processed++
	}
	if r.current == item {
		r.current = ""
	}
}

// Progress returns processed and total item counts and the current item
func (r *Run) Progress() (processed, total int, current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, len(r.items), r.current
}

// Percentage is processed/total*100, zero before items are set
func (r *Run) Percentage() float64 {
	processed, total, _ := r.Progress()
	if total == 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
