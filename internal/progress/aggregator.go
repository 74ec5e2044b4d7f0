// Package progress folds per-item progress from a batch into one 0-100 value.
package progress

import (
	"math"
	"sync"
)

// Aggregator turns item events into batch progress. A batch of one item
// forwards that item's own progress unscaled; larger batches only move when
// an item completes, to round(100 * completed / total).
//
// Items are tracked by id, so completions may arrive in any order and
// repeated notifications are ignored. Reported values never decrease.
type Aggregator struct {
	mu       sync.Mutex
	total    int
	report   func(int)
	done     map[string]struct{}
	last     int
	reported bool
}

// New returns an aggregator for total items reporting to report.
func New(total int, report func(int)) *Aggregator {
	if report == nil {
		report = func(int) {}
	}
	return &Aggregator{total: total, report: report, done: make(map[string]struct{})}
}

// Start reports 0.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emit(0)
}

// Update records sub-item progress for id. It is only surfaced for a batch
// of one item.
func (a *Aggregator) Update(id string, percent int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total != 1 {
		return
	}
	if _, finished := a.done[id]; finished {
		return
	}
	a.emit(clamp(percent))
}

// Complete marks id as finished.
func (a *Aggregator) Complete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.done[id]; seen {
		return
	}
	a.done[id] = struct{}{}
	a.emit(Percent(len(a.done), a.total))
}

// Completed returns how many distinct items have finished.
func (a *Aggregator) Completed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.done)
}

// Item returns an Update callback bound to id.
func (a *Aggregator) Item(id string) func(int) {
	return func(percent int) { a.Update(id, percent) }
}

// emit must be called with mu held.
func (a *Aggregator) emit(percent int) {
	if a.reported && percent <= a.last {
		return
	}
	a.last = percent
	a.reported = true
	a.report(percent)
}

// Span maps 0-100 progress onto [from, to] of report. Used to give each
// phase of a multi-phase operation its own share of the bar.
func Span(report func(int), from, to int) func(int) {
	if report == nil {
		return func(int) {}
	}
	return func(percent int) {
		p := clamp(percent)
		report(from + int(math.Round(float64(p*(to-from))/100)))
	}
}

// Percent returns done out of total as a whole percentage in [0, 100].
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return clamp(int(math.Round(100 * float64(done) / float64(total))))
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
