// Package sessionstats promotes the session counters breakexec.py and
// monitor.py only ever logged ad hoc (self.logger.debug("Now %d active
// BPs"), and similar) into a small struct a dashboard can chart.
package sessionstats

import (
	"sync"
	"time"

	"github.com/felias-fogg/PyAvrOCD/internal/bpreg"
	"github.com/felias-fogg/PyAvrOCD/internal/stepexec"
)

// Counters is a point-in-time snapshot of session activity.
type Counters struct {
	Active                  int
	HWAllocated             int
	SWAllocated             int
	HWBPFree                int
	Commits                 uint64
	CommitFailures          uint64
	StepsExecuted           uint64
	RangeScaffoldsBuilt     uint64
	RangeSingleStepFallback uint64
}

// Source is implemented by core.Core. Kept narrow so this package
// never needs to import the composition root.
type Source interface {
	BreakpointStats() bpreg.Stats
	StepStats() stepexec.Stats
	FreeHWBPSlots() int
}

// Snapshot reads a single Counters value from src.
func Snapshot(src Source) Counters {
	bp := src.BreakpointStats()
	st := src.StepStats()
	return Counters{
		Active:                  bp.Active,
		HWAllocated:             bp.HWAllocated,
		SWAllocated:             bp.SWAllocated,
		HWBPFree:                src.FreeHWBPSlots(),
		Commits:                 bp.Commits,
		CommitFailures:          bp.CommitFailures,
		StepsExecuted:           st.StepsExecuted,
		RangeScaffoldsBuilt:     st.RangeScaffoldsBuilt,
		RangeSingleStepFallback: st.RangeSingleStepFallback,
	}
}

// Poller periodically snapshots a Source and keeps a capped ring of
// recent samples, the same bounded-buffer shape as the teacher's
// logger package uses for its log ring (see internal/corelog).
type Poller struct {
	mu      sync.Mutex
	src     Source
	samples []Counters
	cap     int
}

// NewPoller creates a Poller retaining at most capacity samples.
func NewPoller(src Source, capacity int) *Poller {
	if capacity < 1 {
		capacity = 1
	}
	return &Poller{src: src, cap: capacity}
}

// Run polls src every interval until stop is closed. It is meant to
// be launched in its own goroutine by the dashboard command.
func (p *Poller) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.poll()
		case <-stop:
			return
		}
	}
}

func (p *Poller) poll() {
	c := Snapshot(p.src)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, c)
	if len(p.samples) > p.cap {
		p.samples = p.samples[len(p.samples)-p.cap:]
	}
}

// Latest returns the most recent sample, if any.
func (p *Poller) Latest() (Counters, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.samples) == 0 {
		return Counters{}, false
	}
	return p.samples[len(p.samples)-1], true
}

// Samples returns a copy of every retained sample, oldest first.
func (p *Poller) Samples() []Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Counters, len(p.samples))
	copy(out, p.samples)
	return out
}
