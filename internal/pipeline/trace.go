// Stage run bookkeeping: recompute counters, timings and recent events
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
)

const maxTraceEvents = 64

// Event is one entry of the scheduler trace
type Event struct {
	Timestamp  time.Time
	Event      string // "launch", "complete", "abort", "stale", "error"
	Stage      core.StageID
	Generation uint64
	Duration   time.Duration
	Error      string
}

// Stats summarizes stage runs since the scheduler was created
type Stats struct {
	Launches    [core.NumStages]int
	Completions [core.NumStages]int
	Aborts      int
	Stale       int
	Errors      int
	LastRun     [core.NumStages]time.Duration
}

// Trace records what the scheduler did. It is safe for concurrent use.
type Trace struct {
	mu     sync.Mutex
	logger *logrus.Logger
	stats  Stats
	events []Event
	start  map[uint64]time.Time
}

func NewTrace(logger *logrus.Logger) *Trace {
	return &Trace{
		logger: logger,
		events: make([]Event, 0, maxTraceEvents),
		start:  make(map[uint64]time.Time),
	}
}

func (tr *Trace) record(ev Event) {
	if len(tr.events) == maxTraceEvents {
		copy(tr.events, tr.events[1:])
		tr.events = tr.events[:maxTraceEvents-1]
	}
	tr.events = append(tr.events, ev)

	fields := logrus.Fields{
		"event":      ev.Event,
		"stage":      ev.Stage.String(),
		"generation": ev.Generation,
	}
	if ev.Duration > 0 {
		fields["duration_ms"] = ev.Duration.Milliseconds()
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
		tr.logger.WithFields(fields).Error("PIPELINE: stage failed")
		return
	}
	tr.logger.WithFields(fields).Debug("PIPELINE: " + ev.Event)
}

func (tr *Trace) Launch(stage core.StageID, gen uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.stats.Launches[stage]++
	now := time.Now()
	tr.start[gen] = now
	tr.record(Event{Timestamp: now, Event: "launch", Stage: stage, Generation: gen})
}

func (tr *Trace) finish(gen uint64) time.Duration {
	started, ok := tr.start[gen]
	if !ok {
		return 0
	}
	delete(tr.start, gen)
	return time.Since(started)
}

func (tr *Trace) Complete(stage core.StageID, gen uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	d := tr.finish(gen)
	tr.stats.Completions[stage]++
	tr.stats.LastRun[stage] = d
	tr.record(Event{Timestamp: time.Now(), Event: "complete", Stage: stage, Generation: gen, Duration: d})
}

func (tr *Trace) Abort(stage core.StageID, gen uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	d := tr.finish(gen)
	tr.stats.Aborts++
	tr.record(Event{Timestamp: time.Now(), Event: "abort", Stage: stage, Generation: gen, Duration: d})
}

func (tr *Trace) Stale(stage core.StageID, gen uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.finish(gen)
	tr.stats.Stale++
	tr.record(Event{Timestamp: time.Now(), Event: "stale", Stage: stage, Generation: gen})
}

func (tr *Trace) Error(stage core.StageID, gen uint64, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	d := tr.finish(gen)
	tr.stats.Errors++
	tr.record(Event{Timestamp: time.Now(), Event: "error", Stage: stage, Generation: gen, Duration: d, Error: err.Error()})
}

func (tr *Trace) Stats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.stats
}

// Events returns the most recent events, oldest first
func (tr *Trace) Events() []Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Event(nil), tr.events...)
}

// Summary formats the counters for the status bar and debug output
func (s Stats) Summary() string {
	return fmt.Sprintf("runs %d/%d/%d, aborted %d, stale %d, failed %d",
		s.Completions[core.StageSharpening],
		s.Completions[core.StageUnsharpMask],
		s.Completions[core.StageToneCurve],
		s.Aborts, s.Stale, s.Errors)
}
