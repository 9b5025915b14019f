package algorithms

import "time"

const (
	progressStep     = 0.01
	progressInterval = 100 * time.Millisecond
)

// progressReporter forwards progress only after it advanced by at least
// one percent and the last report is older than progressInterval.
// Completion is always forwarded.
type progressReporter struct {
	fn       ProgressFunc
	last     float64
	lastTime time.Time
	now      func() time.Time
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn, last: -1, now: time.Now}
}

func (p *progressReporter) report(fraction float64) {
	if p.fn == nil {
		return
	}
	if fraction < 1 {
		if fraction-p.last < progressStep {
			return
		}
		t := p.now()
		if t.Sub(p.lastTime) < progressInterval {
			return
		}
		p.lastTime = t
	}
	p.last = fraction
	p.fn(fraction)
}
