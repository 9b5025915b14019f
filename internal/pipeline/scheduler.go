// internal/pipeline/scheduler.go
// Staged, cancellable pipeline with incremental invalidation
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/core"
)

// State of the scheduler
type State int

const (
	Idle State = iota
	Running
	// PendingRestart means the running worker was cancelled and a new
	// stage starts as soon as it has exited
	PendingRestart
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case PendingRestart:
		return "pending_restart"
	}
	return "unknown"
}

// Dispatcher runs fn on the controlling thread. Calls must be executed in
// the order they were made.
type Dispatcher func(fn func())

// Output is the result of one stage for the current selection
type Output struct {
	Image *core.Image
	Valid bool
}

// Callbacks are invoked on the controlling thread
type Callbacks struct {
	OnProgress       func(stage core.StageID, fraction float64)
	OnStageCompleted func(stage core.StageID)
	OnComplete       func()
	OnError          func(stage core.StageID, err error)
}

// DefaultPollInterval is how often a pending restart checks whether the
// cancelled worker has exited
const DefaultPollInterval = 20 * time.Millisecond

// NoPolling turns polling off; a pending restart then waits for the
// cancelled worker's own notification
const NoPolling time.Duration = -1

type worker struct {
	generation uint64
	stage      core.StageID
	done       chan struct{}
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Scheduler runs the three stages in order on a background worker, one
// stage at a time. All methods except Stats and Trace must be called on
// the controlling thread; notifications come back through the Dispatcher.
type Scheduler struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	stages    [core.NumStages]algorithms.Stage
	dispatch  Dispatcher
	trace     *Trace
	callbacks Callbacks

	pollInterval time.Duration

	input    *core.Image
	settings core.ProcessingSettings
	outputs  [core.NumStages]Output

	state      State
	running    core.StageID
	pending    core.StageID
	generation uint64
	worker     *worker
	cancel     context.CancelFunc
	polling    bool
}

// Config holds the collaborators of a Scheduler
type Config struct {
	Stages   [core.NumStages]algorithms.Stage
	Dispatch Dispatcher
	Logger   *logrus.Logger
	// PollInterval defaults to DefaultPollInterval; NoPolling disables it
	PollInterval time.Duration
}

func NewScheduler(cfg Config) *Scheduler {
	for i, st := range cfg.Stages {
		if st == nil || st.ID() != core.StageID(i) {
			core.Invariant("stage %d missing or out of order", i)
		}
	}
	if cfg.Dispatch == nil {
		core.Invariant("scheduler needs a dispatcher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = DefaultPollInterval
	}
	return &Scheduler{
		logger:       logger,
		stages:       cfg.Stages,
		dispatch:     cfg.Dispatch,
		trace:        NewTrace(logger),
		pollInterval: poll,
		settings:     core.DefaultSettings(),
		running:      core.StageNone,
		pending:      core.StageNone,
	}
}

func (s *Scheduler) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = cb
}

func (s *Scheduler) Trace() *Trace { return s.trace }

func (s *Scheduler) Stats() Stats { return s.trace.Stats() }

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunningStage returns the stage being computed or StageNone
func (s *Scheduler) RunningStage() core.StageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return core.StageNone
	}
	return s.running
}

// Output returns the result of stage if it is valid
func (s *Scheduler) Output(stage core.StageID) (*core.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.outputs[stage]
	if !o.Valid {
		return nil, false
	}
	return o.Image, true
}

// ReadOutput is Output for callers that consume a finished result. Reading
// the stage a worker is writing is an invariant violation.
func (s *Scheduler) ReadOutput(stage core.StageID) (*core.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle && stage == s.running {
		core.Invariant("reading output of %s while it is being computed", stage)
	}
	o := s.outputs[stage]
	if !o.Valid {
		return nil, false
	}
	return o.Image, true
}

// IsValid reports whether the output of stage is up to date
func (s *Scheduler) IsValid(stage core.StageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[stage].Valid
}

// Input returns the current selection's input image
func (s *Scheduler) Input() *core.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// LatestValid returns the output of the last valid stage not later than
// upTo, falling back to the input
func (s *Scheduler) LatestValid(upTo core.StageID) *core.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	for st := upTo; st >= core.StageSharpening; st-- {
		if s.outputs[st].Valid {
			return s.outputs[st].Image
		}
	}
	return s.input
}

// Settings returns a copy of the current settings
func (s *Scheduler) Settings() core.ProcessingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// SetInput installs the input for a new selection. All outputs are
// invalidated and processing restarts from the first stage.
func (s *Scheduler) SetInput(input *core.Image) {
	if input == nil || input.Format() != core.Mono32F {
		core.Invariant("scheduler input must be a %s image", core.Mono32F)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = input
	s.invalidateLocked(core.StageSharpening)
	for i := range s.outputs {
		s.outputs[i].Image = nil
	}
	s.requestLocked(core.StageSharpening)
}

// SettingsChanged replaces the settings and recomputes from stage on
func (s *Scheduler) SettingsChanged(stage core.StageID, settings core.ProcessingSettings) {
	if !stage.Valid() {
		core.Invariant("settings changed for invalid stage %d", int(stage))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings.Clone()
	s.invalidateLocked(stage)
	if s.input != nil {
		s.requestLocked(stage)
	}
}

// UpdateSettings stores settings without triggering processing
func (s *Scheduler) UpdateSettings(settings core.ProcessingSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
}

// RequestProcessing starts computing from stage, or from the earliest
// preceding stage whose output is missing
func (s *Scheduler) RequestProcessing(stage core.StageID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		s.requestLocked(stage)
	}
}

// Reset drops the input and all outputs, cancelling any running stage
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.input = nil
	s.invalidateLocked(core.StageSharpening)
	for i := range s.outputs {
		s.outputs[i].Image = nil
	}
}

// Close cancels the running stage and waits for the worker to exit
func (s *Scheduler) Close() {
	s.mu.Lock()
	w := s.worker
	s.stopLocked()
	s.mu.Unlock()

	if w != nil {
		<-w.done
	}
}

// stopLocked cancels the worker and makes its pending notifications stale
func (s *Scheduler) stopLocked() {
	s.cancelLocked()
	s.generation++
	s.state = Idle
	s.running = core.StageNone
	s.pending = core.StageNone
}

func (s *Scheduler) invalidateLocked(from core.StageID) {
	for st := from; st < core.NumStages; st++ {
		s.outputs[st].Valid = false
	}
}

func (s *Scheduler) resolveLocked(stage core.StageID) core.StageID {
	for stage > core.StageSharpening && !s.outputs[stage-1].Valid {
		stage--
	}
	return stage
}

func (s *Scheduler) requestLocked(requested core.StageID) {
	stage := s.resolveLocked(requested)

	switch s.state {
	case Idle:
		s.launchLocked(stage)

	case Running:
		if requested > s.running {
			// the chain reaches stage once the running one completes
			return
		}
		s.logger.WithFields(logrus.Fields{
			"running":   s.running.String(),
			"requested": stage.String(),
		}).Debug("PIPELINE: cancelling running stage")
		s.cancelLocked()
		s.state = PendingRestart
		s.pending = stage
		s.schedulePollLocked()

	case PendingRestart:
		if stage < s.pending {
			s.pending = stage
		}
	}
}

func (s *Scheduler) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// launchLocked starts stage unless a previous worker is still alive, in
// which case the launch is deferred until it exits
func (s *Scheduler) launchLocked(stage core.StageID) {
	if s.worker != nil {
		if !s.worker.exited() {
			s.cancelLocked()
			s.state = PendingRestart
			s.pending = stage
			s.schedulePollLocked()
			return
		}
		s.worker = nil
	}
	s.startWorkerLocked(stage)
}

func (s *Scheduler) startWorkerLocked(stage core.StageID) {
	if s.worker != nil {
		core.Invariant("launching %s while worker of generation %d is alive", stage, s.worker.generation)
	}

	var in *core.Image
	if stage == core.StageSharpening {
		in = s.input
	} else {
		prev := s.outputs[stage-1]
		if !prev.Valid {
			core.Invariant("launching %s without valid %s output", stage, stage-1)
		}
		in = prev.Image
	}
	if in == nil || in.Size() != s.input.Size() {
		core.Invariant("input of %s does not match the selection size %v", stage, s.input.Size())
	}

	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{generation: s.generation, stage: stage, done: make(chan struct{})}
	s.worker = w
	s.cancel = cancel
	s.state = Running
	s.running = stage
	s.pending = core.StageNone
	s.outputs[stage] = Output{}

	st := s.stages[stage]
	settings := s.settings.Clone()
	dispatch := s.dispatch
	s.trace.Launch(stage, w.generation)

	go func() {
		defer cancel()
		progress := func(fraction float64) {
			dispatch(func() { s.workerProgress(w, fraction) })
		}
		out, err := st.Run(ctx, in, settings, progress)
		close(w.done)
		dispatch(func() { s.workerFinished(w, out, err) })
	}()
}

func (s *Scheduler) schedulePollLocked() {
	if s.pollInterval <= 0 || s.polling {
		return
	}
	s.polling = true
	time.AfterFunc(s.pollInterval, func() {
		s.dispatch(s.pollWorker)
	})
}

// pollWorker launches the pending stage once the cancelled worker exited
func (s *Scheduler) pollWorker() {
	s.mu.Lock()
	s.polling = false
	if s.state != PendingRestart {
		s.mu.Unlock()
		return
	}
	if s.worker != nil && !s.worker.exited() {
		s.schedulePollLocked()
		s.mu.Unlock()
		return
	}
	s.worker = nil
	s.startWorkerLocked(s.resolveLocked(s.pending))
	s.mu.Unlock()
}

func (s *Scheduler) workerProgress(w *worker, fraction float64) {
	s.mu.Lock()
	current := w.generation == s.generation && s.state == Running
	cb := s.callbacks.OnProgress
	s.mu.Unlock()

	if current && cb != nil {
		cb(w.stage, fraction)
	}
}

func (s *Scheduler) workerFinished(w *worker, out *core.Image, err error) {
	var notify []func()
	s.mu.Lock()
	if s.worker == w {
		s.worker = nil
	}

	switch {
	case w.generation != s.generation:
		s.trace.Stale(w.stage, w.generation)
		s.launchPendingLocked()

	case s.state == PendingRestart:
		if err != nil {
			s.trace.Abort(w.stage, w.generation)
		} else {
			s.trace.Stale(w.stage, w.generation)
		}
		s.launchPendingLocked()

	case errors.Is(err, core.ErrAborted):
		s.trace.Abort(w.stage, w.generation)
		s.state = Idle
		s.running = core.StageNone

	case err != nil:
		s.trace.Error(w.stage, w.generation, err)
		s.state = Idle
		s.running = core.StageNone
		s.cancel = nil
		if cb := s.callbacks.OnError; cb != nil {
			stage := w.stage
			notify = append(notify, func() { cb(stage, err) })
		}

	default:
		if out == nil || out.Size() != s.input.Size() {
			core.Invariant("%s produced output not matching the selection size", w.stage)
		}
		s.trace.Complete(w.stage, w.generation)
		s.outputs[w.stage] = Output{Image: out, Valid: true}
		s.cancel = nil
		if cb := s.callbacks.OnStageCompleted; cb != nil {
			stage := w.stage
			notify = append(notify, func() { cb(stage) })
		}
		if next, ok := w.stage.Next(); ok {
			s.state = Idle
			s.launchLocked(next)
		} else {
			s.state = Idle
			s.running = core.StageNone
			if cb := s.callbacks.OnComplete; cb != nil {
				notify = append(notify, cb)
			}
		}
	}
	s.mu.Unlock()
	run(notify)
}

func (s *Scheduler) launchPendingLocked() {
	if s.state != PendingRestart || s.worker != nil {
		return
	}
	s.startWorkerLocked(s.resolveLocked(s.pending))
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
