package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/pipeline/pipelinetest"
)

// liveCounter tracks how many stages run at the same time
type liveCounter struct {
	active  int32
	maxLive int32
}

func (c *liveCounter) enter() {
	live := atomic.AddInt32(&c.active, 1)
	for {
		m := atomic.LoadInt32(&c.maxLive)
		if live <= m || atomic.CompareAndSwapInt32(&c.maxLive, m, live) {
			return
		}
	}
}

func (c *liveCounter) leave() { atomic.AddInt32(&c.active, -1) }

// fakeStage adds offset to every sample. hook runs before the work and
// may block; run numbers start at 1.
type fakeStage struct {
	id      core.StageID
	offset  float32
	hook    func(ctx context.Context, run int)
	counter *liveCounter

	runs int32
}

func (f *fakeStage) ID() core.StageID                      { return f.id }
func (f *fakeStage) Name() string                          { return f.id.String() }
func (f *fakeStage) IsBypass(core.ProcessingSettings) bool { return false }

func (f *fakeStage) Run(ctx context.Context, in *core.Image, _ core.ProcessingSettings, progress algorithms.ProgressFunc) (*core.Image, error) {
	if f.counter != nil {
		f.counter.enter()
		defer f.counter.leave()
	}

	run := int(atomic.AddInt32(&f.runs, 1))
	if f.hook != nil {
		f.hook(ctx, run)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAborted, ctx.Err())
	}
	out := in.Clone()
	for i, v := range out.Float32s() {
		out.Float32s()[i] = v + f.offset
	}
	if progress != nil {
		progress(1)
	}
	return out, nil
}

type harness struct {
	q      *pipelinetest.Queue
	s      *Scheduler
	stages [core.NumStages]*fakeStage
	live   liveCounter
	done   int
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newHarness(t *testing.T, poll time.Duration) *harness {
	t.Helper()
	h := &harness{q: pipelinetest.NewQueue()}
	var stages [core.NumStages]algorithms.Stage
	for i := range h.stages {
		h.stages[i] = &fakeStage{id: core.StageID(i), offset: float32(i + 1), counter: &h.live}
		stages[i] = h.stages[i]
	}
	h.s = NewScheduler(Config{
		Stages:       stages,
		Dispatch:     h.q.Post,
		Logger:       quietLogger(),
		PollInterval: poll,
	})
	h.s.SetCallbacks(Callbacks{OnComplete: func() { h.done++ }})
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) settle(t *testing.T, completions int) {
	t.Helper()
	h.q.DrainUntil(t, func() bool { return h.done >= completions && h.s.State() == Idle })
}

func gate() (chan struct{}, func(ctx context.Context, run int)) {
	ch := make(chan struct{})
	return ch, func(ctx context.Context, run int) {
		if run == 1 {
			select {
			case <-ch:
			case <-ctx.Done():
			}
		}
	}
}

func TestFullRun(t *testing.T) {
	h := newHarness(t, NoPolling)
	h.s.SetInput(core.NewMono32F(4, 4, 0))
	h.settle(t, 1)

	out, ok := h.s.Output(core.StageToneCurve)
	if !ok {
		t.Fatal("final output not valid")
	}
	if got := out.At(2, 2); got != 6 {
		t.Errorf("final sample = %v, want 6", got)
	}
	stats := h.s.Stats()
	for _, st := range core.Stages {
		if stats.Completions[st] != 1 {
			t.Errorf("%s completions = %d, want 1", st, stats.Completions[st])
		}
	}
}

func TestInvalidationRecomputesOnlyLaterStages(t *testing.T) {
	tests := []struct {
		changed core.StageID
		want    [core.NumStages]int
	}{
		{core.StageSharpening, [core.NumStages]int{2, 2, 2}},
		{core.StageUnsharpMask, [core.NumStages]int{1, 2, 2}},
		{core.StageToneCurve, [core.NumStages]int{1, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.changed.String(), func(t *testing.T) {
			h := newHarness(t, NoPolling)
			h.s.SetInput(core.NewMono32F(4, 4, 0))
			h.settle(t, 1)
			before, _ := h.s.Output(core.StageSharpening)

			h.s.SettingsChanged(tt.changed, core.DefaultSettings())
			for st := tt.changed; st < core.NumStages; st++ {
				if st != tt.changed && h.s.IsValid(st) {
					t.Errorf("%s still valid after change", st)
				}
			}
			h.settle(t, 2)

			if got := h.s.Stats().Completions; got != tt.want {
				t.Errorf("completions = %v, want %v", got, tt.want)
			}
			after, _ := h.s.Output(core.StageSharpening)
			if tt.changed > core.StageSharpening && after != before {
				t.Error("sharpening output was replaced")
			}
		})
	}
}

func TestChangeWhileRunningRestarts(t *testing.T) {
	h := newHarness(t, NoPolling)
	release, hook := gate()
	h.stages[core.StageSharpening].hook = hook
	defer close(release)

	h.s.SetInput(core.NewMono32F(4, 4, 0))
	if h.s.RunningStage() != core.StageSharpening {
		t.Fatalf("running stage = %s", h.s.RunningStage())
	}

	h.s.SettingsChanged(core.StageSharpening, core.DefaultSettings())
	if h.s.State() != PendingRestart {
		t.Fatalf("state = %s, want %s", h.s.State(), PendingRestart)
	}
	// a later request while pending must not start anything
	h.s.RequestProcessing(core.StageToneCurve)

	h.settle(t, 1)
	stats := h.s.Stats()
	if stats.Launches[core.StageSharpening] != 2 || stats.Completions[core.StageSharpening] != 1 {
		t.Errorf("sharpening launches/completions = %d/%d, want 2/1",
			stats.Launches[core.StageSharpening], stats.Completions[core.StageSharpening])
	}
	if stats.Aborts != 1 {
		t.Errorf("aborts = %d, want 1", stats.Aborts)
	}
}

func TestLaterStageChangeDoesNotCancel(t *testing.T) {
	h := newHarness(t, NoPolling)
	release, hook := gate()
	h.stages[core.StageSharpening].hook = hook

	h.s.SetInput(core.NewMono32F(4, 4, 0))
	h.s.SettingsChanged(core.StageToneCurve, core.DefaultSettings())
	if h.s.State() != Running {
		t.Fatalf("state = %s, want %s", h.s.State(), Running)
	}
	close(release)
	h.settle(t, 1)

	if got := h.s.Stats().Launches; got != [core.NumStages]int{1, 1, 1} {
		t.Errorf("launches = %v", got)
	}
}

func (h *harness) outputs() [core.NumStages]Output {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.outputs
}

func TestStaleCompletionIsDropped(t *testing.T) {
	h := newHarness(t, NoPolling)
	release := make(chan struct{})
	second := make(chan struct{})
	sharp := h.stages[core.StageSharpening]
	// the first run ignores cancellation until released, the second
	// waits so only the stale notification is queued
	sharp.hook = func(ctx context.Context, run int) {
		switch run {
		case 1:
			<-release
		case 2:
			<-second
		}
	}
	sharp.offset = 0

	h.s.SetInput(core.NewMono32F(4, 4, 0))
	first := h.s.worker

	h.s.SettingsChanged(core.StageSharpening, core.DefaultSettings())
	close(release)
	<-first.done

	// the poll sees the exited worker and launches before its notification
	h.s.pollWorker()
	if h.s.worker == nil || h.s.worker.generation == first.generation {
		t.Fatal("poll did not launch a new generation")
	}
	before := h.outputs()
	current := h.s.worker

	h.q.DrainUntil(t, func() bool { return h.s.Stats().Stale == 1 })
	if after := h.outputs(); after != before {
		t.Errorf("stale notification changed outputs: %v -> %v", before, after)
	}
	if h.s.worker != current || h.s.State() != Running {
		t.Errorf("stale notification disturbed the running worker (state %s)", h.s.State())
	}

	close(second)
	h.settle(t, 1)
	stats := h.s.Stats()
	if stats.Completions[core.StageSharpening] != 1 {
		t.Errorf("sharpening completions = %d, want 1", stats.Completions[core.StageSharpening])
	}
}

func TestReadOutputOfRunningStagePanics(t *testing.T) {
	h := newHarness(t, NoPolling)
	release, hook := gate()
	h.stages[core.StageUnsharpMask].hook = hook
	defer close(release)

	h.s.SetInput(core.NewMono32F(4, 4, 0))
	h.q.DrainUntil(t, func() bool { return h.s.RunningStage() == core.StageUnsharpMask })

	if _, ok := h.s.ReadOutput(core.StageSharpening); !ok {
		t.Error("finished sharpening output not readable")
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, core.ErrInternalInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	h.s.ReadOutput(core.StageUnsharpMask)
}

func TestPollIntervalDefault(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"unset", 0, DefaultPollInterval},
		{"explicit", 5 * time.Millisecond, 5 * time.Millisecond},
		{"disabled", NoPolling, NoPolling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.in)
			if h.s.pollInterval != tt.want {
				t.Errorf("poll interval = %v, want %v", h.s.pollInterval, tt.want)
			}
		})
	}
}

func TestAtMostOneWorker(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	for _, fs := range h.stages {
		fs.hook = func(ctx context.Context, run int) {
			select {
			case <-time.After(2 * time.Millisecond):
			case <-ctx.Done():
			}
		}
	}

	h.s.SetInput(core.NewMono32F(8, 8, 0))
	for i := 0; i < 50; i++ {
		h.s.SettingsChanged(core.StageID(i%core.NumStages), core.DefaultSettings())
		if i%7 == 0 {
			h.s.SetInput(core.NewMono32F(8, 8, float32(i)))
		}
		h.q.RunPending()
		time.Sleep(500 * time.Microsecond)
	}
	h.settle(t, 1)

	if m := atomic.LoadInt32(&h.live.maxLive); m != 1 {
		t.Errorf("up to %d stages ran concurrently, want 1", m)
	}
	if a := atomic.LoadInt32(&h.live.active); a != 0 {
		t.Errorf("%d workers still active", a)
	}
	for _, st := range core.Stages {
		if !h.s.IsValid(st) {
			t.Errorf("%s not valid after settling", st)
		}
	}
}

func TestLaunchWhileWorkerAlivePanics(t *testing.T) {
	h := newHarness(t, NoPolling)
	release, hook := gate()
	h.stages[core.StageSharpening].hook = hook
	defer close(release)

	h.s.SetInput(core.NewMono32F(4, 4, 0))

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, core.ErrInternalInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.startWorkerLocked(core.StageSharpening)
}

func TestStageErrorGoesIdle(t *testing.T) {
	h := newHarness(t, NoPolling)
	failing := &failingStage{fakeStage{id: core.StageUnsharpMask}}
	h.s.stages[core.StageUnsharpMask] = failing

	var gotErr error
	h.s.SetCallbacks(Callbacks{OnError: func(stage core.StageID, err error) { gotErr = err }})
	h.s.SetInput(core.NewMono32F(4, 4, 0))
	h.q.DrainUntil(t, func() bool { return gotErr != nil })

	if h.s.State() != Idle {
		t.Errorf("state = %s, want idle", h.s.State())
	}
	if !h.s.IsValid(core.StageSharpening) || h.s.IsValid(core.StageUnsharpMask) {
		t.Error("unexpected validity after failure")
	}
}

type failingStage struct{ fakeStage }

func (f *failingStage) Run(context.Context, *core.Image, core.ProcessingSettings, algorithms.ProgressFunc) (*core.Image, error) {
	return nil, errors.New("kernel failed")
}

func TestEndToEndWithRealStages(t *testing.T) {
	q := pipelinetest.NewQueue()
	s := NewScheduler(Config{
		Stages:   algorithms.Pipeline(),
		Dispatch: q.Post,
		Logger:   quietLogger(),
	})
	defer s.Close()
	complete := 0
	s.SetCallbacks(Callbacks{OnComplete: func() { complete++ }})

	settings := core.DefaultSettings()
	settings.LucyRichardson.Iterations = 0
	settings.UnsharpMask.Adaptive = false
	settings.UnsharpMask.AmountMax = 1
	s.UpdateSettings(settings)

	input := core.NewMono32F(100, 100, 0.5)
	s.SetInput(input)
	q.DrainUntil(t, func() bool { return complete == 1 && s.State() == Idle })

	out, ok := s.Output(core.StageToneCurve)
	if !ok || !out.Equal(input) {
		t.Fatal("identity pipeline changed the image")
	}

	settings.ToneCurve = *core.NewGammaCurve(2)
	s.SettingsChanged(core.StageToneCurve, settings)
	q.DrainUntil(t, func() bool { return complete == 2 && s.State() == Idle })

	out, _ = s.Output(core.StageToneCurve)
	for _, v := range out.Float32s() {
		if math.Abs(float64(v)-0.25) > 1e-3 {
			t.Fatalf("sample = %v, want 0.25", v)
		}
	}
	stats := s.Stats()
	if stats.Completions[core.StageSharpening] != 1 || stats.Completions[core.StageUnsharpMask] != 1 {
		t.Errorf("earlier stages recomputed: %v", stats.Completions)
	}
	if !s.IsValid(core.StageSharpening) || !s.IsValid(core.StageUnsharpMask) {
		t.Error("earlier stages invalidated")
	}
}
