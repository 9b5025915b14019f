package session

import (
	"context"
	"errors"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/backend"
	"astro-postprocessor/internal/config"
	"astro-postprocessor/internal/core"
	imgio "astro-postprocessor/internal/io"
	"astro-postprocessor/internal/pipeline/pipelinetest"
)

type harness struct {
	q       *pipelinetest.Queue
	s       *Session
	store   *config.Store
	reports []Report
	saved   []string
	errs    []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStages(t, nil)
}

func newHarnessWithStages(t *testing.T, stages *[core.NumStages]algorithms.Stage) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := &harness{
		q:     pipelinetest.NewQueue(),
		store: config.New(test.NewTempApp(t).Preferences()),
	}
	s, err := New(Config{
		Logger:   logger,
		Dispatch: h.q.Post,
		Backend:  backend.KindCPU,
		Store:    h.store,
		Listener: Listener{
			OnProcessingDone: func(r Report) { h.reports = append(h.reports, r) },
			OnSaved:          func(path string) { h.saved = append(h.saved, path) },
			OnError:          func(err error) { h.errs = append(h.errs, err) },
		},
		BackendDeps: backend.Deps{Stages: stages, RescaleDelay: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	h.s = s

	settings := core.DefaultSettings()
	settings.LucyRichardson.Iterations = 0
	settings.ToneCurve = *core.NewGammaCurve(2)
	if err := s.SetSettings(settings); err != nil {
		t.Fatal(err)
	}
	s.Resize(image.Pt(40, 30))
	return h
}

func (h *harness) waitReports(t *testing.T, n int) Report {
	t.Helper()
	h.q.DrainUntil(t, func() bool { return len(h.reports) >= n })
	return h.reports[n-1]
}

func (h *harness) openFlat(t *testing.T, value float32) {
	t.Helper()
	if err := h.s.OpenImage(core.NewMono32F(40, 30, value), core.Mono32F, "flat.tif"); err != nil {
		t.Fatal(err)
	}
}

func sampleOf(t *testing.T, s *Session) float64 {
	t.Helper()
	out, ok := s.Backend().ProcessedOutput()
	if !ok {
		t.Fatal("no processed output")
	}
	return float64(out.At(0, 0))
}

func TestOpenProcessesDefaultSelection(t *testing.T) {
	h := newHarness(t)
	h.openFlat(t, 0.5)

	if got, want := h.s.View().Selection(), core.DefaultSelection(40, 30); got != want {
		t.Fatalf("selection = %v, want %v", got, want)
	}
	r := h.waitReports(t, 1)
	if r.Histogram.Total != 48 {
		t.Errorf("histogram total = %d, want 48", r.Histogram.Total)
	}
	if _, ok := r.Quality["mse"]; !ok {
		t.Errorf("quality report %v lacks mse", r.Quality)
	}
	if got := sampleOf(t, h.s); math.Abs(got-0.25) > 1e-3 {
		t.Errorf("output sample = %v, want 0.25", got)
	}
}

func TestToneCurveChangeRecomputesLastStageOnly(t *testing.T) {
	h := newHarness(t)
	h.openFlat(t, 0.5)
	h.waitReports(t, 1)
	before := h.s.Stats()

	if err := h.s.SetToneCurve(*core.NewToneCurve()); err != nil {
		t.Fatal(err)
	}
	h.waitReports(t, 2)

	after := h.s.Stats()
	if after.Launches[core.StageSharpening] != before.Launches[core.StageSharpening] {
		t.Error("sharpening relaunched for a tone curve change")
	}
	if after.Launches[core.StageToneCurve] != before.Launches[core.StageToneCurve]+1 {
		t.Errorf("tone curve launches %d -> %d", before.Launches[core.StageToneCurve], after.Launches[core.StageToneCurve])
	}
	if got := sampleOf(t, h.s); math.Abs(got-0.5) > 1e-3 {
		t.Errorf("output sample = %v, want 0.5", got)
	}
	if !h.s.SettingsModified() {
		t.Error("settings not marked modified")
	}
}

func TestInvalidSettingsRejected(t *testing.T) {
	h := newHarness(t)
	prev := h.s.Settings()
	lr := prev.LucyRichardson
	lr.Sigma = 0
	if err := h.s.SetLucyRichardson(lr); err == nil {
		t.Fatal("zero sigma accepted")
	}
	if h.s.Settings().LucyRichardson != prev.LucyRichardson {
		t.Error("rejected settings were applied")
	}
}

func TestNormalizationChangeReloadsSource(t *testing.T) {
	h := newHarness(t)
	img := core.NewMono32F(40, 30, 0.2)
	img.Set(0, 0, 0.6)
	if err := h.s.OpenImage(img, core.Mono16, "ramp.tif"); err != nil {
		t.Fatal(err)
	}
	h.waitReports(t, 1)

	if err := h.s.SetNormalization(core.Normalization{Enabled: true, Min: 0, Max: 1}); err != nil {
		t.Fatal(err)
	}
	h.waitReports(t, 2)

	lo, hi := h.s.Document().Source().MinMax()
	if lo != 0 || hi != 1 {
		t.Errorf("normalized source range = [%v, %v], want [0, 1]", lo, hi)
	}
	if h.s.Document().Metadata().OriginalFormat != core.Mono16 {
		t.Error("original format lost on renormalization")
	}
	// 0.2 maps to 0 and squares to 0
	if got := sampleOf(t, h.s); got > 1e-3 {
		t.Errorf("output sample = %v, want 0", got)
	}
}

func TestSaveWaitsForWholeImage(t *testing.T) {
	h := newHarness(t)
	h.openFlat(t, 0.5)
	h.waitReports(t, 1)

	path := filepath.Join(t.TempDir(), "out.png")
	if err := h.s.SaveOutput(path, imgio.PNG8); err != nil {
		t.Fatal(err)
	}
	if !h.s.SavePending() {
		t.Fatal("save of a partial selection did not wait")
	}
	if h.s.View().Selection() != image.Rect(0, 0, 40, 30) {
		t.Errorf("selection = %v, want the whole image", h.s.View().Selection())
	}
	h.q.DrainUntil(t, func() bool { return len(h.saved) > 0 || len(h.errs) > 0 })
	if len(h.errs) > 0 {
		t.Fatal(h.errs[0])
	}
	if h.saved[0] != path || h.s.SavePending() {
		t.Errorf("saved %v, pending %v", h.saved, h.s.SavePending())
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
	if h.store.LastSaveDir() != filepath.Dir(path) {
		t.Errorf("last save dir = %q", h.store.LastSaveDir())
	}
}

func TestSaveUsesExactToneCurve(t *testing.T) {
	h := newHarness(t)
	settings := h.s.Settings()
	settings.ToneCurve = *core.NewGammaCurve(0.2)
	if err := h.s.SetSettings(settings); err != nil {
		t.Fatal(err)
	}
	const dark = 1e-6
	h.openFlat(t, dark)
	h.s.SelectAndProcessAll()
	h.waitReports(t, 2)

	path := filepath.Join(t.TempDir(), "out.tif")
	if err := h.s.SaveOutput(path, imgio.TIFF32F); err != nil {
		t.Fatal(err)
	}
	if len(h.saved) != 1 {
		t.Fatalf("saved %v, want an immediate save", h.saved)
	}
	img, err := imgio.LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Pow(dark, 0.2)
	if got := float64(img.At(0, 0)); math.Abs(got-want) > 1e-4 {
		t.Errorf("saved sample = %v, want %v", got, want)
	}
}

// failOnRun fails the given run of the wrapped stage
type failOnRun struct {
	algorithms.Stage
	fail int
	runs int
}

func (f *failOnRun) Run(ctx context.Context, in *core.Image, s core.ProcessingSettings, progress algorithms.ProgressFunc) (*core.Image, error) {
	f.runs++
	if f.runs == f.fail {
		return nil, errors.New("kernel failed")
	}
	return f.Stage.Run(ctx, in, s, progress)
}

func TestSaveRestartsAfterStageError(t *testing.T) {
	stages := algorithms.Pipeline()
	stages[core.StageUnsharpMask] = &failOnRun{Stage: stages[core.StageUnsharpMask], fail: 2}
	h := newHarnessWithStages(t, &stages)
	h.openFlat(t, 0.5)
	h.waitReports(t, 1)

	h.s.SelectAndProcessAll()
	h.q.DrainUntil(t, func() bool { return len(h.errs) == 1 && h.s.Stats().Errors == 1 })

	path := filepath.Join(t.TempDir(), "out.png")
	if err := h.s.SaveOutput(path, imgio.PNG8); err != nil {
		t.Fatal(err)
	}
	h.q.DrainUntil(t, func() bool { return len(h.saved) > 0 })
	if h.saved[0] != path || h.s.SavePending() {
		t.Errorf("saved %v, pending %v", h.saved, h.s.SavePending())
	}
}

func TestSaveWithoutImage(t *testing.T) {
	h := newHarness(t)
	if err := h.s.SaveOutput(filepath.Join(t.TempDir(), "x.png"), imgio.PNG8); err == nil {
		t.Error("save without an image succeeded")
	}
}

func TestSettingsFiles(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "preset.xml")
	if err := h.s.SaveSettings(path); err != nil {
		t.Fatal(err)
	}
	if h.s.SettingsModified() || h.s.SettingsPath() != path {
		t.Errorf("after save: modified %v path %q", h.s.SettingsModified(), h.s.SettingsPath())
	}

	if err := h.s.SetToneCurve(*core.NewToneCurve()); err != nil {
		t.Fatal(err)
	}
	if err := h.s.LoadSettings(path); err != nil {
		t.Fatal(err)
	}
	if tc := h.s.Settings().ToneCurve; !tc.GammaMode || tc.Gamma != 2 {
		t.Errorf("loaded tone curve = %+v", tc)
	}
	if mru := h.store.MRU(); len(mru) == 0 || mru[0] != path {
		t.Errorf("mru = %v", mru)
	}

	missing := filepath.Join(t.TempDir(), "missing.xml")
	h.store.AddMRU(missing)
	err := h.s.LoadSettings(missing)
	var loadErr *core.SettingsLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want a settings load error", err)
	}
	for _, p := range h.store.MRU() {
		if p == missing {
			t.Error("unreadable file kept in the mru list")
		}
	}
	if tc := h.s.Settings().ToneCurve; !tc.GammaMode {
		t.Error("failed load replaced the settings")
	}
}

func TestZoomAndFit(t *testing.T) {
	h := newHarness(t)
	h.openFlat(t, 0.5)
	h.s.ZoomIn()
	if h.s.View().Zoom() <= 1 {
		t.Errorf("zoom after ZoomIn = %v", h.s.View().Zoom())
	}
	h.s.SetFitInWindow(true)
	if !h.store.FitInWindow() || h.s.View().Zoom() != 1 {
		t.Errorf("fit: stored %v zoom %v", h.store.FitInWindow(), h.s.View().Zoom())
	}
}
