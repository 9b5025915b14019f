// Package batch runs the processing stages over whole image files without
// the interactive scheduler
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/io"
)

// Result describes the outcome for one input file
type Result struct {
	Input    string
	Output   string
	Duration time.Duration
	Err      error
}

// Options tune a batch run
type Options struct {
	Logger *logrus.Logger
	// Workers is the number of files processed in parallel, at least one
	Workers int
	// OnFile is called after each file, from the worker goroutine
	OnFile func(done, total int, r Result)
}

// Processor applies one settings set to many files
type Processor struct {
	logger   *logrus.Logger
	loader   *io.ImageLoader
	stages   [core.NumStages]algorithms.Stage
	settings core.ProcessingSettings
	outDir   string
	format   io.OutputFormat
}

func NewProcessor(settings core.ProcessingSettings, outDir string, format io.OutputFormat, logger *logrus.Logger) (*Processor, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	stages := algorithms.Pipeline()
	// saved files get the exact curve instead of the preview lookup table
	stages[core.StageToneCurve] = &algorithms.ToneCurveStage{Precise: true}
	return &Processor{
		logger:   logger,
		loader:   io.NewImageLoader(logger),
		stages:   stages,
		settings: settings.Clone(),
		outDir:   outDir,
		format:   format,
	}, nil
}

// OutputPath is where the result for input is written
func (p *Processor) OutputPath(input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + "_out" + p.format.Extension()
	return filepath.Join(p.outDir, name)
}

// Run processes an already loaded image through all stages
func (p *Processor) Run(ctx context.Context, img *core.Image) (*core.Image, error) {
	if p.settings.Normalization.Enabled {
		img = img.Clone()
		core.Normalize(img, p.settings.Normalization.Min, p.settings.Normalization.Max)
	}
	for _, stage := range p.stages {
		out, err := stage.Run(ctx, img, p.settings, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}
		img = out
	}
	return img, nil
}

// File loads, processes and saves a single file
func (p *Processor) File(ctx context.Context, input string) Result {
	start := time.Now()
	r := Result{Input: input, Output: p.OutputPath(input)}
	img, _, err := p.loader.LoadImage(input)
	if err == nil {
		var out *core.Image
		if out, err = p.Run(ctx, img); err == nil {
			err = p.loader.SaveImage(out, r.Output, p.format)
		}
	}
	r.Err = err
	r.Duration = time.Since(start)
	return r
}

// Process runs the stages over every file, writing results to outDir in
// the given format. Per-file failures are reported in the results; the
// returned error is non-nil when ctx was cancelled or any file failed.
func Process(ctx context.Context, files []string, settings core.ProcessingSettings, outDir string, format io.OutputFormat) ([]Result, error) {
	return ProcessWithOptions(ctx, files, settings, outDir, format, Options{})
}

func ProcessWithOptions(ctx context.Context, files []string, settings core.ProcessingSettings, outDir string, format io.OutputFormat, opts Options) ([]Result, error) {
	p, err := NewProcessor(settings, outDir, format, opts.Logger)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(files), 1))

	p.logger.WithFields(logrus.Fields{
		"files":   len(files),
		"workers": workers,
		"format":  format.String(),
		"out_dir": outDir,
	}).Info("BATCH: starting")

	results := make([]Result, len(files))
	jobs := make(chan int)
	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := p.File(ctx, files[i])
				results[i] = r
				p.logFile(r)

				mu.Lock()
				done++
				n := done
				mu.Unlock()
				if opts.OnFile != nil {
					opts.OnFile(n, len(files), r)
				}
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("%w: %w", core.ErrAborted, err)
	}
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Input, r.Err))
		}
	}
	p.logger.WithFields(logrus.Fields{
		"files":  len(files),
		"failed": len(errs),
	}).Info("BATCH: finished")
	return results, errors.Join(errs...)
}

func (p *Processor) logFile(r Result) {
	fields := logrus.Fields{
		"input":    r.Input,
		"duration": r.Duration.String(),
	}
	if r.Err != nil {
		p.logger.WithFields(fields).WithError(r.Err).Error("BATCH: file failed")
		return
	}
	fields["output"] = r.Output
	p.logger.WithFields(fields).Info("BATCH: file saved")
}
