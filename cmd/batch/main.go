// Astro Post-processor - unattended batch processing

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/batch"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/io"
	"astro-postprocessor/internal/settings"
)

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	settingsPath := flag.String("settings", "", "Processing settings file (defaults apply when empty)")
	outDir := flag.String("out", ".", "Output directory")
	formatName := flag.String("format", io.TIFF16.String(), "Output format: bmp8, png8, tiff8, tiff16, tiff32f")
	workers := flag.Int("workers", 0, "Files processed in parallel (0 = number of CPUs)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] image...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := initLogger(*debugMode)
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	format, err := io.ParseOutputFormat(*formatName)
	if err != nil {
		logger.WithError(err).Fatal("Invalid output format")
	}

	s := core.DefaultSettings()
	if *settingsPath != "" {
		if s, err = settings.Load(*settingsPath); err != nil {
			logger.WithError(err).Fatal("Cannot load settings")
		}
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.WithError(err).Fatal("Cannot create output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = batch.ProcessWithOptions(ctx, flag.Args(), s, *outDir, format, batch.Options{
		Logger:  logger,
		Workers: *workers,
		OnFile: func(done, total int, r batch.Result) {
			logger.WithFields(logrus.Fields{
				"done":  done,
				"total": total,
			}).Debug("Batch progress")
		},
	})
	if err != nil {
		logger.WithError(err).Error("Batch finished with errors")
		os.Exit(1)
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
