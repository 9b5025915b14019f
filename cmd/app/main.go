// Astro Post-processor - interactive sharpening and tone mapping of
// monochrome astronomical images

package main

import (
	"flag"
	"os"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"

	// registers the hardware accelerator when one is available
	_ "github.com/gogpu/gg/gpu"

	"astro-postprocessor/internal/gui"
)

const AppID = "io.github.astro-postprocessor"

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	backendKind := flag.String("backend", "", "Rendering backend: auto, cpu or gpu (default: last used)")
	flag.Parse()

	logger := initLogger(*debugMode)
	logger.WithFields(logrus.Fields{
		"version":    gui.AppVersion,
		"debug_mode": *debugMode,
	}).Info("Starting Astro Post-processor")

	myApp := app.NewWithID(AppID)
	myApp.SetIcon(theme.DocumentIcon())

	mainApp, err := gui.NewApplication(myApp, logger, *debugMode, *backendKind)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start")
	}
	if flag.NArg() > 0 {
		mainApp.OpenFile(flag.Arg(0))
	}
	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
