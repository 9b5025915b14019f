// Package config keeps process-wide preferences: recently used settings
// files, directories, window geometry and the backend choice
package config

import (
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
)

// MaxMRU is the length of the recently used settings list
const MaxMRU = 8

const (
	keyMRU             = "settingsMRU"
	keyLastOpenDir     = "lastOpenDirectory"
	keyLastSaveDir     = "lastSaveDirectory"
	keyLastSettingsDir = "lastSettingsDirectory"
	keyWindowWidth     = "windowWidth"
	keyWindowHeight    = "windowHeight"
	keyBackend         = "backend"
	keyOutputFormat    = "outputFormat"
	keyHistogramLog    = "histogramLogScale"
	keyFitInWindow     = "fitInWindow"
)

// DefaultWindowSize is used before the first Save
var DefaultWindowSize = fyne.NewSize(1280, 800)

// Store is an in-memory copy of the preferences with explicit Load and
// Save. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	prefs fyne.Preferences

	mru             []string
	lastOpenDir     string
	lastSaveDir     string
	lastSettingsDir string
	windowSize      fyne.Size
	backend         string
	outputFormat    string
	histogramLog    bool
	fitInWindow     bool
}

func New(prefs fyne.Preferences) *Store {
	return &Store{prefs: prefs, windowSize: DefaultWindowSize, backend: "auto"}
}

// Load replaces the in-memory values with the stored ones
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mru = trimMRU(s.prefs.StringList(keyMRU))
	s.lastOpenDir = s.prefs.String(keyLastOpenDir)
	s.lastSaveDir = s.prefs.String(keyLastSaveDir)
	s.lastSettingsDir = s.prefs.String(keyLastSettingsDir)
	s.windowSize = fyne.NewSize(
		float32(s.prefs.FloatWithFallback(keyWindowWidth, float64(DefaultWindowSize.Width))),
		float32(s.prefs.FloatWithFallback(keyWindowHeight, float64(DefaultWindowSize.Height))))
	s.backend = s.prefs.StringWithFallback(keyBackend, "auto")
	s.outputFormat = s.prefs.String(keyOutputFormat)
	s.histogramLog = s.prefs.Bool(keyHistogramLog)
	s.fitInWindow = s.prefs.Bool(keyFitInWindow)
}

// Save writes the in-memory values to the preferences
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs.SetStringList(keyMRU, s.mru)
	s.prefs.SetString(keyLastOpenDir, s.lastOpenDir)
	s.prefs.SetString(keyLastSaveDir, s.lastSaveDir)
	s.prefs.SetString(keyLastSettingsDir, s.lastSettingsDir)
	s.prefs.SetFloat(keyWindowWidth, float64(s.windowSize.Width))
	s.prefs.SetFloat(keyWindowHeight, float64(s.windowSize.Height))
	s.prefs.SetString(keyBackend, s.backend)
	s.prefs.SetString(keyOutputFormat, s.outputFormat)
	s.prefs.SetBool(keyHistogramLog, s.histogramLog)
	s.prefs.SetBool(keyFitInWindow, s.fitInWindow)
}

func trimMRU(list []string) []string {
	out := make([]string, 0, MaxMRU)
	seen := make(map[string]bool)
	for _, p := range list {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) == MaxMRU {
			break
		}
	}
	return out
}

// MRU returns the recently used settings files, newest first
func (s *Store) MRU() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mru...)
}

// AddMRU moves path to the front of the recently used list
func (s *Store) AddMRU(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mru = trimMRU(append([]string{path}, s.mru...))
}

// RemoveMRU drops path, e.g. after it failed to load
func (s *Store) RemoveMRU(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.mru[:0]
	for _, p := range s.mru {
		if p != path {
			out = append(out, p)
		}
	}
	s.mru = out
}

func (s *Store) ClearMRU() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mru = nil
}

func (s *Store) LastOpenDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpenDir
}

// SetLastOpenFile remembers the directory of an opened image
func (s *Store) SetLastOpenFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOpenDir = filepath.Dir(path)
}

func (s *Store) LastSaveDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveDir
}

func (s *Store) SetLastSaveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSaveDir = filepath.Dir(path)
}

func (s *Store) LastSettingsDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSettingsDir
}

func (s *Store) SetLastSettingsFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSettingsDir = filepath.Dir(path)
}

func (s *Store) WindowSize() fyne.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowSize
}

func (s *Store) SetWindowSize(size fyne.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowSize = size
}

// Backend is the stored backend kind name
func (s *Store) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

func (s *Store) SetBackend(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = kind
}

// OutputFormat is the stored output format name, empty if never chosen
func (s *Store) OutputFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputFormat
}

func (s *Store) SetOutputFormat(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputFormat = name
}

func (s *Store) HistogramLog() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histogramLog
}

func (s *Store) SetHistogramLog(log bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histogramLog = log
}

func (s *Store) FitInWindow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fitInWindow
}

func (s *Store) SetFitInWindow(fit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitInWindow = fit
}
