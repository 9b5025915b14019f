// Loaded source image with thread-safe access
package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// maxDimension guards against images that would not fit the preview buffers
const maxDimension = 65536

// Document owns the decoded source image of the current file.
// The source is never modified after SetSource, so readers share it.
type Document struct {
	mu       sync.RWMutex
	source   *Image
	hasImage bool
	filepath string
	metadata Metadata
}

// Metadata contains information about the loaded file
type Metadata struct {
	Width          int
	Height         int
	OriginalFormat PixelFormat
	Format         string
}

func NewDocument() *Document {
	return &Document{}
}

// SetSource replaces the source image after validation
func (d *Document) SetSource(img *Image, original PixelFormat, path string) error {
	if err := ValidateImage(img); err != nil {
		return err
	}
	if img.Format() != Mono32F {
		return fmt.Errorf("source must be %s, got %s", Mono32F, img.Format())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.source = img
	d.hasImage = true
	d.filepath = path
	d.metadata = Metadata{
		Width:          img.Width(),
		Height:         img.Height(),
		OriginalFormat: original,
		Format:         getFormatFromPath(path),
	}
	return nil
}

// Source returns the shared, read-only source image or nil
func (d *Document) Source() *Image {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

func (d *Document) HasImage() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasImage
}

func (d *Document) Filepath() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filepath
}

func (d *Document) Metadata() Metadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metadata
}

// Clear drops the source image
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.source = nil
	d.hasImage = false
	d.filepath = ""
	d.metadata = Metadata{}
}

func getFormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}

// ValidateImage checks an image for basic requirements
func ValidateImage(img *Image) error {
	if img == nil {
		return fmt.Errorf("image is empty")
	}
	if img.Width() <= 0 || img.Height() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", img.Width(), img.Height())
	}
	if img.Width() > maxDimension || img.Height() > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d)", img.Width(), img.Height(), maxDimension)
	}
	return nil
}
