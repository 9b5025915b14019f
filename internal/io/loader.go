// Image loading and saving through OpenCV
package io

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"astro-postprocessor/internal/core"
)

// OutputFormat is a file format for saving processed images
type OutputFormat int

const (
	BMP8 OutputFormat = iota
	PNG8
	TIFF8
	TIFF16
	TIFF32F
)

var outputFormats = []struct {
	format OutputFormat
	name   string
	ext    string
}{
	{BMP8, "bmp8", ".bmp"},
	{PNG8, "png8", ".png"},
	{TIFF8, "tiff8", ".tif"},
	{TIFF16, "tiff16", ".tif"},
	{TIFF32F, "tiff32f", ".tif"},
}

func (f OutputFormat) String() string {
	for _, o := range outputFormats {
		if o.format == f {
			return o.name
		}
	}
	return "unknown"
}

// Extension is the file name extension written for f
func (f OutputFormat) Extension() string {
	for _, o := range outputFormats {
		if o.format == f {
			return o.ext
		}
	}
	return ""
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, o := range outputFormats {
		if o.name == s {
			return o.format, nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

// OutputFormats lists the formats in menu order
func OutputFormats() []OutputFormat {
	out := make([]OutputFormat, len(outputFormats))
	for i, o := range outputFormats {
		out[i] = o.format
	}
	return out
}

var supportedExtensions = []string{".tif", ".tiff", ".png", ".bmp", ".jpg", ".jpeg"}

// SupportedExtensions lists the extensions LoadImage accepts
func SupportedExtensions() []string {
	return append([]string(nil), supportedExtensions...)
}

func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range supportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImageLoader handles image file operations
type ImageLoader struct {
	logger *logrus.Logger
}

func NewImageLoader(logger *logrus.Logger) *ImageLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ImageLoader{logger: logger}
}

// LoadImage reads a file as a single-channel image scaled to [0, 1]. It
// also returns the pixel format stored in the file.
func (il *ImageLoader) LoadImage(path string) (*core.Image, core.PixelFormat, error) {
	il.logger.WithField("filepath", path).Debug("Loading image")

	if !IsSupported(path) {
		return nil, 0, &core.FileLoadError{Path: path, Err: fmt.Errorf("unsupported image format %q", filepath.Ext(path))}
	}

	mat := gocv.IMRead(path, gocv.IMReadGrayScale|gocv.IMReadAnyDepth)
	defer mat.Close()
	if mat.Empty() {
		return nil, 0, &core.FileLoadError{Path: path, Err: fmt.Errorf("file could not be decoded")}
	}

	original, scale, err := sourceFormat(mat.Type())
	if err != nil {
		return nil, 0, &core.FileLoadError{Path: path, Err: err}
	}

	converted := gocv.NewMat()
	defer converted.Close()
	if err := mat.ConvertToWithParams(&converted, gocv.MatTypeCV32F, scale, 0); err != nil {
		return nil, 0, &core.FileLoadError{Path: path, Err: fmt.Errorf("conversion to float failed: %w", err)}
	}

	img, err := core.NewImageFromPix(converted.Cols(), converted.Rows(), core.Mono32F, converted.ToBytes())
	if err != nil {
		return nil, 0, &core.FileLoadError{Path: path, Err: err}
	}
	if err := core.ValidateImage(img); err != nil {
		return nil, 0, &core.FileLoadError{Path: path, Err: err}
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    img.Width(),
		"height":   img.Height(),
		"format":   original.String(),
	}).Info("Image loaded successfully")
	return img, original, nil
}

// sourceFormat maps an OpenCV single-channel type to a pixel format and
// the factor that brings its range to [0, 1]
func sourceFormat(t gocv.MatType) (core.PixelFormat, float32, error) {
	switch t {
	case gocv.MatTypeCV8U:
		return core.Mono8, 1.0 / 0xff, nil
	case gocv.MatTypeCV16U:
		return core.Mono16, 1.0 / 0xffff, nil
	case gocv.MatTypeCV32S:
		return core.Mono32, 1.0 / 0x7fffffff, nil
	case gocv.MatTypeCV32F:
		return core.Mono32F, 1, nil
	}
	return 0, 0, fmt.Errorf("unsupported pixel type %v", t)
}

// SaveImage writes a Mono32F image. Samples outside [0, 1] saturate in
// the integer formats.
func (il *ImageLoader) SaveImage(img *core.Image, path string, format OutputFormat) error {
	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"format":   format.String(),
	}).Debug("Saving image")

	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return fmt.Errorf("cannot save empty image")
	}
	if img.Format() != core.Mono32F {
		img = img.ConvertToMono32F()
	}

	src, err := gocv.NewMatFromBytes(img.Height(), img.Width(), gocv.MatTypeCV32F, img.Pix())
	if err != nil {
		return fmt.Errorf("failed to wrap image: %w", err)
	}
	defer src.Close()

	out := gocv.NewMat()
	defer out.Close()
	switch format {
	case BMP8, PNG8, TIFF8:
		err = src.ConvertToWithParams(&out, gocv.MatTypeCV8U, 0xff, 0)
	case TIFF16:
		err = src.ConvertToWithParams(&out, gocv.MatTypeCV16U, 0xffff, 0)
	case TIFF32F:
		err = src.ConvertTo(&out, gocv.MatTypeCV32F)
	default:
		return fmt.Errorf("unknown output format %d", int(format))
	}
	if err != nil {
		return fmt.Errorf("conversion to %s failed: %w", format, err)
	}

	if !gocv.IMWrite(path, out) {
		return fmt.Errorf("failed to save image: %s", path)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    img.Width(),
		"height":   img.Height(),
		"format":   format.String(),
	}).Info("Image saved successfully")
	return nil
}

// WithExtension replaces the extension of path with the one of format
func WithExtension(path string, format OutputFormat) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + format.Extension()
}

var defaultLoader = NewImageLoader(nil)

// LoadImage loads path with the standard logger
func LoadImage(path string) (*core.Image, error) {
	img, _, err := defaultLoader.LoadImage(path)
	return img, err
}

// SaveImage saves img with the standard logger
func SaveImage(img *core.Image, path string, format OutputFormat) error {
	return defaultLoader.SaveImage(img, path, format)
}
