// Concrete quality metrics
package metrics

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"astro-postprocessor/internal/core"
)

func checkPair(original, processed *core.Image) error {
	if original == nil || processed == nil {
		return fmt.Errorf("empty images")
	}
	if original.Size() != processed.Size() {
		return fmt.Errorf("image dimensions mismatch: %v vs %v", original.Size(), processed.Size())
	}
	if original.Width() == 0 || original.Height() == 0 {
		return fmt.Errorf("empty images")
	}
	return nil
}

func samples(img *core.Image) []float64 {
	if img.Format() != core.Mono32F {
		img = img.ConvertToMono32F()
	}
	src := img.Float32s()
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

func meanSquaredError(original, processed *core.Image) float64 {
	a, b := samples(original), samples(processed)
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

// MSE is the mean squared difference of the samples
type MSE struct{}

func NewMSE() *MSE { return &MSE{} }

func (m *MSE) Calculate(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	return meanSquaredError(original, processed), nil
}

func (m *MSE) GetName() string              { return "MSE" }
func (m *MSE) GetDescription() string       { return "Mean squared error between input and output" }
func (m *MSE) GetRange() (float64, float64) { return 0, 1 }
func (m *MSE) IsHigherBetter() bool         { return false }

// PSNR is the peak signal-to-noise ratio for a peak value of 1
type PSNR struct{}

func NewPSNR() *PSNR { return &PSNR{} }

func (p *PSNR) Calculate(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	mse := meanSquaredError(original, processed)
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(1/mse), nil
}

func (p *PSNR) GetName() string              { return "PSNR" }
func (p *PSNR) GetDescription() string       { return "Peak signal-to-noise ratio in dB" }
func (p *PSNR) GetRange() (float64, float64) { return 0, 100 }
func (p *PSNR) IsHigherBetter() bool         { return true }

// Sharpness is the ratio of the Laplacian variance of the output to that
// of the input
type Sharpness struct{}

func NewSharpness() *Sharpness { return &Sharpness{} }

func (s *Sharpness) Calculate(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	before, err := laplacianVariance(original)
	if err != nil {
		return 0, err
	}
	after, err := laplacianVariance(processed)
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 1.0, nil
	}
	return after / before, nil
}

func laplacianVariance(img *core.Image) (float64, error) {
	if img.Format() != core.Mono32F {
		img = img.ConvertToMono32F()
	}
	src, err := gocv.NewMatFromBytes(img.Height(), img.Width(), gocv.MatTypeCV32F, img.Pix())
	if err != nil {
		return 0, fmt.Errorf("failed to wrap image: %w", err)
	}
	defer src.Close()

	laplacian := gocv.NewMat()
	defer laplacian.Close()
	if err := gocv.Laplacian(src, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault); err != nil {
		return 0, fmt.Errorf("laplacian failed: %w", err)
	}

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	if err := gocv.MeanStdDev(laplacian, &mean, &stddev); err != nil {
		return 0, fmt.Errorf("mean/stddev failed: %w", err)
	}
	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

func (s *Sharpness) GetName() string              { return "Sharpness" }
func (s *Sharpness) GetDescription() string       { return "Laplacian variance relative to the input" }
func (s *Sharpness) GetRange() (float64, float64) { return 0, 10 }
func (s *Sharpness) IsHigherBetter() bool         { return true }

// Contrast is the ratio of the output's standard deviation to the input's
type Contrast struct{}

func NewContrast() *Contrast { return &Contrast{} }

func (c *Contrast) Calculate(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	before := stat.StdDev(samples(original), nil)
	after := stat.StdDev(samples(processed), nil)
	if before == 0 {
		return 1.0, nil
	}
	return after / before, nil
}

func (c *Contrast) GetName() string              { return "Contrast" }
func (c *Contrast) GetDescription() string       { return "Standard deviation relative to the input" }
func (c *Contrast) GetRange() (float64, float64) { return 0, 10 }
func (c *Contrast) IsHigherBetter() bool         { return true }
