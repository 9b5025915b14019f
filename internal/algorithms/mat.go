package algorithms

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"astro-postprocessor/internal/core"
)

// toMat copies a Mono32F image into a CV_32F Mat. The caller closes it.
func toMat(img *core.Image) (gocv.Mat, error) {
	mat, err := gocv.NewMatFromBytes(img.Height(), img.Width(), gocv.MatTypeCV32F, img.Pix())
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %w", err)
	}
	return mat, nil
}

// fromMat copies a CV_32F Mat into a new Mono32F image
func fromMat(mat gocv.Mat) (*core.Image, error) {
	if mat.Type() != gocv.MatTypeCV32F {
		return nil, fmt.Errorf("unexpected mat type %v", mat.Type())
	}
	return core.NewImageFromPix(mat.Cols(), mat.Rows(), core.Mono32F, mat.ToBytes())
}

// gaussianKernel returns the odd kernel size covering three sigmas
func gaussianKernel(sigma float32) image.Point {
	k := int(math.Ceil(3*float64(sigma)))*2 + 1
	return image.Pt(k, k)
}

func gaussianBlur(src gocv.Mat, dst *gocv.Mat, sigma float32) error {
	return gocv.GaussianBlur(src, dst, gaussianKernel(sigma), float64(sigma), float64(sigma), gocv.BorderReflect101)
}
