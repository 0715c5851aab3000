package rimage

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeasureBlurLaplacian returns the variance of the Laplacian response over the
// image's luminance. Sharper images score strictly higher than blurred copies
// of the same content. This is a diagnostic/QA signal only; nothing in the
// pipeline gates on it.
func MeasureBlurLaplacian(img image.Image) (float64, error) {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// grayscale image, any channel is the luminance
			lum[y*w+x] = float64(gray.Pix[gray.PixOffset(x, y)])
		}
	}

	laplacian := GetLaplacian()
	response, err := ConvolveGrayFloat64(mat.NewDense(h, w, lum), &laplacian)
	if err != nil {
		return 0, err
	}
	return stat.Variance(response.RawMatrix().Data, nil), nil
}
