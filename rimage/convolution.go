package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/perseusxr/reconprep/utils"
)

// Kernel is a 2D convolution kernel.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// At returns the kernel value at the given coordinates.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the size of the kernel.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// GetLaplacian returns the Kernel corresponding to the 4-connected Laplacian operator.
func GetLaplacian() Kernel {
	return Kernel{[][]float64{
		{0, 1, 0},
		{1, -4, 1},
		{0, 1, 0},
	},
		3,
		3,
	}
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter.
// There is no clamping in this case.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	kernelSize := filter.Size()
	padded, err := PaddingFloat64(m, kernelSize, image.Point{1, 1}, 0)
	if err != nil {
		return nil, err
	}

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				pixel := padded.At(y+ky, x+kx)
				kE := filter.At(kx, ky)
				sum += pixel * kE
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

// PaddingFloat64 pads a float64 matrix with the given constant value so that a
// kernel of kernelSize anchored at anchor can slide over every original cell.
func PaddingFloat64(m *mat.Dense, kernelSize, anchor image.Point, pad float64) (*mat.Dense, error) {
	if kernelSize.X <= 0 || kernelSize.Y <= 0 {
		return nil, errors.Errorf("kernel size must be positive, got %v", kernelSize)
	}
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v must lie within the kernel %v", anchor, kernelSize)
	}
	h, w := m.Dims()
	paddedH := h + kernelSize.Y - 1
	paddedW := w + kernelSize.X - 1
	padded := mat.NewDense(paddedH, paddedW, nil)
	if pad != 0 {
		for y := 0; y < paddedH; y++ {
			for x := 0; x < paddedW; x++ {
				padded.Set(y, x, pad)
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			padded.Set(y+anchor.Y, x+anchor.X, m.At(y, x))
		}
	}
	return padded, nil
}
