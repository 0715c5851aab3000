package rimage

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/perseusxr/reconprep/utils"
)

// ToneMapMethod names a tone mapping strategy.
type ToneMapMethod string

// The supported tone mapping strategies.
const (
	ToneMapCLAHE ToneMapMethod = "clahe"
	ToneMapGamma ToneMapMethod = "gamma"
)

// DefaultCLAHEClipLimit is the contrast limit used when none is configured.
// Matches the capture pipeline's recommended setting for specular highlights.
const DefaultCLAHEClipLimit = 2.0

// claheGridSize is the number of tiles per axis for adaptive equalization.
const claheGridSize = 8

// UnsupportedMethodError is returned when a tone mapping method name does not
// match any known strategy.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported tone mapping method %q", e.Method)
}

// ToneMapOptions holds the per-method parameters for ApplyToneMapping.
type ToneMapOptions struct {
	CLAHEClipLimit float64
	Gamma          float64
}

// ValidateToneMapMethod returns an UnsupportedMethodError if the method is unknown.
func ValidateToneMapMethod(method ToneMapMethod) error {
	switch method {
	case ToneMapCLAHE, ToneMapGamma:
		return nil
	default:
		return &UnsupportedMethodError{Method: string(method)}
	}
}

// ApplyToneMapping dispatches to the named tone mapping strategy. The input
// image is never modified; a fresh NRGBA image of the same dimensions is
// returned.
func ApplyToneMapping(img image.Image, method ToneMapMethod, opts ToneMapOptions) (*image.NRGBA, error) {
	switch method {
	case ToneMapCLAHE:
		clipLimit := opts.CLAHEClipLimit
		if clipLimit <= 0 {
			clipLimit = DefaultCLAHEClipLimit
		}
		return ApplyCLAHEToneMapping(img, clipLimit), nil
	case ToneMapGamma:
		gamma := opts.Gamma
		if gamma <= 0 {
			gamma = 1.0
		}
		return ApplyGammaCorrection(img, gamma), nil
	default:
		return nil, &UnsupportedMethodError{Method: string(method)}
	}
}

// CloneToNRGBA returns a fresh NRGBA copy of the image sharing no storage
// with the original.
func CloneToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// ApplyGammaCorrection remaps every pixel through a power law. Gamma greater
// than 1 brightens, less than 1 darkens. Pure: the input is left untouched.
func ApplyGammaCorrection(img image.Image, gamma float64) *image.NRGBA {
	return imaging.AdjustGamma(img, gamma)
}

// ApplyCLAHEToneMapping performs contrast-limited adaptive histogram
// equalization over the image's luminance, preserving chroma by scaling each
// pixel's channels with the luminance gain. Output dimensions and channel
// depth match the input. Pure: the input is left untouched.
func ApplyCLAHEToneMapping(img image.Image, clipLimit float64) *image.NRGBA {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return out
	}

	gridX, gridY := claheGridSize, claheGridSize
	if w < gridX {
		gridX = w
	}
	if h < gridY {
		gridY = h
	}
	tileW := (w + gridX - 1) / gridX
	tileH := (h + gridY - 1) / gridY

	lum := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			yy, _, _ := color.RGBToYCbCr(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
			lum[y*w+x] = yy
		}
	}

	luts := make([][256]uint8, gridX*gridY)
	for gy := 0; gy < gridY; gy++ {
		for gx := 0; gx < gridX; gx++ {
			x0, y0 := gx*tileW, gy*tileH
			x1, y1 := x0+tileW, y0+tileH
			if x1 > w {
				x1 = w
			}
			if y1 > h {
				y1 = h
			}
			luts[gy*gridX+gx] = claheTileLUT(lum, w, x0, y0, x1, y1, clipLimit)
		}
	}

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		oldY := lum[y*w+x]
		newY := claheInterpolate(luts, gridX, gridY, tileW, tileH, x, y, oldY)
		if oldY == 0 || newY == oldY {
			return
		}
		gain := float64(newY) / float64(oldY)
		i := out.PixOffset(x, y)
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = uint8(utils.ClampF64(math.Round(float64(out.Pix[i+c])*gain), 0, 255))
		}
	})
	return out
}

// claheTileLUT builds the clipped, equalized luminance mapping for one tile.
func claheTileLUT(lum []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	var hist [256]int
	n := (x1 - x0) * (y1 - y0)
	if n <= 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[lum[y*stride+x]]++
		}
	}

	// clip the histogram and spread the excess evenly across all bins
	clip := int(clipLimit * float64(n) / 256.0)
	if clip < 1 {
		clip = 1
	}
	excess := 0
	for i, c := range hist {
		if c > clip {
			excess += c - clip
			hist[i] = clip
		}
	}
	bonus := excess / 256
	leftover := excess % 256
	for i := range hist {
		hist[i] += bonus
		if i < leftover {
			hist[i]++
		}
	}

	cdf := 0
	for i, c := range hist {
		cdf += c
		lut[i] = uint8(utils.ClampF64(math.Round(float64(cdf)*255.0/float64(n)), 0, 255))
	}
	return lut
}

// claheInterpolate bilinearly blends the mappings of the four tiles nearest to
// the pixel, which removes visible tile seams.
func claheInterpolate(luts [][256]uint8, gridX, gridY, tileW, tileH, x, y int, v uint8) uint8 {
	tx := (float64(x)+0.5)/float64(tileW) - 0.5
	ty := (float64(y)+0.5)/float64(tileH) - 0.5

	gx0 := int(math.Floor(tx))
	gy0 := int(math.Floor(ty))
	fx := tx - float64(gx0)
	fy := ty - float64(gy0)

	gx1 := clampInt(gx0+1, 0, gridX-1)
	gy1 := clampInt(gy0+1, 0, gridY-1)
	gx0 = clampInt(gx0, 0, gridX-1)
	gy0 = clampInt(gy0, 0, gridY-1)

	m00 := float64(luts[gy0*gridX+gx0][v])
	m10 := float64(luts[gy0*gridX+gx1][v])
	m01 := float64(luts[gy1*gridX+gx0][v])
	m11 := float64(luts[gy1*gridX+gx1][v])

	top := (1-fx)*m00 + fx*m10
	bottom := (1-fx)*m01 + fx*m11
	return uint8(utils.ClampF64(math.Round((1-fy)*top+fy*bottom), 0, 255))
}

func clampInt(x, min, max int) int {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
